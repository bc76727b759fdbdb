package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pairstream/pairstream/internal/broadcast"
	"github.com/pairstream/pairstream/internal/config"
	"github.com/pairstream/pairstream/internal/indexer"
	"github.com/pairstream/pairstream/internal/logger"
	"github.com/pairstream/pairstream/internal/metrics"
	"github.com/pairstream/pairstream/internal/rpc"
	"github.com/pairstream/pairstream/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pairstream",
	Short: "pairstream - Uniswap V2 pair price indexer",
	Long: `pairstream tails the Sync events of a Uniswap V2 pair, validates the
reserves, derives a price per event, and persists everything with automatic
reorg handling. Price updates are pushed to WebSocket subscribers.`,
	Version: version,
	RunE:    run,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return store.RunMigrations(cfg.DB.Path)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(migrateCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	logger.SetDefaultLogger(log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Infow("connecting to Ethereum node", "url", cfg.RPC.URL)
	ethClient, err := rpc.NewClient(ctx, &cfg.RPC)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics, log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnw("failed to stop metrics server", "error", err)
			}
		}()
	}

	log.Info("running database migrations")
	if err := store.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := store.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	st := store.NewStore(db, log)
	defer st.Close()

	poolID, err := st.EnsurePool(ctx, cfg.Pair)
	if err != nil {
		return fmt.Errorf("failed to register pool: %w", err)
	}
	log.Infow("tracking pair", "name", cfg.Pair.Name, "address", cfg.Pair.Address, "poolID", poolID)

	group, groupCtx := errgroup.WithContext(ctx)

	var hub *broadcast.Hub
	if cfg.Broadcast != nil && cfg.Broadcast.Enabled {
		hub = broadcast.NewHub(cfg.Broadcast.BufferSize, log)
		defer hub.Close()

		server := broadcast.NewServer(*cfg.Broadcast, hub, log)
		group.Go(func() error {
			return server.Run(groupCtx)
		})
	}

	var heads <-chan uint64
	if cfg.RPC.WSURL != "" {
		watcher := rpc.NewHeadWatcher(&cfg.RPC, log)
		heads = watcher.Heads()
		group.Go(func() error {
			return watcher.Run(groupCtx)
		})
	}

	var sink indexer.Sink
	if hub != nil {
		sink = hub
	}

	idx := indexer.New(cfg.Indexer, cfg.Pair, poolID, ethClient, st, sink, heads, log)
	group.Go(func() error {
		return idx.Run(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pairstream failed: %w", err)
	}

	log.Info("pairstream stopped")
	return nil
}
