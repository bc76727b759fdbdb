package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pairstream/pairstream/internal/common"
	"github.com/pairstream/pairstream/internal/config"
	"github.com/pairstream/pairstream/internal/logger"
)

const headBuffer = 16

// HeadWatcher maintains a newHeads WebSocket subscription and publishes
// observed tip heights. The indexer treats heads as wakeup hints on top of
// its polling loop, so dropped notifications are harmless.
type HeadWatcher struct {
	wsURL         string
	maxReconnects int
	retry         *config.RetryConfig
	log           *logger.Logger
	heads         chan uint64
}

// NewHeadWatcher creates a watcher for the configured WebSocket endpoint.
func NewHeadWatcher(cfg *config.RPCConfig, log *logger.Logger) *HeadWatcher {
	return &HeadWatcher{
		wsURL:         cfg.WSURL,
		maxReconnects: cfg.MaxReconnectAttempts,
		retry:         cfg.Retry,
		log:           log.WithComponent(common.ComponentRPC),
		heads:         make(chan uint64, headBuffer),
	}
}

// Heads returns the channel of observed tip heights.
func (w *HeadWatcher) Heads() <-chan uint64 {
	return w.heads
}

// Run subscribes to newHeads and keeps the subscription alive, reconnecting
// with backoff on failure. The attempt counter resets every time a
// subscription is established; once maxReconnects consecutive attempts fail
// it returns ErrMaxReconnectAttempts. Run blocks until the context is
// cancelled or the attempt budget is exhausted.
func (w *HeadWatcher) Run(ctx context.Context) error {
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		established, err := w.subscribe(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			attempts = 0
		}

		attempts++
		WSReconnects.Inc()

		if attempts >= w.maxReconnects {
			w.log.Errorf("head subscription failed after %d attempts: %v", attempts, err)
			return fmt.Errorf("%w: %d attempts, last error: %v", ErrMaxReconnectAttempts, attempts, err)
		}

		backoff := calculateBackoff(attempts+1, w.retry)
		w.log.Warnf("head subscription lost (attempt %d/%d), reconnecting in %v: %v",
			attempts, w.maxReconnects, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// subscribe dials, subscribes, and consumes heads until the subscription
// breaks. It reports whether a subscription was actually established, and
// returns nil once the context ends.
func (w *HeadWatcher) subscribe(ctx context.Context) (bool, error) {
	client, err := ethclient.DialContext(ctx, w.wsURL)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", w.wsURL, err)
	}
	defer client.Close()

	headers := make(chan *types.Header, headBuffer)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return false, fmt.Errorf("subscribe newHeads: %w", err)
	}
	defer sub.Unsubscribe()

	w.log.Infof("head subscription established: %s", w.wsURL)

	for {
		select {
		case header := <-headers:
			w.publish(header.Number.Uint64())
		case err := <-sub.Err():
			return true, fmt.Errorf("subscription broken: %w", err)
		case <-ctx.Done():
			return true, nil
		}
	}
}

func (w *HeadWatcher) publish(number uint64) {
	select {
	case w.heads <- number:
	default:
		// Consumer is behind. The next poll catches up anyway.
	}
}
