package config

import (
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pairstream/pairstream/internal/common"
)

// Config is the complete configuration for the pairstream indexer.
type Config struct {
	// Indexer configures the incremental batch indexing loop
	Indexer IndexerConfig `yaml:"indexer" json:"indexer" toml:"indexer"`

	// Pair describes the tracked pool and its token metadata
	Pair PairConfig `yaml:"pair" json:"pair" toml:"pair"`

	// RPC configures the Ethereum node connection
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// DB configures the SQLite persistence layer
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Logging configures structured logging
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics configures the Prometheus metrics server
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// Broadcast configures the price-update WebSocket sink
	Broadcast *BroadcastConfig `yaml:"broadcast,omitempty" json:"broadcast,omitempty" toml:"broadcast,omitempty"`
}

// IndexerConfig configures the polling loop.
type IndexerConfig struct {
	// PollInterval is the delay between polling cycles
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// BatchSize is the number of blocks per eth_getLogs sub-range
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// Confirmations is the number of descendant blocks required before a
	// record is marked confirmed
	Confirmations uint64 `yaml:"confirmations" json:"confirmations" toml:"confirmations"`

	// StartBlock is the block to begin indexing from on a fresh database
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// StateFile is an optional path for the JSON cursor snapshot used for
	// crash recovery outside the database. Empty disables the snapshot.
	StateFile string `yaml:"state_file,omitempty" json:"state_file,omitempty" toml:"state_file,omitempty"`
}

// ApplyDefaults sets defaults for optional indexer fields.
func (c *IndexerConfig) ApplyDefaults() {
	if c.PollInterval.Duration == 0 {
		c.PollInterval = common.NewDuration(12 * time.Second)
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.Confirmations == 0 {
		c.Confirmations = 12
	}
}

// TokenConfig is static metadata for one side of the pair.
type TokenConfig struct {
	Address  string `yaml:"address" json:"address" toml:"address"`
	Symbol   string `yaml:"symbol" json:"symbol" toml:"symbol"`
	Decimals uint8  `yaml:"decimals" json:"decimals" toml:"decimals"`
}

// PairConfig describes the single tracked reserve pair.
type PairConfig struct {
	// Address is the pool contract address
	Address string `yaml:"address" json:"address" toml:"address"`

	// Name is a human-readable pair label, e.g. "WETH-USDT"
	Name string `yaml:"name" json:"name" toml:"name"`

	// Token0 and Token1 follow the pool's on-chain token ordering
	Token0 TokenConfig `yaml:"token0" json:"token0" toml:"token0"`
	Token1 TokenConfig `yaml:"token1" json:"token1" toml:"token1"`
}

// ApplyDefaults fills in the canonical mainnet WETH/USDT pair when the pair
// section is left empty.
func (c *PairConfig) ApplyDefaults() {
	if c.Address == "" {
		c.Address = "0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"
		c.Name = "WETH-USDT"
		c.Token0 = TokenConfig{
			Address:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			Symbol:   "WETH",
			Decimals: 18,
		}
		c.Token1 = TokenConfig{
			Address:  "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			Symbol:   "USDT",
			Decimals: 6,
		}
	}
}

// RPCConfig configures the Ethereum node connection.
type RPCConfig struct {
	// URL is the HTTP RPC endpoint
	URL string `yaml:"url" json:"url" toml:"url"`

	// WSURL is an optional WebSocket endpoint for newHeads subscriptions.
	// When empty the indexer relies on HTTP polling alone.
	WSURL string `yaml:"ws_url,omitempty" json:"ws_url,omitempty" toml:"ws_url,omitempty"`

	// MaxReconnectAttempts bounds WebSocket reconnection before the indexer
	// gives up and surfaces a hard failure
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts" toml:"max_reconnect_attempts"`

	// Retry configures exponential backoff for transient RPC failures
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets defaults for optional RPC fields.
func (c *RPCConfig) ApplyDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.Retry == nil {
		c.Retry = &RetryConfig{}
	}
	c.Retry.ApplyDefaults()
}

// RetryConfig configures exponential backoff for transient failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the delay before the first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff caps the backoff growth
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the exponential growth factor
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets defaults for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second)
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode. WAL keeps concurrent readers
	// unblocked while the indexer holds its write transaction.
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the fsync level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the lock wait time in milliseconds
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the page cache size (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections limits the connection pool
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections limits idle pooled connections
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets defaults for optional database fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `yaml:"level" json:"level" toml:"level"`

	// Development enables the console encoder with colored levels
	Development bool `yaml:"development" json:"development" toml:"development"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Address string `yaml:"address" json:"address" toml:"address"`
	Path    string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets defaults for optional metrics fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.Address == "" {
		m.Address = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// BroadcastConfig configures the WebSocket price-update sink.
type BroadcastConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Address string `yaml:"address" json:"address" toml:"address"`

	// BufferSize is the per-subscriber channel depth; slow subscribers
	// overflowing it lose updates rather than blocking the indexer
	BufferSize int `yaml:"buffer_size" json:"buffer_size" toml:"buffer_size"`
}

// ApplyDefaults sets defaults for optional broadcast fields.
func (b *BroadcastConfig) ApplyDefaults() {
	if b.Address == "" {
		b.Address = ":8546"
	}
	if b.BufferSize == 0 {
		b.BufferSize = 64
	}
}

// ApplyDefaults sets defaults across the whole configuration tree.
func (c *Config) ApplyDefaults() {
	c.Indexer.ApplyDefaults()
	c.Pair.ApplyDefaults()
	c.RPC.ApplyDefaults()
	c.DB.ApplyDefaults()
	if c.Logging == nil {
		c.Logging = &LoggingConfig{Level: "info"}
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
	if c.Broadcast != nil {
		c.Broadcast.ApplyDefaults()
	}
}

const maxTokenDecimals = 38

// Validate checks the configuration for fatal mistakes.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if !ethcommon.IsHexAddress(c.Pair.Address) {
		return fmt.Errorf("pair.address %q is not a valid address", c.Pair.Address)
	}
	if !ethcommon.IsHexAddress(c.Pair.Token0.Address) {
		return fmt.Errorf("pair.token0.address %q is not a valid address", c.Pair.Token0.Address)
	}
	if !ethcommon.IsHexAddress(c.Pair.Token1.Address) {
		return fmt.Errorf("pair.token1.address %q is not a valid address", c.Pair.Token1.Address)
	}
	if c.Pair.Token0.Decimals > maxTokenDecimals || c.Pair.Token1.Decimals > maxTokenDecimals {
		return fmt.Errorf("token decimals must be <= %d", maxTokenDecimals)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.Indexer.BatchSize == 0 {
		return fmt.Errorf("indexer.batch_size must be positive")
	}
	if c.Indexer.PollInterval.Duration <= 0 {
		return fmt.Errorf("indexer.poll_interval must be positive")
	}
	return nil
}
