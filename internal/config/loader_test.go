package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
rpc:
  url: "http://localhost:8545"
db:
  path: "/tmp/pairstream.db"
indexer:
  poll_interval: 5s
  batch_size: 20
  confirmations: 6
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.RPC.URL)
	assert.Equal(t, 5*time.Second, cfg.Indexer.PollInterval.Duration)
	assert.Equal(t, uint64(20), cfg.Indexer.BatchSize)
	assert.Equal(t, uint64(6), cfg.Indexer.Confirmations)

	// Unset pair section falls back to mainnet WETH/USDT.
	assert.Equal(t, "WETH-USDT", cfg.Pair.Name)
	assert.Equal(t, uint8(18), cfg.Pair.Token0.Decimals)
	assert.Equal(t, uint8(6), cfg.Pair.Token1.Decimals)
}

func TestLoadFromTOML(t *testing.T) {
	path := writeConfigFile(t, "config.toml", `
[rpc]
url = "http://localhost:8545"
max_reconnect_attempts = 3

[rpc.retry]
max_attempts = 7
initial_backoff = "500ms"

[db]
path = "/tmp/pairstream.db"
journal_mode = "WAL"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.RPC.MaxReconnectAttempts)
	assert.Equal(t, 7, cfg.RPC.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RPC.Retry.InitialBackoff.Duration)
	// Defaults fill what the file leaves out.
	assert.Equal(t, 30*time.Second, cfg.RPC.Retry.MaxBackoff.Duration)
	assert.Equal(t, 2.0, cfg.RPC.Retry.BackoffMultiplier)
	assert.Equal(t, "WAL", cfg.DB.JournalMode)
	assert.Equal(t, "NORMAL", cfg.DB.Synchronous)
}

func TestLoadFromJSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{
		"rpc": {"url": "http://localhost:8545"},
		"db": {"path": "/tmp/pairstream.db"},
		"broadcast": {"enabled": true}
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Broadcast)
	assert.True(t, cfg.Broadcast.Enabled)
	assert.Equal(t, ":8546", cfg.Broadcast.Address)
	assert.Equal(t, 64, cfg.Broadcast.BufferSize)
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	path := writeConfigFile(t, "config.ini", "rpc_url = x")
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.RPC.URL = "http://localhost:8545"
		cfg.DB.Path = "/tmp/pairstream.db"
		cfg.ApplyDefaults()
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing rpc url", func(t *testing.T) {
		cfg := valid()
		cfg.RPC.URL = ""
		require.ErrorContains(t, cfg.Validate(), "rpc.url")
	})

	t.Run("bad pair address", func(t *testing.T) {
		cfg := valid()
		cfg.Pair.Address = "0x123"
		require.ErrorContains(t, cfg.Validate(), "pair.address")
	})

	t.Run("missing db path", func(t *testing.T) {
		cfg := valid()
		cfg.DB.Path = ""
		require.ErrorContains(t, cfg.Validate(), "db.path")
	})

	t.Run("excessive decimals", func(t *testing.T) {
		cfg := valid()
		cfg.Pair.Token0.Decimals = 60
		require.ErrorContains(t, cfg.Validate(), "decimals")
	})

	t.Run("zero batch size", func(t *testing.T) {
		cfg := valid()
		cfg.Indexer.BatchSize = 0
		require.ErrorContains(t, cfg.Validate(), "batch_size")
	})
}
