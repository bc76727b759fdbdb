package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		wantErr     bool
	}{
		{name: "debug development", level: "debug", development: true},
		{name: "info production", level: "info", development: false},
		{name: "warn", level: "warn", development: false},
		{name: "error", level: "error", development: true},
		{name: "invalid level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.development)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestNewNopLogger(t *testing.T) {
	log := NewNopLogger()
	require.NotNil(t, log)
	// Must not panic.
	log.Infof("discarded %d", 1)
	log.Errorw("discarded", "key", "value")
}

func TestWithComponent(t *testing.T) {
	log := NewNopLogger()
	child := log.WithComponent("reorg-detector")
	require.NotNil(t, child)
	assert.NotSame(t, log, child)
}

func TestGetDefaultLogger(t *testing.T) {
	first := GetDefaultLogger()
	require.NotNil(t, first)
	assert.Same(t, first, GetDefaultLogger())

	replacement := NewNopLogger()
	SetDefaultLogger(replacement)
	assert.Same(t, replacement, GetDefaultLogger())
}
