package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/pairstream/pairstream/internal/common"
	"github.com/pairstream/pairstream/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockNetError implements net.Error for testing
type mockNetError struct {
	msg     string
	timeout bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

func testRetryConfig(maxAttempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    common.NewDuration(10 * time.Millisecond),
		MaxBackoff:        common.NewDuration(100 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "network timeout", err: &mockNetError{msg: "network timeout", timeout: true}, retryable: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "connection reset", err: syscall.ECONNRESET, retryable: true},
		{name: "broken pipe", err: syscall.EPIPE, retryable: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "rate limit 429", err: errors.New("HTTP 429"), retryable: true},
		{name: "too many requests", err: errors.New("too many requests"), retryable: true},
		{name: "502 bad gateway", err: errors.New("502 bad gateway"), retryable: true},
		{name: "503 service unavailable", err: errors.New("503 Service Unavailable"), retryable: true},
		{name: "504 gateway timeout", err: errors.New("504 Gateway Timeout"), retryable: true},
		{name: "connection pool exhausted", err: errors.New("connection pool exhausted"), retryable: true},
		{name: "invalid parameter", err: errors.New("invalid parameter"), retryable: false},
		{name: "authentication failed", err: errors.New("401 Unauthorized"), retryable: false},
		{name: "not found", err: errors.New("404 Not Found"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func TestRetryableError_WrappedErrors(t *testing.T) {
	wrappedErr := fmt.Errorf("connection failed: %w", syscall.ECONNREFUSED)
	assert.True(t, retryableError(wrappedErr))

	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	assert.True(t, retryableError(netErr))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(1 * time.Second),
		MaxBackoff:        common.NewDuration(30 * time.Second),
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		name        string
		attempt     int
		minExpected time.Duration
		maxExpected time.Duration
	}{
		{name: "attempt 1 - no backoff", attempt: 1, minExpected: 0, maxExpected: 0},
		{name: "attempt 2 - initial backoff with jitter", attempt: 2, minExpected: 750 * time.Millisecond, maxExpected: 1250 * time.Millisecond},
		{name: "attempt 3 - exponential backoff", attempt: 3, minExpected: 1500 * time.Millisecond, maxExpected: 2500 * time.Millisecond},
		{name: "attempt 4", attempt: 4, minExpected: 3 * time.Second, maxExpected: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to account for jitter randomness
			for i := 0; i < 10; i++ {
				backoff := calculateBackoff(tt.attempt, cfg)
				assert.GreaterOrEqual(t, backoff, tt.minExpected)
				assert.LessOrEqual(t, backoff, tt.maxExpected)
			}
		})
	}
}

func TestCalculateBackoff_CappedAtMax(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(1 * time.Second),
		MaxBackoff:        common.NewDuration(5 * time.Second),
		BackoffMultiplier: 2.0,
	}

	backoff := calculateBackoff(10, cfg)
	assert.LessOrEqual(t, backoff, 6250*time.Millisecond, "backoff should be capped at max + 25% jitter")
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(3), "test_operation", func() error {
		callCount++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(5), "test_operation", func() error {
		callCount++
		if callCount < 3 {
			return &mockNetError{msg: "temporary error", timeout: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	callCount := 0
	expectedErr := errors.New("invalid parameter")
	err := retryWithBackoff(context.Background(), testRetryConfig(5), "test_operation", func() error {
		callCount++
		return expectedErr
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable error")
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, callCount, "should not retry non-retryable error")
}

func TestRetryWithBackoff_ExhaustedRetries(t *testing.T) {
	callCount := 0
	expectedErr := &mockNetError{msg: "persistent error", timeout: true}
	err := retryWithBackoff(context.Background(), testRetryConfig(3), "test_operation", func() error {
		callCount++
		return expectedErr
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 3, callCount)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := retryWithBackoff(ctx, testRetryConfig(5), "test_operation", func() error {
		callCount++
		if callCount == 2 {
			cancel()
		}
		return &mockNetError{msg: "temporary error", timeout: true}
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
	assert.Equal(t, 2, callCount)
}

func TestRetryWithBackoff_NilConfig(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), nil, "test_operation", func() error {
		callCount++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount, "should execute once without retry config")

	expectedErr := errors.New("some error")
	err = retryWithBackoff(context.Background(), nil, "test_operation", func() error {
		return expectedErr
	})
	assert.ErrorIs(t, err, expectedErr)
}
