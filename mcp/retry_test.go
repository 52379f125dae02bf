package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsWithoutRetryingOnFirstTry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	calls := 0
	attempts, err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsImmediatelyOnNonTransientError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	permanent := core.NewKernelError("x", core.ErrorKindMissingInput, errors.New("bad input"))
	calls := 0
	attempts, err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return permanent
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a non-transient error must not be retried")
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, permanent)
}

func TestRetryExhaustsMaxRetriesOnTransientError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	transient := core.NewKernelError("x", core.ErrorKindServiceUnavailable, errors.New("down"))
	calls := 0
	attempts, err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, calls, "the budget is one initial attempt plus max_retries")
	assert.Equal(t, cfg.MaxRetries+1, attempts)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	transient := core.NewKernelError("x", core.ErrorKindToolTimeout, errors.New("slow"))
	calls := 0
	attempts, err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 2 {
			return transient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, attempts)
}

func TestRetryAppliesExponentialBackoffBetweenAttempts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: 10 * time.Millisecond, BackoffFactor: 3, JitterFraction: 0}
	transient := core.NewKernelError("x", core.ErrorKindServiceUnavailable, errors.New("down"))

	var gaps []time.Duration
	last := time.Now()
	_, err := Retry(context.Background(), cfg, func(context.Context) error {
		now := time.Now()
		gaps = append(gaps, now.Sub(last))
		last = now
		return transient
	})
	require.Error(t, err)
	require.Len(t, gaps, 3)
	// gaps[0] is the time to the first call (~0); the backoff shows up
	// between subsequent calls, each roughly BackoffFactor longer than the
	// last (10ms, then 30ms), which a >=2x comparison tolerates scheduling
	// jitter on without flaking.
	assert.Greater(t, gaps[2], gaps[1]*2)
}

func TestRetryStopsOnContextCancellationDuringBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 50 * time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	transient := core.NewKernelError("x", core.ErrorKindServiceUnavailable, errors.New("down"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Retry(ctx, cfg, func(context.Context) error { return transient })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsTransientClassifiesByErrorKind(t *testing.T) {
	assert.True(t, IsTransient(core.NewKernelError("x", core.ErrorKindServiceUnavailable, errors.New("down"))))
	assert.True(t, IsTransient(core.NewKernelError("x", core.ErrorKindToolTimeout, errors.New("slow"))))
	assert.False(t, IsTransient(core.NewKernelError("x", core.ErrorKindMissingInput, errors.New("bad"))))
	assert.False(t, IsTransient(errors.New("unwrapped, not a KernelError")))
	assert.False(t, IsTransient(nil))
}
