package mcp

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
)

// RetryConfig configures the transient-retry chain, grounded on the
// teacher's resilience.RetryConfig shape but defaulted to spec.md §4.5's
// literal values (max_retries=2, base 200ms, factor 2, jitter ±20%).
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	JitterFraction float64
}

// DefaultRetryConfig returns spec.md §4.5's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialDelay:   200 * time.Millisecond,
		BackoffFactor:  2.0,
		JitterFraction: 0.2,
	}
}

// IsTransient classifies an error as retryable per spec.md §4.5 ("timeout,
// connection-reset, 5xx-equivalent"), reusing core's ErrorKind taxonomy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var kerr *core.KernelError
	if ok := asKernelError(err, &kerr); ok {
		return core.IsRetryable(kerr.Kind)
	}
	return false
}

func asKernelError(err error, target **core.KernelError) bool {
	for err != nil {
		if k, ok := err.(*core.KernelError); ok {
			*target = k
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Retry executes fn, retrying up to cfg.MaxRetries times when IsTransient(err)
// with exponential backoff and bounded jitter, context-cancellable sleep —
// grounded on the teacher's resilience.Retry loop shape.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) (attempts int, err error) {
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		default:
		}

		attempts++
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if !IsTransient(err) {
			return attempts, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		sleep := withJitter(delay, cfg.JitterFraction)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
	}

	return attempts, core.NewKernelError("mcp.Retry", core.ErrorKindServiceUnavailable,
		fmt.Errorf("%w after %d attempts: %v", core.ErrMaxRetriesExceeded, attempts, err))
}

// withJitter adds up to ±fraction of d, bounded so the result is never
// negative.
func withJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * fraction * float64(d)
	jittered := float64(d) + delta
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
