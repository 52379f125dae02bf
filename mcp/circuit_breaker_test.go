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

func TestCircuitBreakerStaysClosedUnderThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", FailureThreshold: 3, Cooldown: time.Minute})
	failing := errors.New("boom")

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return failing })
		assert.ErrorIs(t, err, failing)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerTripsOpenAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", FailureThreshold: 3, Cooldown: time.Minute})
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	var kerr *core.KernelError
	require.ErrorAs(t, err, &kerr)
	assert.ErrorIs(t, kerr.Unwrap(), core.ErrCircuitOpen)
}

func TestCircuitBreakerResetsConsecutiveFailuresOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", FailureThreshold: 3, Cooldown: time.Minute})
	failing := errors.New("boom")

	_ = cb.Execute(context.Background(), func(context.Context) error { return failing })
	_ = cb.Execute(context.Background(), func(context.Context) error { return failing })
	_ = cb.Execute(context.Background(), func(context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(context.Context) error { return failing })
	_ = cb.Execute(context.Background(), func(context.Context) error { return failing })

	assert.Equal(t, StateClosed, cb.State(), "the intervening success must reset the consecutive-failure count")
}

func TestCircuitBreakerHalfOpenAfterCooldownAndClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	failing := errors.New("boom")

	_ = cb.Execute(context.Background(), func(context.Context) error { return failing })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	failing := errors.New("boom")

	_ = cb.Execute(context.Background(), func(context.Context) error { return failing })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error { return failing })
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerHalfOpenAdmitsOnlyOneProbe(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	assert.True(t, cb.Allow(), "the first probe must be admitted")
	assert.False(t, cb.Allow(), "a second concurrent probe must be rejected while the first is in flight")
}

func TestCircuitBreakerRestoreStateSeedsFromPersistence(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig("t"))
	cb.RestoreState(StateOpen, time.Now(), 3)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerNotifiesListenersOnTransition(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", FailureThreshold: 1, Cooldown: time.Minute})
	var transitions [][2]CircuitState
	cb.AddStateChangeListener(func(_ string, from, to CircuitState) {
		transitions = append(transitions, [2]CircuitState{from, to})
	})

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	require.Len(t, transitions, 1)
	assert.Equal(t, StateClosed, transitions[0][0])
	assert.Equal(t, StateOpen, transitions[0][1])
}

func TestDefaultErrorClassifierIgnoresNonRetryableKinds(t *testing.T) {
	missingInput := core.NewKernelError("x", core.ErrorKindMissingInput, errors.New("missing"))
	assert.False(t, DefaultErrorClassifier(missingInput))

	unavailable := core.NewKernelError("x", core.ErrorKindServiceUnavailable, errors.New("down"))
	assert.True(t, DefaultErrorClassifier(unavailable))
}

func TestCircuitBreakerExecuteRecoversPanicAsError(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig("t"))
	err := cb.Execute(context.Background(), func(context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}
