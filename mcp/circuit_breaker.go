// Package mcp implements the MCP Runtime (spec.md §4.5): smart routing over
// tool candidates, a retry + fallback chain, a per-tool circuit breaker,
// replay records, and declarative pipelines.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
)

// CircuitState mirrors the teacher's resilience.CircuitState three-value
// state machine.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier decides whether an error should count toward the breaker's
// failure threshold, grounded on the teacher's DefaultErrorClassifier (which
// excludes configuration/not-found/state/canceled errors from tripping the
// breaker).
type ErrorClassifier func(error) bool

// DefaultErrorClassifier excludes client-side KernelErrors (missing_input,
// governance_block, approval_required) and context cancellation from
// tripping the breaker. KernelErrors of a core.IsRetryable kind
// (service_unavailable, tool_timeout) or of kind internal_error count, and so
// does any error that is not a KernelError.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var kerr *core.KernelError
	if errors.As(err, &kerr) {
		return core.IsRetryable(kerr.Kind) || kerr.Kind == core.ErrorKindInternal
	}
	return true
}

// StateChangeListener is notified on every transition, mirroring
// AddStateChangeListener.
type StateChangeListener func(name string, from, to CircuitState)

// BreakerConfig configures one named circuit breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before tripping open (default 3)
	Cooldown         time.Duration // time to stay open before half-open (default 300s)
	ErrorClassifier  ErrorClassifier
	Logger           core.Logger
}

// DefaultBreakerConfig returns spec.md §4.5's defaults: failure_threshold=3,
// cooldown_seconds=300.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		Cooldown:         300 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker is a per-tool health gate with exactly the three states and
// the exactly-one-half-open-probe semantics spec.md §4.5 calls for,
// grounded on the teacher's atomic-state, panic-recovering
// Execute/ExecuteWithTimeout shape — simplified from the teacher's sliding
// error-rate-window variant to the spec's literal consecutive-failure-count
// trigger (see DESIGN.md).
type CircuitBreaker struct {
	config BreakerConfig

	state             atomic.Int32
	consecutiveFails  atomic.Int32
	openedAt          atomic.Int64 // unix nano
	halfOpenInFlight  atomic.Bool
	listeners         []StateChangeListener
	mu                sync.Mutex // protects listeners slice only
}

// NewCircuitBreaker builds a breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 300 * time.Second
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultErrorClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	cb := &CircuitBreaker{config: cfg}
	cb.state.Store(int32(StateClosed))
	return cb
}

// RestoreState seeds the breaker from persisted state at startup — spec.md
// §4.5 "Breaker state is persisted so restarts don't forget tripped tools."
func (cb *CircuitBreaker) RestoreState(state CircuitState, openedAt time.Time, consecutiveFails int) {
	cb.state.Store(int32(state))
	cb.openedAt.Store(openedAt.UnixNano())
	cb.consecutiveFails.Store(int32(consecutiveFails))
}

// AddStateChangeListener registers a callback invoked on every transition.
func (cb *CircuitBreaker) AddStateChangeListener(l StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, l)
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	cb.mu.Lock()
	listeners := append([]StateChangeListener(nil), cb.listeners...)
	cb.mu.Unlock()
	for _, l := range listeners {
		l(cb.config.Name, from, to)
	}
}

// State returns the breaker's current state, first advancing open → half-open
// if the cooldown has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	state := CircuitState(cb.state.Load())
	if state == StateOpen {
		openedAt := time.Unix(0, cb.openedAt.Load())
		if time.Since(openedAt) >= cb.config.Cooldown {
			if cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				cb.notify(StateOpen, StateHalfOpen)
			}
			return StateHalfOpen
		}
	}
	return state
}

// Allow reports whether a call may proceed: closed always allows; open never
// allows; half-open admits exactly one in-flight probe.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateOpen:
		return false
	case StateHalfOpen:
		return cb.halfOpenInFlight.CompareAndSwap(false, true)
	default:
		return false
	}
}

// Execute runs fn inside a goroutine guarded by ctx, recovering panics into
// errors, matching the teacher's ExecuteWithTimeout shape. It returns
// core.ErrCircuitOpen without calling fn when the breaker rejects the call.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return core.NewKernelError("CircuitBreaker.Execute", core.ErrorKindServiceUnavailable, core.ErrCircuitOpen)
	}

	wasHalfOpen := cb.State() == StateHalfOpen
	if wasHalfOpen {
		defer cb.halfOpenInFlight.Store(false)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				done <- fmt.Errorf("panic in mcp tool call: %v\n%s", r, stack)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
		go func() { <-done }() // drain the goroutine's eventual result
	}

	cb.recordResult(err, wasHalfOpen)
	return err
}

func (cb *CircuitBreaker) recordResult(err error, wasHalfOpen bool) {
	counts := cb.config.ErrorClassifier(err)

	if wasHalfOpen {
		if !counts {
			cb.state.Store(int32(StateClosed))
			cb.consecutiveFails.Store(0)
			cb.notify(StateHalfOpen, StateClosed)
		} else {
			cb.openedAt.Store(time.Now().UnixNano())
			cb.state.Store(int32(StateOpen))
			cb.consecutiveFails.Store(0)
			cb.notify(StateHalfOpen, StateOpen)
		}
		return
	}

	if !counts {
		cb.consecutiveFails.Store(0)
		return
	}

	fails := cb.consecutiveFails.Add(1)
	if fails >= int32(cb.config.FailureThreshold) && cb.state.Load() == int32(StateClosed) {
		cb.openedAt.Store(time.Now().UnixNano())
		cb.state.Store(int32(StateOpen))
		cb.consecutiveFails.Store(0)
		cb.notify(StateClosed, StateOpen)
	}
}

// Snapshot returns the persistable state tuple (events/breaker.jsonl rows).
func (cb *CircuitBreaker) Snapshot() (state CircuitState, openedAt time.Time, consecutiveFails int) {
	return CircuitState(cb.state.Load()), time.Unix(0, cb.openedAt.Load()), int(cb.consecutiveFails.Load())
}
