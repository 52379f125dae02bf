package mcp

import (
	"context"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
)

// Tracer starts a span around Run; the returned func ends it, recording err
// if non-nil. Declared locally per this codebase's consumer-side interface
// idiom (spec.md §4.9: trace spans around mcp boundaries). Optional — a nil
// Tracer leaves Run untraced.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func(error))
}

// Chain drives the MCP Runtime's smart router + retry + fallback + circuit
// breaker pipeline over one call (spec.md §4.5).
type Chain struct {
	router   *Router
	breakers map[string]*CircuitBreaker
	retry    RetryConfig
	budget   time.Duration
	tracer   Tracer
}

// ChainOption configures a Chain after construction.
type ChainOption func(*Chain)

// WithTracer wires a span tracer around Run.
func WithTracer(tracer Tracer) ChainOption {
	return func(c *Chain) { c.tracer = tracer }
}

// NewChain builds a Chain over a router, the per-tool breaker set, a retry
// policy, and the whole-chain deadline budget.
func NewChain(router *Router, breakers map[string]*CircuitBreaker, retry RetryConfig, budget time.Duration, opts ...ChainOption) *Chain {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	c := &Chain{router: router, breakers: breakers, retry: retry, budget: budget}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChainResult carries the outcome plus the bookkeeping the attempt log
// needs (candidates tried, total retries).
type ChainResult struct {
	Result        ToolResult
	ToolName      string
	ToolsAttempted []string
	TotalRetries  int
}

// Breakers returns the chain's live per-tool breaker set, keyed by tool
// name — used by the observability dashboard to snapshot circuit state
// without duplicating the map at the composition root.
func (c *Chain) Breakers() map[string]*CircuitBreaker {
	return c.breakers
}

// Run ranks candidates, then walks them in order: each gets up to
// cfg.MaxRetries transient retries through its own circuit breaker; on
// exhaustion the chain advances to the next candidate. The whole call is
// bounded by the chain budget; once exceeded, Run stops and returns a
// tool_timeout failure whose ChainResult carries only the names of the tools
// attempted and the retry count. No partial tool result is kept.
func (c *Chain) Run(ctx context.Context, params map[string]interface{}, dryRun bool, candidates []ToolCandidate) (result ChainResult, err error) {
	if c.tracer != nil {
		var end func(error)
		ctx, end = c.tracer.StartSpan(ctx, "mcp.chain.run")
		defer func() { end(err) }()
	}

	ctx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	ranked := c.router.Rank(candidates)

	var lastErr error
	var attempted []string
	retries := 0

	for _, candidate := range ranked {
		name := candidate.Tool.Name()
		attempted = append(attempted, name)

		breaker := c.breakers[name]
		if breaker == nil {
			breaker = NewCircuitBreaker(DefaultBreakerConfig(name))
			c.breakers[name] = breaker
		}

		var result ToolResult
		attempts, err := Retry(ctx, c.retry, func(callCtx context.Context) error {
			return breaker.Execute(callCtx, func(execCtx context.Context) error {
				r, callErr := candidate.Tool.Call(execCtx, params, dryRun)
				if callErr != nil {
					return callErr
				}
				result = r
				return nil
			})
		})

		if attempts > 1 {
			retries += attempts - 1
		}
		if err == nil {
			return ChainResult{Result: result, ToolName: name, ToolsAttempted: attempted, TotalRetries: retries}, nil
		}

		lastErr = err

		select {
		case <-ctx.Done():
			return ChainResult{ToolsAttempted: attempted, TotalRetries: retries}, core.NewKernelError("Chain.Run", core.ErrorKindToolTimeout, ctx.Err())
		default:
		}
	}

	if lastErr == nil {
		lastErr = core.ErrServiceNotFound
	}
	return ChainResult{ToolsAttempted: attempted, TotalRetries: retries}, core.NewKernelError("Chain.Run", core.ErrorKindServiceUnavailable, lastErr)
}
