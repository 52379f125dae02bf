package observability

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/LuisChen1Q84/agentkernel/mcp"
)

// Health aggregates this process's own vitals for the `/healthz`-style
// endpoint, grounded on the teacher's telemetry.GetHealth(): enabled flags,
// circuit state, and uptime, adapted from a single global telemetry
// circuit breaker to this module's per-tool breaker set.
type Health struct {
	TracingEnabled bool                     `json:"tracing_enabled"`
	MetricsEnabled bool                     `json:"metrics_enabled"`
	Uptime         string                   `json:"uptime"`
	OpenBreakers   []string                 `json:"open_breakers,omitempty"`
	BreakerStates  map[string]string        `json:"breaker_states"`
}

// HealthReporter computes a Health snapshot on demand.
type HealthReporter struct {
	startedAt      time.Time
	tracingEnabled bool
	metricsEnabled bool
	breakers       func() map[string]*mcp.CircuitBreaker
}

// NewHealthReporter builds a reporter; breakers is usually chain.Breakers.
func NewHealthReporter(startedAt time.Time, tracingEnabled, metricsEnabled bool, breakers func() map[string]*mcp.CircuitBreaker) *HealthReporter {
	return &HealthReporter{startedAt: startedAt, tracingEnabled: tracingEnabled, metricsEnabled: metricsEnabled, breakers: breakers}
}

// Snapshot computes the current Health.
func (h *HealthReporter) Snapshot() Health {
	states := map[string]string{}
	var open []string
	if h.breakers != nil {
		for name, b := range h.breakers() {
			state, _, _ := b.Snapshot()
			states[name] = state.String()
			if state == mcp.StateOpen {
				open = append(open, name)
			}
		}
	}
	return Health{
		TracingEnabled: h.tracingEnabled,
		MetricsEnabled: h.metricsEnabled,
		Uptime:         time.Since(h.startedAt).String(),
		OpenBreakers:   open,
		BreakerStates:  states,
	}
}

// Handler serves the Health snapshot as JSON, returning 503 whenever any
// breaker is open (mirrors the teacher's HealthHandler status-code rules).
func (h *HealthReporter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := h.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if len(snap.OpenBreakers) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(snap)
	}
}
