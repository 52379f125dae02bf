package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments emitted around run/attempt/tool
// boundaries. The teacher's own pkg/telemetry.setupMeterProvider leaves a
// `// TODO: Add Prometheus exporter configuration` and falls back to the
// global OTEL meter provider with no exporter wired at all; since this
// module's go.mod carries client_golang as a direct dependency, metrics here
// go straight through promauto instead of standing up an
// OTEL metric pipeline with nothing consuming it (DESIGN.md).
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runLatency     *prometheus.HistogramVec
	attemptsTotal  *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
}

// NewMetrics registers a fresh instrument set on its own registry (rather
// than the global default) so repeated construction in tests never panics on
// duplicate registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentkernel_runs_total",
			Help: "Completed runs by outcome.",
		}, []string{"outcome"}),
		runLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentkernel_run_latency_ms",
			Help:    "Total run latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 12),
		}, []string{"outcome"}),
		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentkernel_attempts_total",
			Help: "Execution attempts by strategy and status.",
		}, []string{"strategy_id", "status"}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentkernel_tool_calls_total",
			Help: "MCP tool calls by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentkernel_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open, per mcp.CircuitState).",
		}, []string{"tool"}),
	}
}

// RecordRun records one sealed run's outcome and total latency.
func (m *Metrics) RecordRun(outcome string, latencyMS int64) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runLatency.WithLabelValues(outcome).Observe(float64(latencyMS))
}

// RecordAttempt records one ExecutionAttempt's terminal status.
func (m *Metrics) RecordAttempt(strategyID, status string) {
	m.attemptsTotal.WithLabelValues(strategyID, status).Inc()
}

// RecordToolCall records one MCP tool invocation outcome.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// SetBreakerState publishes a breaker's current state (0/1/2 per
// mcp.CircuitState's own ordering) as a gauge.
func (m *Metrics) SetBreakerState(tool string, state int) {
	m.breakerState.WithLabelValues(tool).Set(float64(state))
}

// Handler returns the Prometheus scrape endpoint for this instrument set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
