// Package observability implements spec.md §4.9: unified telemetry events,
// periodic failure/SLO/breaker dashboards, and the `diagnose` graph walk. It
// sits above kernel/ranker/autonomy/mcp/store/registry as a composition-root
// aggregator rather than an execution-path component, so — unlike those
// packages, which declare narrow consumer-side interfaces to avoid import
// cycles — it imports their concrete types directly.
package observability

import (
	"context"

	"github.com/LuisChen1Q84/agentkernel/core"
)

// EventSink persists a telemetry Event; implemented by store.Store via
// AppendTelemetryEvent.
type EventSink interface {
	AppendTelemetryEvent(ctx context.Context, ev core.Event) error
}

// Recorder emits telemetry events to a sink and mirrors them through a
// logger, matching the teacher's pattern of always logging even when a
// downstream exporter is absent or fails.
type Recorder struct {
	sink   EventSink
	logger core.Logger
	clock  core.Clock
}

// RecorderOption configures a Recorder at construction.
type RecorderOption func(*Recorder)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) RecorderOption {
	return func(r *Recorder) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			r.logger = aware.WithComponent("observability")
			return
		}
		r.logger = logger
	}
}

// WithClock overrides the clock used to stamp events, for deterministic
// tests.
func WithClock(clock core.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

// NewRecorder builds a Recorder over a sink (nil is a valid no-op sink: the
// event is still logged, just not persisted).
func NewRecorder(sink EventSink, opts ...RecorderOption) *Recorder {
	r := &Recorder{sink: sink, logger: &core.NoOpLogger{}, clock: core.SystemClock{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record emits one telemetry event: `ts, module, action, status, trace_id,
// run_id, latency_ms, error_code` per spec.md §4.9. errKind is empty on
// success.
func (r *Recorder) Record(ctx context.Context, module, action, runID, traceID string, latencyMS int64, errKind core.ErrorKind) {
	status := core.EventStatusOK
	if errKind != "" {
		status = core.EventStatusError
	}
	ev := core.Event{
		Timestamp: r.clock.Now(),
		Module:    module,
		Action:    action,
		Status:    status,
		TraceID:   traceID,
		RunID:     runID,
		LatencyMS: latencyMS,
		ErrorCode: errKind,
	}

	fields := map[string]interface{}{
		"module": module, "action": action, "status": status,
		"run_id": runID, "trace_id": traceID, "latency_ms": latencyMS,
	}
	if errKind != "" {
		fields["error_code"] = string(errKind)
		r.logger.ErrorWithContext(ctx, "telemetry event", fields)
	} else {
		r.logger.InfoWithContext(ctx, "telemetry event", fields)
	}

	if r.sink == nil {
		return
	}
	if err := r.sink.AppendTelemetryEvent(ctx, ev); err != nil {
		r.logger.ErrorWithContext(ctx, "persist telemetry event failed", map[string]interface{}{"error": err.Error()})
	}
}
