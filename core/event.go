package core

import "time"

// Event is the unified telemetry record spec.md §4.9 asks every module
// boundary to emit: one line per kernel/ranker/autonomy/mcp/feedback
// operation, persisted to events/telemetry.jsonl and replayed into the
// observability dashboard and `diagnose`. It lives in core (not
// observability) so store can persist it without importing observability —
// store is a leaf the whole tree depends on, and observability is the
// top-level aggregator that depends on store, not the other way around.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Module    string    `json:"module"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	TraceID   string    `json:"trace_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	LatencyMS int64     `json:"latency_ms,omitempty"`
	ErrorCode ErrorKind `json:"error_code,omitempty"`
}

// EventStatus values for Event.Status; string-typed like ErrorKind so they
// round-trip through JSONL without a custom marshaler.
const (
	EventStatusOK    = "ok"
	EventStatusError = "error"
)
