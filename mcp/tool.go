package mcp

import "context"

// ToolResult is what a Tool call returns on success.
type ToolResult struct {
	Artifacts map[string]interface{}
	Retryable bool
}

// Tool is the uniform interface every tool transport implements — spec.md
// §4.5/§6's tool-invocation contract (server, tool, params, dry_run in;
// result-or-error-with-retryable out).
type Tool interface {
	Name() string
	Call(ctx context.Context, params map[string]interface{}, dryRun bool) (ToolResult, error)
}

// ToolCandidate pairs a Tool with the routing metadata the smart router
// scores it on.
type ToolCandidate struct {
	Tool             Tool
	IntentMatch      float64 // 0..1, how well this tool matches the requested intent
	HistoricalSuccess float64 // 0..1, smoothed success ratio
	LatencyMS        float64 // observed average latency
	Cost             float64 // relative cost unit
}
