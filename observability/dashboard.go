package observability

import (
	"context"
	"sort"
	"time"

	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/mcp"
	"github.com/LuisChen1Q84/agentkernel/store"
)

// DashboardSource is the subset of store.Store the periodic aggregation
// reports need.
type DashboardSource interface {
	FailureHotspots(ctx context.Context, since time.Time, topN int) []store.StrategyFailureCount
	EvaluationRecords(ctx context.Context) []kernel.EvaluationRecord
}

// SLORow is one strategy's success-rate/latency standing against its
// configured watermarks.
type SLORow struct {
	StrategyID   string  `json:"strategy_id"`
	SuccessRate  float64 `json:"success_rate"`
	P95LatencyMS int64   `json:"p95_latency_ms"`
	HealthScore  float64 `json:"health_score"`
	Adherent     bool    `json:"adherent"`
}

// BreakerRow is one tool's current circuit state for the dashboard.
type BreakerRow struct {
	Tool             string `json:"tool"`
	State            string `json:"state"`
	ConsecutiveFails int    `json:"consecutive_fails"`
}

// FailureTopN reports the topN strategy_ids with the most failed attempts
// since `since` (spec.md §4.9 "periodically aggregate failure TopN").
func FailureTopN(ctx context.Context, src DashboardSource, since time.Time, topN int) []store.StrategyFailureCount {
	return src.FailureHotspots(ctx, since, topN)
}

// SLOAdherence reports every strategy's latest EvaluationRecord against
// highWatermark, in strategy_id order.
func SLOAdherence(ctx context.Context, src DashboardSource, highWatermark float64) []SLORow {
	records := src.EvaluationRecords(ctx)
	out := make([]SLORow, 0, len(records))
	for _, rec := range records {
		out = append(out, SLORow{
			StrategyID:   rec.StrategyID,
			SuccessRate:  rec.SuccessRate,
			P95LatencyMS: rec.P95LatencyMS,
			HealthScore:  rec.HealthScore,
			Adherent:     rec.HealthScore >= highWatermark,
		})
	}
	return out
}

// BreakerDashboard snapshots every tool's circuit breaker state, ordered by
// tool name.
func BreakerDashboard(breakers map[string]*mcp.CircuitBreaker) []BreakerRow {
	out := make([]BreakerRow, 0, len(breakers))
	for name, b := range breakers {
		state, _, fails := b.Snapshot()
		out = append(out, BreakerRow{Tool: name, State: state.String(), ConsecutiveFails: fails})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}
