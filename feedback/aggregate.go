package feedback

import (
	"math"
	"sort"
	"time"

	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// Window pairs the persisted EvaluationRecord with the sample count it was
// built from — SampleCount never crosses the EvaluationStore boundary
// (kernel.EvaluationRecord's fields are fixed by spec.md §3), but Classify
// needs it to tell "legitimately all-zero" from "not enough data" apart.
type Window struct {
	Record      kernel.EvaluationRecord
	SampleCount int
}

// Aggregate groups attempts by strategy_id and reduces each group to one
// Window over [windowStart, windowEnd] — spec.md §4.8 step 1. Skipped
// attempts (governance/input-bind eligibility, not invocation outcomes —
// core.IsSkip) are excluded from success_rate and p95 latency, the same
// "eligibility is not error" distinction the Execution Loop draws.
func Aggregate(attempts []kernel.ExecutionAttempt, windowStart, windowEnd time.Time, w Weights) []Window {
	byStrategy := map[string][]kernel.ExecutionAttempt{}
	for _, att := range attempts {
		if att.Status == kernel.AttemptSkipped {
			continue
		}
		byStrategy[att.StrategyID] = append(byStrategy[att.StrategyID], att)
	}

	ids := make([]string, 0, len(byStrategy))
	for id := range byStrategy {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Window, 0, len(ids))
	for _, id := range ids {
		out = append(out, aggregateOne(id, byStrategy[id], windowStart, windowEnd, w))
	}
	return out
}

func aggregateOne(strategyID string, attempts []kernel.ExecutionAttempt, windowStart, windowEnd time.Time, w Weights) Window {
	var succeeded int
	var withFallback int
	latencies := make([]int64, 0, len(attempts))
	for _, att := range attempts {
		if att.Status == kernel.AttemptSucceeded {
			succeeded++
		}
		if att.Telemetry.FallbacksUsed > 0 {
			withFallback++
		}
		latencies = append(latencies, att.Telemetry.LatencyMS)
	}

	total := len(attempts)
	rec := kernel.EvaluationRecord{
		StrategyID:  strategyID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
	if total == 0 {
		return Window{Record: rec}
	}

	rec.SuccessRate = float64(succeeded) / float64(total)
	rec.FallbackRate = float64(withFallback) / float64(total)
	rec.P95LatencyMS = percentile(latencies, 0.95)
	rec.HealthScore = HealthScore(rec, w)
	return Window{Record: rec, SampleCount: total}
}

// percentile returns the nearest-rank p-th percentile of vs (0<p<=1),
// without mutating the caller's slice. Nearest-rank here takes
// ceil(p*n): for n=3, p=0.95 that's rank 3 (the max), matching the
// conventional definition used by the monitoring stacks this ports from.
func percentile(vs []int64, p float64) int64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]int64(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// HealthScore is the weighted combination spec.md §4.8 step 2 calls for:
// success pulls the score up, latency (normalized against a configured
// ceiling) and fallback usage pull it down.
func HealthScore(rec kernel.EvaluationRecord, w Weights) float64 {
	latencyPenalty := 0.0
	if w.LatencyCeilingMS > 0 {
		latencyPenalty = float64(rec.P95LatencyMS) / float64(w.LatencyCeilingMS)
		if latencyPenalty > 1 {
			latencyPenalty = 1
		}
	}
	return w.SuccessWeight*rec.SuccessRate - w.LatencyWeight*latencyPenalty - w.FallbackWeight*rec.FallbackRate
}
