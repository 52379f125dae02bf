package feedback

import (
	"context"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// Classify implements spec.md §4.8 step 2: promote at/above the high
// watermark, demote once the low watermark has been breached for at least
// ConsecutiveWindows windows (counting this one), collect-more-data
// otherwise — including the in-between "not yet enough consecutive breaches"
// case, which is deliberately folded into collect-more-data rather than
// inventing a fourth Recommendation value (Open Question decision,
// DESIGN.md).
//
// sampleCount is the window's non-skipped attempt count (Aggregate's
// success_rate denominator) — it is not carried on kernel.EvaluationRecord
// itself (that schema is fixed by spec.md §3), so Classify takes it
// alongside rec rather than re-deriving "insufficient data" from whether
// rec's fields happen to all be zero, which would misclassify a real
// all-failed, zero-latency window as insufficient.
func Classify(rec kernel.EvaluationRecord, sampleCount int, history []kernel.EvaluationRecord, w Weights) kernel.Recommendation {
	if sampleCount < w.MinSamples {
		return kernel.RecommendCollectMoreData
	}
	if rec.HealthScore >= w.HighWatermark {
		return kernel.RecommendPromote
	}
	if rec.HealthScore <= w.LowWatermark && consecutiveBreaches(rec, history, w) >= w.ConsecutiveWindows {
		return kernel.RecommendDemote
	}
	return kernel.RecommendCollectMoreData
}

// consecutiveBreaches counts how many windows, ending with rec and walking
// backward through history (oldest first), scored at/below LowWatermark
// without interruption.
func consecutiveBreaches(rec kernel.EvaluationRecord, history []kernel.EvaluationRecord, w Weights) int {
	ordered := append(append([]kernel.EvaluationRecord(nil), history...), rec)
	count := 0
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].HealthScore > w.LowWatermark {
			break
		}
		count++
	}
	return count
}

// P1/P2 are the two forced-demotion error-kind tiers spec.md §4.8 step 5
// names without defining (an Open Question, decided here and recorded in
// DESIGN.md): P1 is a correctness/governance breach that should never
// recur regardless of score; P2 is an operational breach serious enough on
// its own, within the lookback window, to force the same demotion.
var p1ErrorKinds = map[core.ErrorKind]bool{
	core.ErrorKindContractViolation: true,
	core.ErrorKindPolicyViolation:   true,
}

const p2BreachThreshold = 2

// breachedStrategies scans attempts within w.BreachLookback of now for the
// P1/P2 forced-demotion patterns and returns the set of strategy_ids that
// must be demoted "regardless of score" (spec.md §4.8 step 5).
func (t *Tuner) breachedStrategies(_ context.Context, attempts []kernel.ExecutionAttempt, windowStart time.Time) map[string]bool {
	since := t.clock.Now().Add(-t.weights.BreachLookback)
	if since.Before(windowStart) {
		since = windowStart
	}

	breached := map[string]bool{}
	p2Count := map[string]int{}
	for _, att := range attempts {
		if att.StartedAt.Before(since) {
			continue
		}
		if att.Status != kernel.AttemptFailed && att.Status != kernel.AttemptAborted {
			continue
		}
		kind := core.ErrorKind(att.ErrorKind)
		if p1ErrorKinds[kind] {
			breached[att.StrategyID] = true
			continue
		}
		if kind == core.ErrorKindServiceUnavailable || kind == core.ErrorKindToolTimeout {
			p2Count[att.StrategyID]++
			if p2Count[att.StrategyID] >= p2BreachThreshold {
				breached[att.StrategyID] = true
			}
		}
	}
	return breached
}
