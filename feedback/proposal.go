package feedback

import (
	"math"
	"sort"

	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// Plan is the bounded proposal set produced by one tuning cycle — either
// written as an override snapshot (apply=true) or returned for a human to
// review (apply=false), per spec.md §4.8 step 4.
type Plan struct {
	Proposals []kernel.PolicyOverride
	// Considered records every candidate action before max_actions/
	// min_priority_score truncation, so `policy show --dry-run` can report
	// what was dropped and why (no silent truncation).
	Considered []ScoredProposal
}

// ScoredProposal is one candidate action with the priority score that
// ranked it, before the bounded set is taken.
type ScoredProposal struct {
	Override kernel.PolicyOverride
	Priority float64
	Forced   bool
}

// BuildPlan turns per-strategy EvaluationRecords plus the breached-strategy
// set into a priority-ordered, bounded PolicyOverride proposal set (spec.md
// §4.8 steps 3 and 5). A forced demotion (P1/P2 breach) always survives
// truncation: it is sorted first and exempted from MinPriorityScore.
func BuildPlan(records []kernel.EvaluationRecord, breached map[string]bool, w Weights) Plan {
	var candidates []ScoredProposal

	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec.StrategyID] = true
		if breached[rec.StrategyID] {
			candidates = append(candidates, ScoredProposal{
				Override: demoteOverride(rec.StrategyID),
				Priority: 1.0,
				Forced:   true,
			})
			continue
		}
		switch rec.Recommendation {
		case kernel.RecommendPromote:
			candidates = append(candidates, ScoredProposal{
				Override: scopedOverride(rec.StrategyID, "promote"),
				Priority: priorityFor(rec, w.HighWatermark),
			})
		case kernel.RecommendDemote:
			candidates = append(candidates, ScoredProposal{
				Override: demoteOverride(rec.StrategyID),
				Priority: priorityFor(rec, w.LowWatermark),
			})
		}
	}

	// A breached strategy may have no entry in records (BuildPlan does not
	// require the two inputs to cover the same strategies) — still force it.
	for strategyID := range breached {
		if seen[strategyID] {
			continue
		}
		candidates = append(candidates, ScoredProposal{
			Override: demoteOverride(strategyID),
			Priority: 1.0,
			Forced:   true,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Forced != candidates[j].Forced {
			return candidates[i].Forced
		}
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Override.Key < candidates[j].Override.Key
	})

	plan := Plan{Considered: candidates}
	for _, c := range candidates {
		if !c.Forced && c.Priority < w.MinPriorityScore {
			continue
		}
		// Forced (P1/P2-breach) proposals are exempt from max_actions too:
		// step 5's "regardless of score" would otherwise let a pathological
		// cycle with more forced demotions than max_actions silently drop
		// some of them, which defeats the point of calling the rule strict.
		if !c.Forced && w.MaxActions > 0 && len(plan.Proposals) >= w.MaxActions {
			break
		}
		plan.Proposals = append(plan.Proposals, c.Override)
	}
	return plan
}

func scopedOverride(strategyID, value string) kernel.PolicyOverride {
	return kernel.PolicyOverride{Scope: kernel.ScopeStrategy, Key: strategyID, Value: value}
}

func demoteOverride(strategyID string) kernel.PolicyOverride {
	return scopedOverride(strategyID, "advisor")
}

// priorityFor is the absolute distance from the relevant watermark: the
// further a score sits past its threshold, the more urgently it should be
// acted on.
func priorityFor(rec kernel.EvaluationRecord, watermark float64) float64 {
	return math.Abs(rec.HealthScore - watermark)
}

// ActiveOverrideIndex is a lookup over one snapshot's strategy-scope
// entries. It implements ranker.OverrideSource; wired into ranker.New via
// ranker.WithOverrides at the composition root.
type ActiveOverrideIndex struct {
	byStrategy map[string]kernel.PolicyOverride
}

// NewActiveOverrideIndex snapshots overrides into a lookup keyed by
// strategy_id, ignoring scopes the ranker does not consult (profile,
// task_kind — those feed kernel.ProfileResolver instead).
func NewActiveOverrideIndex(overrides []kernel.PolicyOverride) *ActiveOverrideIndex {
	idx := &ActiveOverrideIndex{byStrategy: make(map[string]kernel.PolicyOverride)}
	for _, ov := range overrides {
		if ov.Scope == kernel.ScopeStrategy {
			idx.byStrategy[ov.Key] = ov
		}
	}
	return idx
}

// StrategyOverride implements ranker.OverrideSource.
func (idx *ActiveOverrideIndex) StrategyOverride(strategyID string) (kernel.PolicyOverride, bool) {
	ov, ok := idx.byStrategy[strategyID]
	return ov, ok
}
