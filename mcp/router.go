package mcp

import "sort"

// RouterWeights are the smart-routing composite score coefficients, spec.md
// §4.5: `composite = α·intent_match + β·historical_success + γ·inv_latency
// − δ·cost`.
type RouterWeights struct {
	Alpha float64
	Beta  float64
	Gamma float64
	Delta float64
	TopK  int
}

// BreakerLookup reports whether a named tool's breaker currently allows
// calls, so the router can filter candidates by breaker state.
type BreakerLookup func(toolName string) bool

// Router ranks ToolCandidates by the composite score, filtered by breaker
// state.
type Router struct {
	weights RouterWeights
	allowed BreakerLookup
}

// NewRouter builds a Router over the given weights and breaker lookup.
func NewRouter(weights RouterWeights, allowed BreakerLookup) *Router {
	if weights.TopK <= 0 {
		weights.TopK = 3
	}
	if allowed == nil {
		allowed = func(string) bool { return true }
	}
	return &Router{weights: weights, allowed: allowed}
}

// Rank filters candidates whose breaker is open, scores the rest, and
// returns them ordered by composite score descending, truncated to TopK.
func (r *Router) Rank(candidates []ToolCandidate) []ToolCandidate {
	eligible := make([]ToolCandidate, 0, len(candidates))
	scores := make(map[string]float64, len(candidates))

	for _, c := range candidates {
		if !r.allowed(c.Tool.Name()) {
			continue
		}
		invLatency := 0.0
		if c.LatencyMS > 0 {
			invLatency = 1.0 / c.LatencyMS
		}
		score := r.weights.Alpha*c.IntentMatch +
			r.weights.Beta*c.HistoricalSuccess +
			r.weights.Gamma*invLatency -
			r.weights.Delta*c.Cost
		scores[c.Tool.Name()] = score
		eligible = append(eligible, c)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return scores[eligible[i].Tool.Name()] > scores[eligible[j].Tool.Name()]
	})

	if r.weights.TopK < len(eligible) {
		eligible = eligible[:r.weights.TopK]
	}
	return eligible
}
