// Package ranker implements the Strategy Ranker (spec.md §4.2): candidate
// generation over registered strategies, governance filtering, composite
// scoring, a stable deterministic tie-break, and ambiguity handling. It is a
// pure function over its inputs — Design Note "Score-weighted ranking with
// memory: keep weights as configuration ... no hidden context" — so it has
// no dependency on the store beyond the MemoryScorer it is handed.
package ranker

import (
	"context"
	"sort"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/governance"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// StrategyLister returns every registered strategy candidate for a task_kind,
// with base_score already computed (textual/keyword fit) but memory_score
// and composite_score left zero; Rank fills them in.
type StrategyLister interface {
	ListForTaskKind(kind kernel.TaskKind) []kernel.StrategyCandidate
}

// MemoryScorer supplies the smoothed historical success ratio for a
// strategy, drawn from EvaluationRecords inside the configured window —
// Open Question decision #2 in DESIGN.md: missing history returns the
// configured prior via ok=false.
type MemoryScorer interface {
	MemoryScore(ctx context.Context, strategyID string) (score float64, ok bool)
}

// GateChecker is the subset of governance.Policy the ranker needs at
// plan-time (re-checked again at exec-time by autonomy).
type GateChecker interface {
	CheckLayerAndMaturity(rc kernel.RunContext, candidate kernel.StrategyCandidate) governance.GateDecision
}

// OverrideSource supplies the Tuner's applied scope=strategy PolicyOverrides
// (spec.md §4.8 example 6: a demoted strategy "no longer selects ... as top
// candidate unless no alternative exists"). Optional — a nil OverrideSource
// leaves composite scores untouched.
type OverrideSource interface {
	StrategyOverride(strategyID string) (kernel.PolicyOverride, bool)
}

// Tracer starts a span around Plan; the returned func ends it, recording err
// if non-nil. Declared locally per this codebase's consumer-side interface
// idiom (spec.md §4.9: trace spans around ranker boundaries). Optional — a
// nil Tracer leaves Plan untraced.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func(error))
}

// Weights are the configurable composite-scoring coefficients, one set per
// profile.
type Weights struct {
	BaseWeight         float64
	MemoryWeight       float64
	DefaultMemoryPrior float64
	AmbiguityThreshold float64
	TopK               int
}

// Ranker is the concrete, stateless implementation of kernel.Ranker.
type Ranker struct {
	lister    StrategyLister
	memory    MemoryScorer
	gates     GateChecker
	weights   func(profile kernel.Profile) Weights
	overrides OverrideSource
	logger    core.Logger
	tracer    Tracer
}

// Option configures a Ranker at construction.
type Option func(*Ranker)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) Option {
	return func(r *Ranker) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			r.logger = aware.WithComponent("ranker")
			return
		}
		r.logger = logger
	}
}

// WithOverrides wires in the Tuner's applied strategy-scope overrides.
func WithOverrides(src OverrideSource) Option {
	return func(r *Ranker) { r.overrides = src }
}

// WithTracer wires a span tracer around Plan.
func WithTracer(tracer Tracer) Option {
	return func(r *Ranker) { r.tracer = tracer }
}

// New builds a Ranker. weightsFn resolves per-profile weights (strict plans
// may use a tighter ambiguity threshold than adaptive, for instance).
func New(lister StrategyLister, memory MemoryScorer, gates GateChecker, weightsFn func(kernel.Profile) Weights, opts ...Option) *Ranker {
	r := &Ranker{lister: lister, memory: memory, gates: gates, weights: weightsFn, logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// demotedScoreMultiplier and promotedScoreMultiplier implement spec.md
// §4.8's example 6: a demoted/advisor-scoped strategy is pushed to the
// bottom of the ordering but stays selectable if nothing else qualifies.
const (
	demotedScoreMultiplier  = 0.1
	promotedScoreMultiplier = 1.2
)

// Plan implements kernel.Ranker: candidate generation, governance filtering,
// composite scoring, tie-break, ambiguity handling, and top-K truncation.
func (r *Ranker) Plan(ctx context.Context, rc kernel.RunContext, spec kernel.TaskSpec) (plan kernel.ExecutionPlan, err error) {
	if r.tracer != nil {
		var end func(error)
		ctx, end = r.tracer.StartSpan(ctx, "ranker.plan")
		defer func() { end(err) }()
	}

	w := r.weights(rc.Profile)

	candidates := r.lister.ListForTaskKind(spec.TaskKind)

	filtered := candidates[:0:0]
	for _, c := range candidates {
		if !r.gates.CheckLayerAndMaturity(rc, c).Allow {
			continue
		}
		filtered = append(filtered, c)
	}

	for i := range filtered {
		memScore, ok := r.memory.MemoryScore(ctx, filtered[i].StrategyID)
		if !ok {
			memScore = w.DefaultMemoryPrior
		}
		filtered[i].MemoryScore = memScore
		filtered[i].CompositeScore = w.BaseWeight*filtered[i].BaseScore + w.MemoryWeight*memScore

		if r.overrides == nil {
			continue
		}
		if ov, ok := r.overrides.StrategyOverride(filtered[i].StrategyID); ok {
			switch ov.Value {
			case "demote", "advisor":
				filtered[i].CompositeScore *= demotedScoreMultiplier
			case "promote":
				filtered[i].CompositeScore *= promotedScoreMultiplier
			}
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		if a.RiskLevel != b.RiskLevel {
			return a.RiskLevel.Less(b.RiskLevel)
		}
		if a.Maturity != b.Maturity {
			return a.Maturity.Less(b.Maturity)
		}
		return a.StrategyID < b.StrategyID
	})

	ambiguous := false
	if rc.Profile == kernel.ProfileStrict && len(filtered) >= 2 {
		gap := filtered[0].CompositeScore - filtered[1].CompositeScore
		if gap < w.AmbiguityThreshold {
			ambiguous = true
		}
	}

	topK := w.TopK
	if topK <= 0 || topK > rc.MaxFallbackSteps {
		topK = rc.MaxFallbackSteps
	}
	if topK > len(filtered) {
		topK = len(filtered)
	}

	plan = kernel.ExecutionPlan{
		RunID:      rc.RunID,
		Candidates: append([]kernel.StrategyCandidate(nil), filtered[:topK]...),
		Ambiguous:  ambiguous,
	}
	return plan, nil
}
