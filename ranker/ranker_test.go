package ranker

import (
	"context"
	"testing"

	"github.com/LuisChen1Q84/agentkernel/governance"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	candidates []kernel.StrategyCandidate
}

func (f fakeLister) ListForTaskKind(kernel.TaskKind) []kernel.StrategyCandidate {
	out := make([]kernel.StrategyCandidate, len(f.candidates))
	copy(out, f.candidates)
	return out
}

type fakeMemory struct {
	scores map[string]float64
}

func (f fakeMemory) MemoryScore(_ context.Context, strategyID string) (float64, bool) {
	s, ok := f.scores[strategyID]
	return s, ok
}

type allowGates struct{}

func (allowGates) CheckLayerAndMaturity(kernel.RunContext, kernel.StrategyCandidate) governance.GateDecision {
	return governance.GateDecision{Allow: true}
}

func testWeights(kernel.Profile) Weights {
	return Weights{BaseWeight: 0.6, MemoryWeight: 0.4, DefaultMemoryPrior: 0.5, AmbiguityThreshold: 0.05, TopK: 3}
}

func TestPlanCompositeScoreAndTieBreak(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "b-strategy", BaseScore: 0.5, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
		{StrategyID: "a-strategy", BaseScore: 0.5, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
	}
	r := New(fakeLister{candidates}, fakeMemory{scores: map[string]float64{}}, allowGates{}, testWeights)

	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileAdaptive, MaxFallbackSteps: 3}
	plan, err := r.Plan(context.Background(), rc, kernel.TaskSpec{TaskKind: kernel.TaskKindResearch})
	require.NoError(t, err)

	require.Len(t, plan.Candidates, 2)
	assert.Equal(t, "a-strategy", plan.Candidates[0].StrategyID, "equal composite scores tie-break on strategy_id lexicographically")
}

func TestPlanOrdersByCompositeDescending(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "weak", BaseScore: 0.2, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
		{StrategyID: "strong", BaseScore: 0.9, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
	}
	r := New(fakeLister{candidates}, fakeMemory{scores: map[string]float64{}}, allowGates{}, testWeights)
	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileAdaptive, MaxFallbackSteps: 3}

	plan, err := r.Plan(context.Background(), rc, kernel.TaskSpec{TaskKind: kernel.TaskKindResearch})
	require.NoError(t, err)
	assert.Equal(t, "strong", plan.Candidates[0].StrategyID)
}

type fakeOverrides struct {
	byStrategy map[string]kernel.PolicyOverride
}

func (f fakeOverrides) StrategyOverride(strategyID string) (kernel.PolicyOverride, bool) {
	ov, ok := f.byStrategy[strategyID]
	return ov, ok
}

func TestPlanDemotedStrategyFallsToBottomButStaysSelectable(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "flaky", BaseScore: 0.9, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
		{StrategyID: "solid", BaseScore: 0.5, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
	}
	overrides := fakeOverrides{byStrategy: map[string]kernel.PolicyOverride{
		"flaky": {Scope: kernel.ScopeStrategy, Key: "flaky", Value: "advisor"},
	}}
	r := New(fakeLister{candidates}, fakeMemory{scores: map[string]float64{}}, allowGates{}, testWeights, WithOverrides(overrides))
	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileAdaptive, MaxFallbackSteps: 3}

	plan, err := r.Plan(context.Background(), rc, kernel.TaskSpec{TaskKind: kernel.TaskKindResearch})
	require.NoError(t, err)
	require.Len(t, plan.Candidates, 2)
	assert.Equal(t, "solid", plan.Candidates[0].StrategyID, "demoted strategy must rank below an undemoted alternative")
	assert.Equal(t, "flaky", plan.Candidates[1].StrategyID, "demoted strategy stays in the plan as a last resort")
}

func TestPlanRiskLevelBreaksTieBeforeMaturity(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "risky", BaseScore: 0.5, RiskLevel: kernel.RiskHigh, Maturity: kernel.MaturityStable},
		{StrategyID: "safe", BaseScore: 0.5, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityExperimental},
	}
	r := New(fakeLister{candidates}, fakeMemory{scores: map[string]float64{}}, allowGates{}, testWeights)
	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileAdaptive, MaxFallbackSteps: 3}

	plan, err := r.Plan(context.Background(), rc, kernel.TaskSpec{TaskKind: kernel.TaskKindResearch})
	require.NoError(t, err)
	assert.Equal(t, "safe", plan.Candidates[0].StrategyID)
}

func TestPlanMarksAmbiguousUnderStrictWhenGapBelowThreshold(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "a", BaseScore: 0.51, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
		{StrategyID: "b", BaseScore: 0.50, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
	}
	r := New(fakeLister{candidates}, fakeMemory{scores: map[string]float64{}}, allowGates{}, testWeights)
	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileStrict, MaxFallbackSteps: 1}

	plan, err := r.Plan(context.Background(), rc, kernel.TaskSpec{TaskKind: kernel.TaskKindResearch})
	require.NoError(t, err)
	assert.True(t, plan.Ambiguous)
}

func TestPlanAdaptiveIgnoresAmbiguityThreshold(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "a", BaseScore: 0.51, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
		{StrategyID: "b", BaseScore: 0.50, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
	}
	r := New(fakeLister{candidates}, fakeMemory{scores: map[string]float64{}}, allowGates{}, testWeights)
	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileAdaptive, MaxFallbackSteps: 3}

	plan, err := r.Plan(context.Background(), rc, kernel.TaskSpec{TaskKind: kernel.TaskKindResearch})
	require.NoError(t, err)
	assert.False(t, plan.Ambiguous)
}

func TestPlanIsDeterministicAcrossRuns(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "x", BaseScore: 0.4, RiskLevel: kernel.RiskMedium, Maturity: kernel.MaturityBeta},
		{StrategyID: "y", BaseScore: 0.6, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
		{StrategyID: "z", BaseScore: 0.6, RiskLevel: kernel.RiskLow, Maturity: kernel.MaturityStable},
	}
	memory := fakeMemory{scores: map[string]float64{"x": 0.7, "y": 0.5, "z": 0.5}}
	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileAdaptive, MaxFallbackSteps: 3}
	spec := kernel.TaskSpec{TaskKind: kernel.TaskKindResearch}

	r1 := New(fakeLister{candidates}, memory, allowGates{}, testWeights)
	plan1, err := r1.Plan(context.Background(), rc, spec)
	require.NoError(t, err)

	r2 := New(fakeLister{candidates}, memory, allowGates{}, testWeights)
	plan2, err := r2.Plan(context.Background(), rc, spec)
	require.NoError(t, err)

	assert.Equal(t, plan1, plan2)
}

func TestPlanExcludesCandidatesFailingGovernanceGate(t *testing.T) {
	candidates := []kernel.StrategyCandidate{
		{StrategyID: "blocked", BaseScore: 0.9, Maturity: kernel.MaturityExperimental},
	}
	r := New(fakeLister{candidates}, fakeMemory{scores: map[string]float64{}}, rejectAllGates{}, testWeights)
	rc := kernel.RunContext{RunID: "run-1", Profile: kernel.ProfileStrict, MaxFallbackSteps: 1}

	plan, err := r.Plan(context.Background(), rc, kernel.TaskSpec{TaskKind: kernel.TaskKindResearch})
	require.NoError(t, err)
	assert.Empty(t, plan.Candidates)
}

type rejectAllGates struct{}

func (rejectAllGates) CheckLayerAndMaturity(kernel.RunContext, kernel.StrategyCandidate) governance.GateDecision {
	return governance.GateDecision{Allow: false}
}
