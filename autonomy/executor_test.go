package autonomy

import (
	"context"
	"testing"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/governance"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/mcp"
	"github.com/LuisChen1Q84/agentkernel/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServices struct {
	results map[string]registry.ServiceResult
	errs    map[string]error
	calls   []string
}

func (f *fakeServices) Call(_ context.Context, serviceName string, _ map[string]interface{}, _ kernel.RunContext) (registry.ServiceResult, error) {
	f.calls = append(f.calls, serviceName)
	if err, ok := f.errs[serviceName]; ok {
		return registry.ServiceResult{}, err
	}
	return f.results[serviceName], nil
}

type fakeTools struct{}

func (fakeTools) Run(context.Context, map[string]interface{}, bool, []mcp.ToolCandidate) (mcp.ChainResult, error) {
	return mcp.ChainResult{}, core.NewKernelError("fakeTools.Run", core.ErrorKindServiceUnavailable, core.ErrServiceNotFound)
}

type fakeRecorder struct {
	attempts []kernel.ExecutionAttempt
	sealed   *kernel.RunSummary
	bundle   *kernel.DeliveryBundle
}

func (r *fakeRecorder) AppendAttempt(_ context.Context, att kernel.ExecutionAttempt) error {
	r.attempts = append(r.attempts, att)
	return nil
}

func (r *fakeRecorder) SealRun(_ context.Context, summary kernel.RunSummary, bundle kernel.DeliveryBundle) error {
	r.sealed = &summary
	r.bundle = &bundle
	return nil
}

func (r *fakeRecorder) PutArtifact(_ context.Context, kind kernel.ArtifactKind, payload []byte, producedBy string) (kernel.ArtifactRef, error) {
	return kernel.ArtifactRef{URI: "artifacts/ab/fake", Kind: kind, SHA256: "fake", SizeBytes: int64(len(payload)), ProducedBy: producedBy}, nil
}

func (r *fakeRecorder) VerifyArtifact(_ context.Context, _ kernel.ArtifactRef) error {
	return nil
}

func baseRunContext() kernel.RunContext {
	return kernel.RunContext{
		RunID:            "run-1",
		TaskID:           "task-1",
		AllowedLayers:    []string{"stable"},
		MaxRiskLevel:     2,
		MaxFallbackSteps: 3,
	}
}

func TestExecutorSealsSucceededOnFirstCandidate(t *testing.T) {
	services := &fakeServices{results: map[string]registry.ServiceResult{
		"mckinsey-ppt": {Outputs: map[string]interface{}{"outline": "ok"}, Artifacts: []registry.ArtifactPayload{{Kind: kernel.ArtifactJSON, Payload: []byte("ok")}}},
	}}
	recorder := &fakeRecorder{}
	exec := NewExecutor(governance.NoOpPolicy{}, services, fakeTools{}, recorder)

	plan := kernel.ExecutionPlan{RunID: "run-1", Candidates: []kernel.StrategyCandidate{
		{StrategyID: "mckinsey-ppt", ServiceBinding: "mckinsey-ppt@v1", RequiredInputs: []kernel.ParamSchema{{Name: "topic", Required: true}}},
	}}
	spec := kernel.TaskSpec{TaskID: "task-1", TaskKind: kernel.TaskKindPresentation, ExplicitParams: map[string]interface{}{"topic": "growth"}}

	summary, err := exec.Run(context.Background(), baseRunContext(), plan, spec)
	require.NoError(t, err)
	assert.Equal(t, kernel.OutcomeSucceeded, summary.Outcome)
	assert.Equal(t, "mckinsey-ppt", summary.ChosenStrategy)
	require.NotNil(t, recorder.sealed)
	assert.Len(t, recorder.attempts, 1)
	assert.Equal(t, kernel.AttemptSucceeded, recorder.attempts[0].Status)
}

func TestExecutorAdvancesPastFailureToNextCandidate(t *testing.T) {
	services := &fakeServices{
		errs: map[string]error{
			"research-brief": core.NewKernelError("Registry.Call", core.ErrorKindServiceUnavailable, core.ErrServiceNotFound),
		},
		results: map[string]registry.ServiceResult{
			"backup-brief": {Outputs: map[string]interface{}{"summary": "ok"}, Artifacts: []registry.ArtifactPayload{{Kind: kernel.ArtifactMD, Payload: []byte("ok")}}},
		},
	}
	recorder := &fakeRecorder{}
	exec := NewExecutor(governance.NoOpPolicy{}, services, fakeTools{}, recorder)

	plan := kernel.ExecutionPlan{RunID: "run-1", Candidates: []kernel.StrategyCandidate{
		{StrategyID: "research-brief", ServiceBinding: "research-brief@v1", RequiredInputs: []kernel.ParamSchema{{Name: "query", Required: true}}},
		{StrategyID: "backup-brief", ServiceBinding: "backup-brief@v1", RequiredInputs: []kernel.ParamSchema{{Name: "query", Required: true}}},
	}}
	spec := kernel.TaskSpec{TaskID: "task-1", TaskKind: kernel.TaskKindResearch, ExplicitParams: map[string]interface{}{"query": "q"}}

	summary, err := exec.Run(context.Background(), baseRunContext(), plan, spec)
	require.NoError(t, err)
	assert.Equal(t, kernel.OutcomeSucceeded, summary.Outcome)
	assert.Equal(t, "backup-brief", summary.ChosenStrategy)
	require.Len(t, recorder.attempts, 2)
	assert.Equal(t, kernel.AttemptFailed, recorder.attempts[0].Status)
	assert.Equal(t, kernel.AttemptSucceeded, recorder.attempts[1].Status)
}

func TestExecutorSkipsCandidateMissingRequiredInput(t *testing.T) {
	services := &fakeServices{results: map[string]registry.ServiceResult{
		"fallback": {Outputs: map[string]interface{}{"x": "y"}},
	}}
	recorder := &fakeRecorder{}
	exec := NewExecutor(governance.NoOpPolicy{}, services, fakeTools{}, recorder)

	plan := kernel.ExecutionPlan{RunID: "run-1", Candidates: []kernel.StrategyCandidate{
		{StrategyID: "needs-topic", ServiceBinding: "needs-topic@v1", RequiredInputs: []kernel.ParamSchema{{Name: "topic", Required: true}}},
		{StrategyID: "fallback", ServiceBinding: "fallback@v1"},
	}}
	spec := kernel.TaskSpec{TaskID: "task-1", ExplicitParams: map[string]interface{}{}}

	summary, err := exec.Run(context.Background(), baseRunContext(), plan, spec)
	require.NoError(t, err)
	assert.Equal(t, kernel.OutcomeSucceeded, summary.Outcome)
	require.Len(t, recorder.attempts, 2)
	assert.Equal(t, kernel.AttemptSkipped, recorder.attempts[0].Status)
	assert.Equal(t, string(core.ErrorKindMissingInput), recorder.attempts[0].ErrorKind)
}

func TestExecutorOutcomeFailedWhenAllCandidatesExhausted(t *testing.T) {
	services := &fakeServices{errs: map[string]error{
		"a": core.NewKernelError("Registry.Call", core.ErrorKindServiceUnavailable, core.ErrServiceNotFound),
		"b": core.NewKernelError("Registry.Call", core.ErrorKindServiceUnavailable, core.ErrServiceNotFound),
	}}
	recorder := &fakeRecorder{}
	exec := NewExecutor(governance.NoOpPolicy{}, services, fakeTools{}, recorder)

	plan := kernel.ExecutionPlan{RunID: "run-1", Candidates: []kernel.StrategyCandidate{
		{StrategyID: "a", ServiceBinding: "a@v1"},
		{StrategyID: "b", ServiceBinding: "b@v1"},
	}}
	spec := kernel.TaskSpec{TaskID: "task-1"}

	summary, err := exec.Run(context.Background(), baseRunContext(), plan, spec)
	require.NoError(t, err)
	assert.Equal(t, kernel.OutcomeFailed, summary.Outcome)
	assert.Equal(t, 2, summary.AttemptsCount)
}

func TestExecutorClarificationShortCircuitsWhenEveryCandidateMissingInput(t *testing.T) {
	recorder := &fakeRecorder{}
	exec := NewExecutor(governance.NoOpPolicy{}, &fakeServices{}, fakeTools{}, recorder)

	plan := kernel.ExecutionPlan{RunID: "run-1", Candidates: []kernel.StrategyCandidate{
		{StrategyID: "a", RequiredInputs: []kernel.ParamSchema{{Name: "topic", Required: true}}},
		{StrategyID: "b", RequiredInputs: []kernel.ParamSchema{{Name: "topic", Required: true}}},
	}}
	spec := kernel.TaskSpec{TaskID: "task-1"}

	summary, err := exec.Run(context.Background(), baseRunContext(), plan, spec)
	require.NoError(t, err)
	assert.Equal(t, kernel.OutcomeClarificationNeeded, summary.Outcome)
	require.NotNil(t, recorder.bundle)
	assert.LessOrEqual(t, len(recorder.bundle.ClarificationQuestions), 2)
	assert.Empty(t, recorder.attempts, "clarification should short-circuit before any attempt is made")
}

func TestExecutorAbortsOnPolicyViolation(t *testing.T) {
	recorder := &fakeRecorder{}
	exec := NewExecutor(governance.NewPolicy(), &fakeServices{}, fakeTools{}, recorder)

	plan := kernel.ExecutionPlan{RunID: "run-1", Candidates: []kernel.StrategyCandidate{
		{StrategyID: "leaky", ServiceBinding: "leaky@v1", RequiredLayer: "stable", RiskLevel: kernel.RiskLow, RequiredInputs: []kernel.ParamSchema{{Name: "api_key", Required: true}}},
		{StrategyID: "never-tried", ServiceBinding: "never@v1", RequiredLayer: "stable", RiskLevel: kernel.RiskLow},
	}}
	spec := kernel.TaskSpec{TaskID: "task-1", ExplicitParams: map[string]interface{}{"api_key": "sk-secret"}}

	summary, err := exec.Run(context.Background(), baseRunContext(), plan, spec)
	require.NoError(t, err)
	assert.Equal(t, kernel.OutcomeAborted, summary.Outcome)
	assert.Len(t, recorder.attempts, 1, "the run must abort before trying the next candidate")
}

func TestExecutorRespectsMaxFallbackSteps(t *testing.T) {
	services := &fakeServices{errs: map[string]error{
		"a": core.NewKernelError("Registry.Call", core.ErrorKindServiceUnavailable, core.ErrServiceNotFound),
		"b": core.NewKernelError("Registry.Call", core.ErrorKindServiceUnavailable, core.ErrServiceNotFound),
		"c": core.NewKernelError("Registry.Call", core.ErrorKindServiceUnavailable, core.ErrServiceNotFound),
	}}
	recorder := &fakeRecorder{}
	exec := NewExecutor(governance.NoOpPolicy{}, services, fakeTools{}, recorder)

	rc := baseRunContext()
	rc.MaxFallbackSteps = 1

	plan := kernel.ExecutionPlan{RunID: "run-1", Candidates: []kernel.StrategyCandidate{
		{StrategyID: "a", ServiceBinding: "a@v1"},
		{StrategyID: "b", ServiceBinding: "b@v1"},
		{StrategyID: "c", ServiceBinding: "c@v1"},
	}}
	spec := kernel.TaskSpec{TaskID: "task-1"}

	summary, err := exec.Run(context.Background(), rc, plan, spec)
	require.NoError(t, err)
	assert.Equal(t, kernel.OutcomeFailed, summary.Outcome)
	assert.Equal(t, 2, summary.AttemptsCount, "candidate index 2 exceeds max_fallback_steps=1 and must not be tried")
}
