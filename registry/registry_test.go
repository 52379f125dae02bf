package registry

import (
	"context"
	"testing"

	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndListForTaskKind(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(McKinseyPPTDescriptor()))
	require.NoError(t, r.Register(ResearchBriefDescriptor()))

	candidates := r.ListForTaskKind(kernel.TaskKindPresentation)
	require.Len(t, candidates, 1)
	assert.Equal(t, "mckinsey-ppt", candidates[0].StrategyID)
}

func TestRegisterRejectsInvalidContractUnderStrictLint(t *testing.T) {
	r := New(WithStrictLint(true))
	bad := McKinseyPPTDescriptor()
	bad.Contract.ServiceName = ""

	err := r.Register(bad)
	require.Error(t, err)
}

func TestRegisterToleratesInvalidContractWhenLintNotStrict(t *testing.T) {
	r := New(WithStrictLint(false))
	bad := McKinseyPPTDescriptor()
	bad.Contract.ServiceName = ""

	err := r.Register(bad)
	require.NoError(t, err)
	assert.Empty(t, r.List())
}

func TestCallSucceedsAndReturnsArtifacts(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(McKinseyPPTDescriptor()))

	rc := kernel.RunContext{RunID: "run-1"}
	result, err := r.Call(context.Background(), "mckinsey-ppt", map[string]interface{}{"topic": "growth"}, rc)
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, kernel.ArtifactJSON, result.Artifacts[0].Kind)
	assert.NotEmpty(t, result.Artifacts[0].Payload)
}

func TestCallReturnsMissingInputWhenRequiredParamAbsent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(McKinseyPPTDescriptor()))

	_, err := r.Call(context.Background(), "mckinsey-ppt", map[string]interface{}{}, kernel.RunContext{})
	require.Error(t, err)
}

func TestCallRejectsMutatingSQLViaDecisionGate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(DataQuerySQLDescriptor(fakeQuerier{})))

	_, err := r.Call(context.Background(), "data-query-sql", map[string]interface{}{"sql": "DELETE FROM t"}, kernel.RunContext{})
	require.Error(t, err)
	assert.True(t, IsSkipped(err))
}

func TestCallAllowsReadOnlySQL(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(DataQuerySQLDescriptor(fakeQuerier{rows: 5})))

	result, err := r.Call(context.Background(), "data-query-sql", map[string]interface{}{"sql": "SELECT * FROM t"}, kernel.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Outputs["row_count"])
}

func TestCallUnknownServiceReturnsError(t *testing.T) {
	r := New()
	_, err := r.Call(context.Background(), "nonexistent", nil, kernel.RunContext{})
	require.Error(t, err)
}

type fakeQuerier struct {
	rows int
}

func (f fakeQuerier) QueryRows(context.Context, string) (int, error) { return f.rows, nil }
