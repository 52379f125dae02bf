package governance

import (
	"testing"

	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validContract() ContractSpec {
	return ContractSpec{
		ServiceName:   "mckinsey-ppt",
		ExecutionMode: ExecutionModeAdvisor,
		OutputKinds:   []kernel.ArtifactKind{kernel.ArtifactJSON},
		Acceptance:    []AcceptancePostCondition{{Name: "has-primary-artifact", Check: func(map[string]interface{}) bool { return true }}},
		TaskKinds:     []kernel.TaskKind{kernel.TaskKindPresentation},
	}
}

func TestLintContractAccepts(t *testing.T) {
	require.NoError(t, LintContract(validContract()))
}

func TestLintContractRejectsMissingServiceName(t *testing.T) {
	c := validContract()
	c.ServiceName = ""
	err := LintContract(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service_name")
}

func TestLintContractRejectsMissingAcceptance(t *testing.T) {
	c := validContract()
	c.Acceptance = nil
	err := LintContract(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acceptance")
}

func TestLintContractRejectsBadExecutionMode(t *testing.T) {
	c := validContract()
	c.ExecutionMode = "bogus"
	err := LintContract(c)
	require.Error(t, err)
}

func TestRequiresPublishApproval(t *testing.T) {
	assert.True(t, requiresPublishApproval([]string{"publish"}))
	assert.False(t, requiresPublishApproval([]string{"notify"}))
}
