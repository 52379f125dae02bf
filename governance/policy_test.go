package governance

import (
	"testing"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLayerAndMaturityBlocksExperimentalUnderStrict(t *testing.T) {
	p := NewPolicy()
	rc := kernel.RunContext{
		AllowedLayers:   []string{"stable"},
		BlockedMaturity: []string{"experimental"},
		MaxRiskLevel:    2,
	}
	candidate := kernel.StrategyCandidate{RequiredLayer: "stable", Maturity: kernel.MaturityExperimental, RiskLevel: kernel.RiskLow}

	decision := p.CheckLayerAndMaturity(rc, candidate)
	assert.False(t, decision.Allow)
	assert.Equal(t, core.ErrorKindGovernanceBlock, decision.ErrorKind)
}

func TestCheckLayerAndMaturityAllowsStable(t *testing.T) {
	p := NewPolicy()
	rc := kernel.RunContext{AllowedLayers: []string{"stable"}, MaxRiskLevel: 2}
	candidate := kernel.StrategyCandidate{RequiredLayer: "stable", Maturity: kernel.MaturityStable, RiskLevel: kernel.RiskLow}

	decision := p.CheckLayerAndMaturity(rc, candidate)
	assert.True(t, decision.Allow)
}

func TestCheckLayerAndMaturityCapsRiskLevel(t *testing.T) {
	p := NewPolicy()
	rc := kernel.RunContext{AllowedLayers: []string{"stable"}, MaxRiskLevel: 1}
	candidate := kernel.StrategyCandidate{RequiredLayer: "stable", Maturity: kernel.MaturityStable, RiskLevel: kernel.RiskHigh}

	decision := p.CheckLayerAndMaturity(rc, candidate)
	assert.False(t, decision.Allow)
}

func TestCheckLayerAndMaturityBlocksListedStrategy(t *testing.T) {
	p := NewPolicy()
	rc := kernel.RunContext{
		AllowedLayers:     []string{"stable"},
		MaxRiskLevel:      2,
		BlockedStrategies: []string{"mckinsey-ppt"},
	}
	candidate := kernel.StrategyCandidate{StrategyID: "mckinsey-ppt", RequiredLayer: "stable", Maturity: kernel.MaturityStable, RiskLevel: kernel.RiskLow}

	decision := p.CheckLayerAndMaturity(rc, candidate)
	assert.False(t, decision.Allow)
	assert.Equal(t, core.ErrorKindGovernanceBlock, decision.ErrorKind)
}

func TestCheckLayerAndMaturityRestrictsToAllowedStrategies(t *testing.T) {
	p := NewPolicy()
	rc := kernel.RunContext{
		AllowedLayers:     []string{"stable"},
		MaxRiskLevel:      2,
		AllowedStrategies: []string{"research-brief"},
	}
	allowed := kernel.StrategyCandidate{StrategyID: "research-brief", RequiredLayer: "stable", Maturity: kernel.MaturityStable, RiskLevel: kernel.RiskLow}
	disallowed := kernel.StrategyCandidate{StrategyID: "mckinsey-ppt", RequiredLayer: "stable", Maturity: kernel.MaturityStable, RiskLevel: kernel.RiskLow}

	assert.True(t, p.CheckLayerAndMaturity(rc, allowed).Allow)
	decision := p.CheckLayerAndMaturity(rc, disallowed)
	assert.False(t, decision.Allow)
	assert.Equal(t, core.ErrorKindGovernanceBlock, decision.ErrorKind)
}

func TestCheckApprovalMissingToken(t *testing.T) {
	p := NewPolicy()
	decision := p.CheckApproval(true, nil, "secret")
	assert.False(t, decision.Allow)
	assert.Equal(t, core.ErrorKindApprovalRequired, decision.ErrorKind)
}

func TestCheckApprovalValidToken(t *testing.T) {
	p := NewPolicy()
	token, err := SignApprovalToken("tok-1", "operator", 1, time.Now(), "secret")
	require.NoError(t, err)

	decision := p.CheckApproval(true, &token, "secret")
	assert.True(t, decision.Allow)
}

func TestCheckApprovalStaleToken(t *testing.T) {
	p := NewPolicy()
	token, err := SignApprovalToken("tok-1", "operator", 1, time.Now().Add(-48*time.Hour), "secret")
	require.NoError(t, err)

	decision := p.CheckApproval(true, &token, "secret")
	assert.False(t, decision.Allow)
}

func TestCheckApprovalWrongSecretFails(t *testing.T) {
	p := NewPolicy()
	token, err := SignApprovalToken("tok-1", "operator", 1, time.Now(), "secret")
	require.NoError(t, err)

	decision := p.CheckApproval(true, &token, "wrong-secret")
	assert.False(t, decision.Allow)
}

func TestScanForSecretsDetectsSensitivePattern(t *testing.T) {
	p := NewPolicy()
	decision := p.ScanForSecrets(map[string]interface{}{"api_key": "sk-abc123"})
	assert.False(t, decision.Allow)
	assert.Equal(t, core.ErrorKindPolicyViolation, decision.ErrorKind)
}

func TestScanForSecretsAllowsCleanParams(t *testing.T) {
	p := NewPolicy()
	decision := p.ScanForSecrets(map[string]interface{}{"topic": "quarterly growth"})
	assert.True(t, decision.Allow)
}

func TestNoOpPolicyAlwaysAllows(t *testing.T) {
	var p NoOpPolicy
	assert.True(t, p.CheckLayerAndMaturity(kernel.RunContext{}, kernel.StrategyCandidate{}).Allow)
	assert.True(t, p.CheckApproval(true, nil, "").Allow)
	assert.True(t, p.ScanForSecrets(map[string]interface{}{"api_key": "x"}).Allow)
}
