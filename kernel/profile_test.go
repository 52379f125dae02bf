package kernel

import (
	"testing"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGovernance() *core.GovernanceConfig {
	return &core.GovernanceConfig{
		AllowedLayersByProfile: map[string][]string{
			"strict":   {"stable"},
			"adaptive": {"stable", "beta"},
			"auto":     {"stable", "beta", "experimental"},
		},
		BlockedMaturity: []string{"experimental"},
		MaxRiskLevel:    2,
	}
}

func TestResolveStrictCapsFallbackStepsAndDisablesLearning(t *testing.T) {
	r := NewProfileResolver(testGovernance(), ProfileAdaptive, nil, 3)
	resolved, learning, maxSteps, binding := r.Resolve(ProfileStrict, TaskKindResearch)

	assert.Equal(t, ProfileStrict, resolved)
	assert.False(t, learning)
	assert.Equal(t, 1, maxSteps)
	assert.Equal(t, []string{"stable"}, binding.AllowedLayers)
}

func TestResolveAdaptiveUsesConfiguredCap(t *testing.T) {
	r := NewProfileResolver(testGovernance(), ProfileAdaptive, nil, 5)
	resolved, learning, maxSteps, _ := r.Resolve(ProfileAdaptive, TaskKindResearch)

	assert.Equal(t, ProfileAdaptive, resolved)
	assert.True(t, learning)
	assert.Equal(t, 5, maxSteps)
}

func TestResolveAutoLooksUpTaskKindOverride(t *testing.T) {
	overrides := map[TaskKind]Profile{TaskKindAutomation: ProfileStrict}
	r := NewProfileResolver(testGovernance(), ProfileAdaptive, overrides, 3)

	resolved, _, maxSteps, _ := r.Resolve(ProfileAuto, TaskKindAutomation)
	require.Equal(t, ProfileStrict, resolved)
	assert.Equal(t, 1, maxSteps)

	resolved, _, _, _ = r.Resolve(ProfileAuto, TaskKindResearch)
	assert.Equal(t, ProfileAdaptive, resolved)
}

func TestRiskLevelOrdering(t *testing.T) {
	assert.True(t, RiskLow.Less(RiskMedium))
	assert.True(t, RiskMedium.Less(RiskHigh))
	assert.False(t, RiskHigh.Less(RiskLow))
	assert.Equal(t, 1, RiskLow.Level())
	assert.Equal(t, 3, RiskHigh.Level())
}

func TestMaturityOrdering(t *testing.T) {
	assert.True(t, MaturityStable.Less(MaturityBeta))
	assert.True(t, MaturityBeta.Less(MaturityExperimental))
}
