package kernel

import "github.com/LuisChen1Q84/agentkernel/core"

// GovernanceBinding is the set of constraints the Planner derives for a
// profile; the Ranker (§4.2) and Governance (§4.6) re-evaluate against it.
type GovernanceBinding struct {
	AllowedLayers     []string
	BlockedMaturity   []string
	BlockedStrategies []string
	AllowedStrategies []string
	MaxRiskLevel      int
}

// ProfileResolver turns a requested profile plus task_kind into the concrete
// profile and governance constraints for one RunContext, per spec.md §4.1.
type ProfileResolver struct {
	defaultProfile   Profile
	taskKindOverride map[TaskKind]Profile
	governance       *core.GovernanceConfig
	adaptiveMaxSteps int
}

// NewProfileResolver builds a resolver from the loaded GovernanceConfig and an
// optional task_kind → profile override map (populated by applied
// PolicyOverrides with scope=task_kind).
func NewProfileResolver(gov *core.GovernanceConfig, defaultProfile Profile, taskKindOverride map[TaskKind]Profile, adaptiveMaxSteps int) *ProfileResolver {
	if adaptiveMaxSteps <= 0 {
		adaptiveMaxSteps = 3
	}
	return &ProfileResolver{
		defaultProfile:   defaultProfile,
		taskKindOverride: taskKindOverride,
		governance:       gov,
		adaptiveMaxSteps: adaptiveMaxSteps,
	}
}

// Resolve implements the profile resolution rule: `profile=auto` looks up
// task_kind → profile from overrides, falling back to the configured
// default; `strict` disables learning and caps max_fallback_steps=1;
// `adaptive` enables learning with the configured cap.
func (r *ProfileResolver) Resolve(requested Profile, kind TaskKind) (resolved Profile, learningEnabled bool, maxFallbackSteps int, binding GovernanceBinding) {
	resolved = requested
	if requested == ProfileAuto {
		if override, ok := r.taskKindOverride[kind]; ok {
			resolved = override
		} else {
			resolved = r.defaultProfile
		}
	}

	switch resolved {
	case ProfileStrict:
		learningEnabled = false
		maxFallbackSteps = 1
	default:
		learningEnabled = true
		maxFallbackSteps = r.adaptiveMaxSteps
	}

	binding = GovernanceBinding{
		BlockedMaturity:   r.governance.BlockedMaturity,
		BlockedStrategies: r.governance.BlockedStrategies,
		AllowedStrategies: r.governance.AllowedStrategies,
		MaxRiskLevel:      r.governance.MaxRiskLevel,
	}
	if layers, ok := r.governance.AllowedLayersByProfile[string(resolved)]; ok {
		binding.AllowedLayers = layers
	}
	return resolved, learningEnabled, maxFallbackSteps, binding
}
