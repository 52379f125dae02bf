// Package governance enforces the layer/maturity/risk/approval/safety-scan
// discipline from spec.md §4.6. It is a small declarative-rules struct
// evaluated by pure predicate methods returning a decision value, grounded
// on the teacher's orchestration.RuleBasedPolicy / InterruptPolicy pair.
package governance

import (
	"strings"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// GateDecision is returned by every Policy predicate, mirroring the
// teacher's InterruptDecision value (Approved/Reason) but carrying the
// kernel ErrorKind the caller should record on a reject.
type GateDecision struct {
	Allow     bool
	Reason    string
	ErrorKind core.ErrorKind
}

func allow() GateDecision { return GateDecision{Allow: true} }

func reject(reason string, kind core.ErrorKind) GateDecision {
	return GateDecision{Allow: false, Reason: reason, ErrorKind: kind}
}

// SensitivePatterns are substrings that, if found in any outgoing parameter
// name or value, abort the run with policy_violation (spec.md §4.6 "Secret/safety
// scans").
var SensitivePatterns = []string{
	"api_key", "apikey", "secret", "password", "private_key", "-----BEGIN",
}

// Policy is the governance gate evaluated at plan-time and re-evaluated at
// exec-time (spec.md §4.6), grounded on RuleBasedPolicy's declarative-rules
// shape.
type Policy struct {
	logger core.Logger
}

// PolicyOption configures a Policy at construction, mirroring the teacher's
// PolicyOption functional options for RuleBasedPolicy.
type PolicyOption func(*Policy)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) PolicyOption {
	return func(p *Policy) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			p.logger = aware.WithComponent("governance")
			return
		}
		p.logger = logger
	}
}

// NewPolicy builds the declarative rule-based Policy used in production.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckLayerAndMaturity implements `allowed_layers`, `blocked_maturity`, and
// the `blocked_strategies`/`allowed_strategies` hard filters: a candidate
// whose required_layer is not in rc.AllowedLayers, whose maturity is in
// rc.BlockedMaturity, whose strategy_id is in rc.BlockedStrategies, or
// (when rc.AllowedStrategies is non-empty) whose strategy_id is absent from
// it, is skipped (not failed) per §4.4's "decision gates are eligibility,
// not error" rule. This is a hard gate, unlike the Tuner's scope=strategy
// demote override, which only pushes a strategy to the bottom of the
// ordering without removing it from candidate generation.
func (p *Policy) CheckLayerAndMaturity(rc kernel.RunContext, candidate kernel.StrategyCandidate) GateDecision {
	if contains(rc.BlockedStrategies, candidate.StrategyID) {
		return reject("strategy_id "+candidate.StrategyID+" is in blocked_strategies", core.ErrorKindGovernanceBlock)
	}
	if len(rc.AllowedStrategies) > 0 && !contains(rc.AllowedStrategies, candidate.StrategyID) {
		return reject("strategy_id "+candidate.StrategyID+" not in allowed_strategies", core.ErrorKindGovernanceBlock)
	}
	if !contains(rc.AllowedLayers, candidate.RequiredLayer) {
		return reject("required_layer "+candidate.RequiredLayer+" not in allowed_layers", core.ErrorKindGovernanceBlock)
	}
	if contains(rc.BlockedMaturity, string(candidate.Maturity)) {
		return reject("maturity "+string(candidate.Maturity)+" is blocked for this profile", core.ErrorKindGovernanceBlock)
	}
	if candidate.RiskLevel.Level() > rc.MaxRiskLevel {
		return reject("risk_level exceeds max_risk_level", core.ErrorKindGovernanceBlock)
	}
	return allow()
}

// CheckApproval implements `require_approval_for_publish`: an operator-mode
// service whose declared side effects include "publish" must have a valid
// (non-stale) approval token at invocation time.
func (p *Policy) CheckApproval(requiresApproval bool, token *ApprovalToken, secret string) GateDecision {
	if !requiresApproval {
		return allow()
	}
	if token == nil {
		return reject("approval file missing", core.ErrorKindApprovalRequired)
	}
	if err := token.Verify(secret); err != nil {
		return reject("approval file invalid or stale: "+err.Error(), core.ErrorKindApprovalRequired)
	}
	return allow()
}

// ScanForSecrets implements the secret/safety-pattern scan: any outgoing
// parameter whose name or value matches a sensitive pattern aborts the run with
// policy_violation (a fatal class per spec.md §7, unlike the skip-class
// decisions above).
func (p *Policy) ScanForSecrets(params map[string]interface{}) GateDecision {
	for key, v := range params {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lowerKey := strings.ToLower(key)
		lowerVal := strings.ToLower(s)
		for _, pattern := range SensitivePatterns {
			if strings.Contains(lowerKey, pattern) || strings.Contains(lowerVal, pattern) {
				return reject("parameter "+key+" matches sensitive pattern", core.ErrorKindPolicyViolation)
			}
		}
	}
	return allow()
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// NoOpPolicy always allows everything; used by tests and by --dry-run runs,
// mirroring the teacher's NewNoOpPolicy.
type NoOpPolicy struct{}

func (NoOpPolicy) CheckLayerAndMaturity(kernel.RunContext, kernel.StrategyCandidate) GateDecision {
	return allow()
}
func (NoOpPolicy) CheckApproval(bool, *ApprovalToken, string) GateDecision { return allow() }
func (NoOpPolicy) ScanForSecrets(map[string]interface{}) GateDecision      { return allow() }
