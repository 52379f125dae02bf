package governance

import (
	"fmt"
	"strings"

	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// ExecutionMode mirrors the capability contract's advisor/operator split.
type ExecutionMode string

const (
	ExecutionModeAdvisor  ExecutionMode = "advisor"
	ExecutionModeOperator ExecutionMode = "operator"
)

// DecisionGate is a pure predicate over bound inputs, evaluated before
// invocation; a reject means the attempt is skipped, not failed.
type DecisionGate struct {
	Name    string
	Reject  func(params map[string]interface{}) bool
	Message string
}

// AcceptancePostCondition is a machine-checkable check run against a
// ServiceResult after invocation (§4.4 "acceptance: at least one
// machine-checkable post-condition").
type AcceptancePostCondition struct {
	Name  string
	Check func(outputs map[string]interface{}) bool
}

// ContractSpec is the descriptor every registered capability must declare,
// per spec.md §4.4.
type ContractSpec struct {
	ServiceName    string
	Inputs         []kernel.ParamSchema
	DecisionGates  []DecisionGate
	ExecutionMode  ExecutionMode
	Fallback       string
	OutputKinds    []kernel.ArtifactKind
	Acceptance     []AcceptancePostCondition
	SideEffects    []string
	TaskKinds      []kernel.TaskKind
}

// LintContract enforces the contract at registration time: a missing
// required field fails the lint. In strict mode (passed by the caller) the
// whole process start fails; in non-strict mode the caller may choose to
// merely refuse registration of that one service.
func LintContract(c ContractSpec) error {
	var problems []string

	if strings.TrimSpace(c.ServiceName) == "" {
		problems = append(problems, "service_name is required")
	}
	if c.ExecutionMode != ExecutionModeAdvisor && c.ExecutionMode != ExecutionModeOperator {
		problems = append(problems, "execution_mode must be advisor or operator")
	}
	if len(c.OutputKinds) == 0 {
		problems = append(problems, "outputs must declare at least one artifact kind")
	}
	if len(c.Acceptance) == 0 {
		problems = append(problems, "acceptance must declare at least one post-condition")
	}
	if len(c.TaskKinds) == 0 {
		problems = append(problems, "task_kinds must not be empty")
	}
	if c.ExecutionMode == ExecutionModeOperator && requiresPublishApproval(c.SideEffects) && c.Fallback == "" {
		// Not a hard failure: operator services may legitimately have no
		// fallback, but it is worth flagging during review.
	}

	if len(problems) > 0 {
		return fmt.Errorf("contract lint failed for %q: %s", c.ServiceName, strings.Join(problems, "; "))
	}
	return nil
}

// requiresPublishApproval reports whether a service's declared side effects
// include "publish", triggering the approval gate in §4.6.
func requiresPublishApproval(sideEffects []string) bool {
	for _, s := range sideEffects {
		if s == "publish" {
			return true
		}
	}
	return false
}
