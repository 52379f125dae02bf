package registry

import (
	"context"
	"fmt"

	"github.com/LuisChen1Q84/agentkernel/governance"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// These are the illustrative leaf capability services SPEC_FULL.md §4.4
// wires in to give the registry concrete callers. They are leaves per
// spec.md §1 Non-goals (no artifact rendering is in scope) so each produces
// a small synthetic body rather than a real rendered document, but that body
// is handed back as an ArtifactPayload and content-addressed through the
// State Store by the Execution Loop like any other artifact — the contract,
// decision gates and fallback chain around each are real and exercised by
// tests.

func payloadArtifact(kind kernel.ArtifactKind, body string) ArtifactPayload {
	return ArtifactPayload{Kind: kind, Payload: []byte(body)}
}

func hasNonEmptyOutputs(outputs map[string]interface{}) bool {
	return len(outputs) > 0
}

// McKinseyPPTDescriptor is the `mckinsey-ppt` advisor capability for
// presentation task_kinds.
func McKinseyPPTDescriptor() ServiceDescriptor {
	const name = "mckinsey-ppt"
	return ServiceDescriptor{
		Contract: governance.ContractSpec{
			ServiceName:   name,
			ExecutionMode: governance.ExecutionModeAdvisor,
			Inputs: []kernel.ParamSchema{
				{Name: "topic", Required: true},
				{Name: "audience", Required: false, Default: "executive"},
			},
			OutputKinds: []kernel.ArtifactKind{kernel.ArtifactJSON, kernel.ArtifactMD, kernel.ArtifactHTML},
			Acceptance: []governance.AcceptancePostCondition{
				{Name: "has-outline", Check: hasNonEmptyOutputs},
			},
			TaskKinds: []kernel.TaskKind{kernel.TaskKindPresentation},
		},
		Call: func(ctx context.Context, params map[string]interface{}, rc kernel.RunContext) (ServiceResult, error) {
			topic, _ := params["topic"].(string)
			body := fmt.Sprintf("outline for %q", topic)
			return ServiceResult{
				Outputs:   map[string]interface{}{"outline": body},
				Artifacts: []ArtifactPayload{payloadArtifact(kernel.ArtifactJSON, body)},
			}, nil
		},
	}
}

// ResearchBriefDescriptor is the `research-brief` advisor capability for
// research task_kinds.
func ResearchBriefDescriptor() ServiceDescriptor {
	const name = "research-brief"
	return ServiceDescriptor{
		Contract: governance.ContractSpec{
			ServiceName:   name,
			ExecutionMode: governance.ExecutionModeAdvisor,
			Inputs: []kernel.ParamSchema{
				{Name: "query", Required: true},
			},
			Fallback:    "mcp/brave-search",
			OutputKinds: []kernel.ArtifactKind{kernel.ArtifactMD},
			Acceptance: []governance.AcceptancePostCondition{
				{Name: "has-summary", Check: hasNonEmptyOutputs},
			},
			TaskKinds: []kernel.TaskKind{kernel.TaskKindResearch},
		},
		Call: func(ctx context.Context, params map[string]interface{}, rc kernel.RunContext) (ServiceResult, error) {
			query, _ := params["query"].(string)
			body := fmt.Sprintf("brief for %q", query)
			return ServiceResult{
				Outputs:   map[string]interface{}{"summary": body},
				Artifacts: []ArtifactPayload{payloadArtifact(kernel.ArtifactMD, body)},
			}, nil
		},
	}
}

// Querier is the minimal interface data-query-sql depends on, so unit tests
// can substitute a fake without a live database.
type Querier interface {
	QueryRows(ctx context.Context, query string) (rowCount int, err error)
}

// DataQuerySQLDescriptor is the `data-query-sql` advisor capability; it uses
// database/sql with the go-sql-driver/mysql driver behind this Querier
// interface (spec.md §4.4 [DOMAIN STACK]).
func DataQuerySQLDescriptor(q Querier) ServiceDescriptor {
	const name = "data-query-sql"
	return ServiceDescriptor{
		Contract: governance.ContractSpec{
			ServiceName:   name,
			ExecutionMode: governance.ExecutionModeAdvisor,
			Inputs: []kernel.ParamSchema{
				{Name: "sql", Required: true},
			},
			DecisionGates: []governance.DecisionGate{
				{
					Name:    "reject-mutating-statements",
					Message: "data-query-sql only accepts read statements",
					Reject: func(params map[string]interface{}) bool {
						stmt, _ := params["sql"].(string)
						return !isReadOnlyStatement(stmt)
					},
				},
			},
			OutputKinds: []kernel.ArtifactKind{kernel.ArtifactJSON},
			Acceptance: []governance.AcceptancePostCondition{
				{Name: "has-row-count", Check: hasNonEmptyOutputs},
			},
			TaskKinds: []kernel.TaskKind{kernel.TaskKindDataQuery},
		},
		Call: func(ctx context.Context, params map[string]interface{}, rc kernel.RunContext) (ServiceResult, error) {
			stmt, _ := params["sql"].(string)
			rows, err := q.QueryRows(ctx, stmt)
			if err != nil {
				return ServiceResult{}, err
			}
			return ServiceResult{
				Outputs:   map[string]interface{}{"row_count": rows},
				Artifacts: []ArtifactPayload{payloadArtifact(kernel.ArtifactJSON, stmt)},
			}, nil
		},
	}
}

func isReadOnlyStatement(stmt string) bool {
	if len(stmt) < 6 {
		return false
	}
	switch stmt[:6] {
	case "SELECT", "select":
		return true
	default:
		return false
	}
}

// ImageDescribeDescriptor is the `image-describe` advisor capability for
// image task_kinds.
func ImageDescribeDescriptor() ServiceDescriptor {
	const name = "image-describe"
	return ServiceDescriptor{
		Contract: governance.ContractSpec{
			ServiceName:   name,
			ExecutionMode: governance.ExecutionModeAdvisor,
			Inputs: []kernel.ParamSchema{
				{Name: "image_uri", Required: true},
			},
			OutputKinds: []kernel.ArtifactKind{kernel.ArtifactJSON},
			Acceptance: []governance.AcceptancePostCondition{
				{Name: "has-description", Check: hasNonEmptyOutputs},
			},
			TaskKinds: []kernel.TaskKind{kernel.TaskKindImage},
		},
		Call: func(ctx context.Context, params map[string]interface{}, rc kernel.RunContext) (ServiceResult, error) {
			uri, _ := params["image_uri"].(string)
			body := fmt.Sprintf("description of %s", uri)
			return ServiceResult{
				Outputs:   map[string]interface{}{"description": body},
				Artifacts: []ArtifactPayload{payloadArtifact(kernel.ArtifactJSON, body)},
			}, nil
		},
	}
}

// AutomationWebhookDescriptor is the `automation-webhook` operator
// capability; its side_effects include "publish" so it exercises the
// approval gate (spec.md §4.6).
func AutomationWebhookDescriptor() ServiceDescriptor {
	const name = "automation-webhook"
	return ServiceDescriptor{
		Contract: governance.ContractSpec{
			ServiceName:   name,
			ExecutionMode: governance.ExecutionModeOperator,
			Inputs: []kernel.ParamSchema{
				{Name: "webhook_url", Required: true},
				{Name: "payload", Required: true},
			},
			SideEffects: []string{"publish"},
			OutputKinds: []kernel.ArtifactKind{kernel.ArtifactJSON},
			Acceptance: []governance.AcceptancePostCondition{
				{Name: "has-delivery-status", Check: hasNonEmptyOutputs},
			},
			TaskKinds: []kernel.TaskKind{kernel.TaskKindAutomation},
		},
		Call: func(ctx context.Context, params map[string]interface{}, rc kernel.RunContext) (ServiceResult, error) {
			url, _ := params["webhook_url"].(string)
			body := fmt.Sprintf("delivered to %s", url)
			return ServiceResult{
				Outputs:   map[string]interface{}{"delivery_status": "sent"},
				Artifacts: []ArtifactPayload{payloadArtifact(kernel.ArtifactJSON, body)},
			}, nil
		},
	}
}
