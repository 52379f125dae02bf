// Package registry implements the Service Registry & Capability Contract
// (spec.md §4.4): uniform invocation of leaf capabilities, a registration-time
// contract lint, and the skipped-not-failed rule for decision-gate rejections.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/governance"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// ArtifactPayload is unpersisted artifact content a capability service
// produces. A capability service has no access to the State Store (spec.md
// §3: "capability services ... surrender produced artifacts to the State
// Store before returning"), so it hands back raw bytes and a kind; the
// Execution Loop is what content-addresses them through
// autonomy.RunRecorder.PutArtifact and turns them into kernel.ArtifactRefs.
type ArtifactPayload struct {
	Kind    kernel.ArtifactKind
	Payload []byte
}

// ServiceResult is what a capability service returns on success.
type ServiceResult struct {
	Outputs   map[string]interface{}
	Artifacts []ArtifactPayload
}

// CapabilityService is the function value every registered service injects,
// matching Design Note "Dynamic dispatch over services: model as a registry
// mapping service_name → ServiceDescriptor with a uniform call interface;
// avoid inheritance... behavior is injected as a function value."
type CapabilityService func(ctx context.Context, params map[string]interface{}, rc kernel.RunContext) (ServiceResult, error)

// ServiceDescriptor is the registered record for one capability: contract
// metadata plus the injected call function.
type ServiceDescriptor struct {
	Contract governance.ContractSpec
	Call     CapabilityService
}

// Registry is a concurrency-safe in-memory catalog of ServiceDescriptors,
// grounded on the teacher's AgentCatalog (map + RWMutex + capability index),
// but sourced from local descriptor registration rather than a discovery
// backend — no network transport is in scope (spec.md §1 Non-goals).
type Registry struct {
	mu              sync.RWMutex
	services        map[string]*ServiceDescriptor
	taskKindIndex   map[kernel.TaskKind][]string
	logger          core.Logger
	strictLintFails bool
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) Option {
	return func(r *Registry) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			r.logger = aware.WithComponent("registry")
			return
		}
		r.logger = logger
	}
}

// WithStrictLint makes Register return an error (rather than merely logging)
// on a contract-lint failure — spec.md §4.6 "strict mode fails the whole
// process start".
func WithStrictLint(strict bool) Option {
	return func(r *Registry) { r.strictLintFails = strict }
}

// New builds an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		services:      make(map[string]*ServiceDescriptor),
		taskKindIndex: make(map[kernel.TaskKind][]string),
		logger:        &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register lints the contract and, if it passes (or strict lint is
// disabled), adds the descriptor to the catalog and its task_kind index.
func (r *Registry) Register(desc ServiceDescriptor) error {
	if err := governance.LintContract(desc.Contract); err != nil {
		r.logger.Error("contract lint failed", map[string]interface{}{"service": desc.Contract.ServiceName, "error": err.Error()})
		if r.strictLintFails {
			return err
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[desc.Contract.ServiceName] = &desc
	for _, kind := range desc.Contract.TaskKinds {
		r.taskKindIndex[kind] = append(r.taskKindIndex[kind], desc.Contract.ServiceName)
	}
	return nil
}

// List implements `list() → []ServiceDescriptor`.
func (r *Registry) List() []ServiceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceDescriptor, 0, len(r.services))
	for _, d := range r.services {
		out = append(out, *d)
	}
	return out
}

// ListForTaskKind implements ranker.StrategyLister by projecting registered
// services whose task_kinds intersect kind into StrategyCandidates with
// base_score already computed; memory_score/composite_score are left zero
// for the ranker to fill in.
func (r *Registry) ListForTaskKind(kind kernel.TaskKind) []kernel.StrategyCandidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.taskKindIndex[kind]
	out := make([]kernel.StrategyCandidate, 0, len(names))
	for _, name := range names {
		desc := r.services[name]
		out = append(out, kernel.StrategyCandidate{
			StrategyID:       name,
			ServiceBinding:   name + "@v1",
			BaseScore:        baseScoreFor(desc.Contract, kind),
			RiskLevel:        riskLevelFor(desc.Contract),
			Maturity:         maturityFor(desc.Contract),
			RequiredLayer:    layerFor(desc.Contract),
			RequiredInputs:   desc.Contract.Inputs,
			TaskKinds:        desc.Contract.TaskKinds,
			RequiresApproval: requiresApproval(desc.Contract),
		})
		if strings.HasPrefix(desc.Contract.Fallback, "mcp/") {
			out = append(out, kernel.StrategyCandidate{
				StrategyID:     name + "->" + desc.Contract.Fallback,
				ServiceBinding: desc.Contract.Fallback,
				BaseScore:      baseScoreFor(desc.Contract, kind) * 0.8,
				RiskLevel:      kernel.RiskLow,
				Maturity:       kernel.MaturityStable,
				RequiredLayer:  layerFor(desc.Contract),
				RequiredInputs: desc.Contract.Inputs,
				TaskKinds:      desc.Contract.TaskKinds,
			})
		}
	}
	return out
}

// requiresApproval reports whether a contract's declared side effects trigger
// the publish-approval gate (spec.md §4.6).
func requiresApproval(c governance.ContractSpec) bool {
	for _, effect := range c.SideEffects {
		if effect == "publish" {
			return true
		}
	}
	return false
}

// baseScoreFor is a deterministic textual/keyword fit proxy: an exact
// primary-task_kind match scores 0.9, any other declared task_kind 0.6.
func baseScoreFor(c governance.ContractSpec, kind kernel.TaskKind) float64 {
	if len(c.TaskKinds) > 0 && c.TaskKinds[0] == kind {
		return 0.9
	}
	return 0.6
}

func riskLevelFor(c governance.ContractSpec) kernel.RiskLevel {
	if c.ExecutionMode == governance.ExecutionModeOperator {
		return kernel.RiskHigh
	}
	return kernel.RiskLow
}

func maturityFor(c governance.ContractSpec) kernel.Maturity {
	return kernel.MaturityStable
}

func layerFor(c governance.ContractSpec) string {
	return "stable"
}

// Call implements `call(service_name, params, RunContext) → ServiceResult`.
// A missing contract field was already rejected at Register time; here the
// remaining per-invocation checks are decision gates (skip, not fail) and
// the acceptance post-conditions (contract_violation on failure, per §4.7's
// error-kind taxonomy).
func (r *Registry) Call(ctx context.Context, serviceName string, params map[string]interface{}, rc kernel.RunContext) (ServiceResult, error) {
	r.mu.RLock()
	desc, ok := r.services[serviceName]
	r.mu.RUnlock()
	if !ok {
		return ServiceResult{}, core.NewKernelError("Registry.Call", core.ErrorKindInternal, core.ErrServiceNotFound)
	}

	for _, gate := range desc.Contract.DecisionGates {
		if gate.Reject(params) {
			return ServiceResult{}, &skippedError{gate: gate.Name, message: gate.Message}
		}
	}

	for _, input := range desc.Contract.Inputs {
		if input.Required {
			if _, present := params[input.Name]; !present {
				if input.Default != "" {
					params[input.Name] = input.Default
					continue
				}
				return ServiceResult{}, core.NewKernelError("Registry.Call", core.ErrorKindMissingInput,
					fmt.Errorf("missing required input %q for service %q", input.Name, serviceName))
			}
		}
	}

	deadline := 60 * time.Second
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, err := desc.Call(callCtx, params, rc)
	if err != nil {
		return ServiceResult{}, err
	}

	for _, cond := range desc.Contract.Acceptance {
		if !cond.Check(result.Outputs) {
			return ServiceResult{}, core.NewKernelError("Registry.Call", core.ErrorKindContractViolation,
				fmt.Errorf("acceptance post-condition %q failed for service %q", cond.Name, serviceName))
		}
	}

	return result, nil
}

// skippedError marks a decision-gate rejection as skip-class, never
// failure-class, per spec.md §4.4.
type skippedError struct {
	gate    string
	message string
}

func (e *skippedError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("decision gate %q rejected the attempt", e.gate)
}

// IsSkipped reports whether err came from a decision-gate rejection.
func IsSkipped(err error) bool {
	_, ok := err.(*skippedError)
	return ok
}
