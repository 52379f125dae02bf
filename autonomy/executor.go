// Package autonomy implements the Execution Loop (spec.md §4.3): the
// per-candidate governance pre-check / input-bind / invoke / seal-or-fallback
// algorithm that turns an ExecutionPlan into a RunSummary and DeliveryBundle.
// It satisfies kernel.Executor so kernel.Engine can drive it without a direct
// import, the same injection shape kernel already uses for Ranker and
// RunStore.
package autonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/governance"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/mcp"
	"github.com/LuisChen1Q84/agentkernel/registry"
	"github.com/google/uuid"
)

// ServiceCaller is the subset of registry.Registry the Execution Loop needs.
// Declared here rather than imported as a concrete type so a test can swap in
// a fake without constructing a real Registry, mirroring kernel.Ranker /
// kernel.Executor's own declared-interface pattern.
type ServiceCaller interface {
	Call(ctx context.Context, serviceName string, params map[string]interface{}, rc kernel.RunContext) (registry.ServiceResult, error)
}

// ToolRunner is the subset of mcp.Chain the Execution Loop needs to delegate
// an `mcp/`-bound candidate to the MCP Runtime.
type ToolRunner interface {
	Run(ctx context.Context, params map[string]interface{}, dryRun bool, candidates []mcp.ToolCandidate) (mcp.ChainResult, error)
}

// Policy is the subset of governance.Policy the Execution Loop re-evaluates
// at exec-time (spec.md §4.3 step 1a: "re-verified — policies may have
// changed since plan was built").
type Policy interface {
	CheckLayerAndMaturity(rc kernel.RunContext, candidate kernel.StrategyCandidate) governance.GateDecision
	CheckApproval(requiresApproval bool, token *governance.ApprovalToken, secret string) governance.GateDecision
	ScanForSecrets(params map[string]interface{}) governance.GateDecision
}

// ApprovalSource looks up a previously submitted approval token for a
// strategy, implemented by store.Store.LoadApproval.
type ApprovalSource interface {
	LoadApproval(ctx context.Context, strategyID string) (*governance.ApprovalToken, bool)
}

// Tracer starts a span around Run; the returned func ends it, recording err
// if non-nil. Declared locally per this codebase's consumer-side interface
// idiom (spec.md §4.9: trace spans around autonomy boundaries). Optional — a
// nil Tracer leaves Run untraced.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func(error))
}

// RunRecorder is the subset of store.Store the Execution Loop appends
// evidence to as it runs, satisfying the attempt-log and seal contract of
// spec.md §3 invariants 2 and 3.
type RunRecorder interface {
	AppendAttempt(ctx context.Context, att kernel.ExecutionAttempt) error
	SealRun(ctx context.Context, summary kernel.RunSummary, bundle kernel.DeliveryBundle) error
	PutArtifact(ctx context.Context, kind kernel.ArtifactKind, payload []byte, producedBy string) (kernel.ArtifactRef, error)
	VerifyArtifact(ctx context.Context, ref kernel.ArtifactRef) error
}

// Executor drives the Execution Loop over one RunContext/ExecutionPlan.
type Executor struct {
	policy         Policy
	services       ServiceCaller
	tools          ToolRunner
	toolCandidates map[string][]mcp.ToolCandidate
	recorder       RunRecorder
	approvals      ApprovalSource
	approvalSecret string

	attemptDeadline time.Duration
	logger          core.Logger
	clock           core.Clock
	idFunc          func() string
	tracer          Tracer
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) Option {
	return func(e *Executor) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			e.logger = aware.WithComponent("autonomy")
			return
		}
		e.logger = logger
	}
}

// WithClock overrides the clock used for timestamps and latency math.
func WithClock(clock core.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

// WithIDFunc overrides the attempt-id generator, used by tests that want
// deterministic ids instead of uuid.NewString.
func WithIDFunc(f func() string) Option {
	return func(e *Executor) { e.idFunc = f }
}

// WithAttemptDeadline overrides the per-attempt invocation deadline (spec.md
// §4.3 step 1c default: 60s).
func WithAttemptDeadline(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.attemptDeadline = d
		}
	}
}

// WithApprovalSource wires an approval-token lookup for operator-mode,
// publish-declaring candidates.
func WithApprovalSource(src ApprovalSource, secret string) Option {
	return func(e *Executor) {
		e.approvals = src
		e.approvalSecret = secret
	}
}

// WithTracer wires a span tracer around Run.
func WithTracer(tracer Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithToolCandidates registers the MCP tool candidate sets an `mcp/<name>`
// service_binding resolves to; name is the bare tool name after the "mcp/"
// prefix used in registry.ContractSpec.Fallback.
func WithToolCandidates(candidates map[string][]mcp.ToolCandidate) Option {
	return func(e *Executor) { e.toolCandidates = candidates }
}

// NewExecutor wires the Execution Loop over its collaborators, mirroring the
// teacher's CreateOrchestrator(config, deps) dependency-injection pattern.
func NewExecutor(policy Policy, services ServiceCaller, tools ToolRunner, recorder RunRecorder, opts ...Option) *Executor {
	e := &Executor{
		policy:          policy,
		services:        services,
		tools:           tools,
		recorder:        recorder,
		toolCandidates:  map[string][]mcp.ToolCandidate{},
		attemptDeadline: 60 * time.Second,
		logger:          &core.NoOpLogger{},
		clock:           core.SystemClock{},
		idFunc:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run implements kernel.Executor. It iterates candidates in plan order,
// sealing on the first success, advancing past any skip or recoverable
// failure, and halting immediately on a fatal (policy_violation-class)
// error or a canceled context.
func (e *Executor) Run(ctx context.Context, rc kernel.RunContext, plan kernel.ExecutionPlan, spec kernel.TaskSpec) (summary kernel.RunSummary, err error) {
	if e.tracer != nil {
		var end func(error)
		ctx, end = e.tracer.StartSpan(ctx, "autonomy.run")
		defer func() { end(err) }()
	}

	if bundle, ok := e.clarificationBundle(plan, spec); ok {
		return e.sealClarification(ctx, rc, spec, bundle)
	}

	var attempts []kernel.ExecutionAttempt
	var lastErr error

	for i, candidate := range plan.Candidates {
		if rc.MaxFallbackSteps > 0 && i > rc.MaxFallbackSteps {
			e.logger.InfoWithContext(ctx, "max_fallback_steps reached, stopping plan early", map[string]interface{}{
				"run_id": rc.RunID, "max_fallback_steps": rc.MaxFallbackSteps,
			})
			break
		}

		select {
		case <-ctx.Done():
			return e.sealAborted(ctx, rc, spec, attempts, "context canceled")
		default:
		}

		attempt, fatal := e.attemptCandidate(ctx, rc, spec, candidate)
		attempts = append(attempts, attempt)
		if err := e.recorder.AppendAttempt(ctx, attempt); err != nil {
			e.logger.ErrorWithContext(ctx, "append attempt failed", map[string]interface{}{
				"run_id": rc.RunID, "attempt_id": attempt.AttemptID, "error": err.Error(),
			})
		}

		if attempt.Status == kernel.AttemptSucceeded {
			return e.sealSucceeded(ctx, rc, spec, attempt, attempts)
		}
		if fatal {
			return e.sealAborted(ctx, rc, spec, attempts, attempt.ErrorMessage)
		}
		if attempt.ErrorMessage != "" {
			lastErr = errors.New(attempt.ErrorMessage)
		}
	}

	return e.sealExhausted(ctx, rc, spec, attempts, lastErr)
}

// attemptCandidate runs the pre-check/bind/invoke steps of spec.md §4.3's
// per-candidate algorithm and returns the completed ExecutionAttempt plus
// whether the failure (if any) is fatal to the whole run.
func (e *Executor) attemptCandidate(ctx context.Context, rc kernel.RunContext, spec kernel.TaskSpec, candidate kernel.StrategyCandidate) (kernel.ExecutionAttempt, bool) {
	attempt := kernel.ExecutionAttempt{
		AttemptID:  e.idFunc(),
		RunID:      rc.RunID,
		StrategyID: candidate.StrategyID,
		StartedAt:  e.clock.Now(),
	}

	if gate := e.policy.CheckLayerAndMaturity(rc, candidate); !gate.Allow {
		return e.skip(attempt, gate.ErrorKind, gate.Reason), false
	}

	params, missing := bindParams(candidate.RequiredInputs, spec.ExplicitParams)
	if len(missing) > 0 {
		return e.skip(attempt, core.ErrorKindMissingInput, "missing required inputs: "+strings.Join(missing, ", ")), false
	}

	if gate := e.policy.ScanForSecrets(params); !gate.Allow {
		attempt.EndedAt = e.clock.Now()
		attempt.Status = kernel.AttemptAborted
		attempt.ErrorKind = string(gate.ErrorKind)
		attempt.ErrorMessage = gate.Reason
		return attempt, true
	}

	if candidate.RequiresApproval {
		var token *governance.ApprovalToken
		if e.approvals != nil {
			token, _ = e.approvals.LoadApproval(ctx, candidate.StrategyID)
		}
		if gate := e.policy.CheckApproval(true, token, e.approvalSecret); !gate.Allow {
			return e.skip(attempt, gate.ErrorKind, gate.Reason), false
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.attemptDeadline)
	defer cancel()

	out := e.safeInvoke(callCtx, rc, candidate, params)
	attempt.EndedAt = e.clock.Now()
	attempt.Telemetry = out.telemetry

	if out.err != nil {
		kind := classifyError(out.err)
		attempt.ErrorKind = string(kind)
		attempt.ErrorMessage = out.err.Error()
		if registry.IsSkipped(out.err) {
			attempt.Status = kernel.AttemptSkipped
		} else {
			attempt.Status = kernel.AttemptFailed
		}
		return attempt, core.IsFatal(kind)
	}

	attempt.Status = kernel.AttemptSucceeded
	attempt.Artifacts = out.artifacts
	return attempt, false
}

func (e *Executor) skip(attempt kernel.ExecutionAttempt, kind core.ErrorKind, reason string) kernel.ExecutionAttempt {
	attempt.EndedAt = e.clock.Now()
	attempt.Status = kernel.AttemptSkipped
	attempt.ErrorKind = string(kind)
	attempt.ErrorMessage = reason
	return attempt
}

type invokeOutcome struct {
	artifacts []kernel.ArtifactRef
	telemetry kernel.Telemetry
	err       error
}

// safeInvoke runs invoke on its own goroutine so a panicking capability
// service or tool transport cannot take the whole run down with it, and so
// the attempt deadline is enforced even against a collaborator that ignores
// ctx — the same panic-recovering, deadline-bounded discipline the teacher's
// circuit breaker applies to every Execute call.
func (e *Executor) safeInvoke(ctx context.Context, rc kernel.RunContext, candidate kernel.StrategyCandidate, params map[string]interface{}) invokeOutcome {
	resultCh := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				e.logger.ErrorWithContext(ctx, "candidate invocation panicked", map[string]interface{}{
					"strategy_id": candidate.StrategyID, "panic": fmt.Sprint(r), "stack": string(stack),
				})
				resultCh <- invokeOutcome{err: core.NewKernelError("Executor.invoke", core.ErrorKindInternal, fmt.Errorf("panic: %v", r))}
			}
		}()
		artifacts, telemetry, err := e.invoke(ctx, rc, candidate, params)
		resultCh <- invokeOutcome{artifacts: artifacts, telemetry: telemetry, err: err}
	}()

	select {
	case out := <-resultCh:
		return out
	case <-ctx.Done():
		return invokeOutcome{err: core.NewKernelError("Executor.invoke", core.ErrorKindToolTimeout, ctx.Err())}
	}
}

// invoke dispatches to either the Service Registry or the MCP Runtime
// depending on candidate.ServiceBinding's "mcp/" prefix convention
// (registry.ContractSpec.Fallback uses the same convention).
func (e *Executor) invoke(ctx context.Context, rc kernel.RunContext, candidate kernel.StrategyCandidate, params map[string]interface{}) ([]kernel.ArtifactRef, kernel.Telemetry, error) {
	start := e.clock.Now()

	if toolName, ok := strings.CutPrefix(candidate.ServiceBinding, "mcp/"); ok {
		candidates := e.toolCandidates[toolName]
		if len(candidates) == 0 {
			return nil, kernel.Telemetry{}, core.NewKernelError("Executor.invoke", core.ErrorKindServiceUnavailable,
				fmt.Errorf("no tool candidates registered for %q", toolName))
		}
		chainResult, err := e.tools.Run(ctx, params, rc.Deterministic, candidates)
		telemetry := kernel.Telemetry{
			LatencyMS:     e.clock.Now().Sub(start).Milliseconds(),
			Retries:       chainResult.TotalRetries,
			FallbacksUsed: maxInt(0, len(chainResult.ToolsAttempted)-1),
		}
		if err != nil {
			return nil, telemetry, err
		}
		artifacts, putErr := e.artifactsFromToolResult(ctx, candidate.StrategyID, chainResult.Result)
		return artifacts, telemetry, putErr
	}

	serviceName := strings.TrimSuffix(candidate.ServiceBinding, "@v1")
	result, err := e.services.Call(ctx, serviceName, params, rc)
	telemetry := kernel.Telemetry{LatencyMS: e.clock.Now().Sub(start).Milliseconds()}
	if err != nil {
		return nil, telemetry, err
	}
	artifacts, putErr := e.artifactsFromPayloads(ctx, serviceName, result.Artifacts)
	return artifacts, telemetry, putErr
}

// artifactsFromPayloads content-addresses each raw ArtifactPayload a
// capability service returned through the State Store, the same
// surrender-before-returning step artifactsFromToolResult performs for the
// MCP Runtime path (spec.md §3).
func (e *Executor) artifactsFromPayloads(ctx context.Context, producedBy string, payloads []registry.ArtifactPayload) ([]kernel.ArtifactRef, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	refs := make([]kernel.ArtifactRef, 0, len(payloads))
	for _, p := range payloads {
		ref, err := e.recorder.PutArtifact(ctx, p.Kind, p.Payload, producedBy)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// artifactsFromToolResult content-addresses an mcp.ToolResult's payload
// through the State Store, turning a loosely-typed tool response into an
// immutable ArtifactRef the attempt log can carry.
func (e *Executor) artifactsFromToolResult(ctx context.Context, producedBy string, result mcp.ToolResult) ([]kernel.ArtifactRef, error) {
	payload, err := json.Marshal(result.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	ref, err := e.recorder.PutArtifact(ctx, kernel.ArtifactJSON, payload, producedBy)
	if err != nil {
		return nil, err
	}
	return []kernel.ArtifactRef{ref}, nil
}

// clarificationBundle implements spec.md §4.3's clarification short-circuit:
// if every candidate in the plan is missing at least one required input that
// has no default, no amount of fallback iteration can succeed, so the engine
// asks instead of burning the whole plan on skipped attempts. At most two
// questions are ever asked, alphabetically ordered for determinism under the
// strict profile (Open Question decision, DESIGN.md).
func (e *Executor) clarificationBundle(plan kernel.ExecutionPlan, spec kernel.TaskSpec) (kernel.DeliveryBundle, bool) {
	if len(plan.Candidates) == 0 {
		return kernel.DeliveryBundle{}, false
	}

	missing := map[string]bool{}
	for _, candidate := range plan.Candidates {
		_, miss := bindParams(candidate.RequiredInputs, spec.ExplicitParams)
		if len(miss) == 0 {
			return kernel.DeliveryBundle{}, false
		}
		for _, m := range miss {
			missing[m] = true
		}
	}
	if len(missing) == 0 {
		return kernel.DeliveryBundle{}, false
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 2 {
		names = names[:2]
	}

	questions := make([]string, len(names))
	for i, name := range names {
		questions[i] = fmt.Sprintf("what value should be used for %q?", name)
	}
	return kernel.DeliveryBundle{
		Headline:               "additional input is needed before this task can run",
		ClarificationQuestions: questions,
	}, true
}

// bindParams resolves candidate required_inputs from the explicit params
// supplied on TaskSpec, applying schema defaults, and reports which required
// inputs remain unresolved (spec.md §4.3 step 1b).
func bindParams(schemas []kernel.ParamSchema, explicit map[string]interface{}) (map[string]interface{}, []string) {
	params := make(map[string]interface{}, len(explicit))
	for k, v := range explicit {
		params[k] = v
	}
	var missing []string
	for _, schema := range schemas {
		if _, present := params[schema.Name]; present {
			continue
		}
		if schema.Default != "" {
			params[schema.Name] = schema.Default
			continue
		}
		if schema.Required {
			missing = append(missing, schema.Name)
		}
	}
	return params, missing
}

func classifyError(err error) core.ErrorKind {
	var kerr *core.KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	if registry.IsSkipped(err) {
		return core.ErrorKindGovernanceBlock
	}
	return core.ErrorKindInternal
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func totalLatency(attempts []kernel.ExecutionAttempt) int64 {
	var total int64
	for _, a := range attempts {
		total += a.Telemetry.LatencyMS
	}
	return total
}
