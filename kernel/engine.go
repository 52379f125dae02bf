package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/google/uuid"
)

// Ranker produces an ExecutionPlan for a RunContext; implemented by the
// ranker package. Declared here (rather than imported) so kernel has no
// dependency on ranker — the teacher wires concrete implementations through
// its own factory.CreateOrchestrator-style dependency-injection constructor.
type Ranker interface {
	Plan(ctx context.Context, rc RunContext, spec TaskSpec) (ExecutionPlan, error)
}

// Executor runs an ExecutionPlan to completion, implemented by the autonomy
// package.
type Executor interface {
	Run(ctx context.Context, rc RunContext, plan ExecutionPlan, spec TaskSpec) (RunSummary, error)
}

// RunStore is the subset of the State Store the Engine needs directly:
// persisting the RunContext/TaskSpec pair on submit and retrieving the sealed
// RunSummary on status.
type RunStore interface {
	PutRunContext(ctx context.Context, rc RunContext, spec TaskSpec) error
	GetRunSummary(ctx context.Context, runID string) (*RunSummary, error)
}

// Tracer starts a span around a Kernel-boundary operation; the returned func
// ends it, recording err if non-nil. Declared locally per this codebase's
// consumer-side interface idiom (spec.md §4.9: "trace spans around
// kernel/ranker/autonomy/mcp boundaries"). Optional — a nil Tracer leaves
// Submit untraced.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func(error))
}

// Engine is the Kernel: it owns classification, profile resolution and the
// submit/status surface (spec.md §4.1). It composes a Ranker, an Executor and
// a RunStore injected at construction, mirroring the teacher's
// CreateOrchestrator(config, deps) dependency-injection pattern.
type Engine struct {
	classifier *Classifier
	resolver   *ProfileResolver
	ranker     Ranker
	executor   Executor
	store      RunStore
	logger     core.Logger
	tracer     Tracer
	idFunc     func() string
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) EngineOption {
	return func(e *Engine) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			e.logger = aware.WithComponent("kernel")
			return
		}
		e.logger = logger
	}
}

// WithIDFunc overrides the run_id/task_id generator; used by tests that need
// deterministic ids instead of uuid.NewString.
func WithIDFunc(f func() string) EngineOption {
	return func(e *Engine) { e.idFunc = f }
}

// WithTracer wires a span tracer around Submit.
func WithTracer(tracer Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// NewEngine wires the Kernel over its three collaborators.
func NewEngine(classifier *Classifier, resolver *ProfileResolver, ranker Ranker, executor Executor, store RunStore, opts ...EngineOption) *Engine {
	e := &Engine{
		classifier: classifier,
		resolver:   resolver,
		ranker:     ranker,
		executor:   executor,
		store:      store,
		logger:     &core.NoOpLogger{},
		idFunc:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit implements spec.md §4.1's `submit(TaskSpec) → run_id`: it classifies
// the text if task_kind is unset, resolves the profile and governance
// binding, persists the RunContext, plans and — synchronously in this
// single-process model — executes the run. The worker pool that bounds
// concurrency across runs lives in autonomy.Pool; callers that want bounded
// async dispatch submit through that pool instead of calling Submit directly.
func (e *Engine) Submit(ctx context.Context, text string, requestedProfile Profile, origin Origin, explicitParams map[string]interface{}) (runID string, err error) {
	if e.tracer != nil {
		var end func(error)
		ctx, end = e.tracer.StartSpan(ctx, "kernel.submit")
		defer func() { end(err) }()
	}

	spec := TaskSpec{
		TaskID:         e.idFunc(),
		Text:           text,
		EnteredAt:      time.Now().UTC(),
		TaskKind:       e.classifier.Classify(text),
		Origin:         origin,
		ExplicitParams: explicitParams,
	}

	resolvedProfile, learningEnabled, maxFallbackSteps, binding := e.resolver.Resolve(requestedProfile, spec.TaskKind)

	rc := RunContext{
		RunID:             e.idFunc(),
		TaskID:            spec.TaskID,
		Profile:           resolvedProfile,
		AllowedLayers:     binding.AllowedLayers,
		BlockedMaturity:   binding.BlockedMaturity,
		BlockedStrategies: binding.BlockedStrategies,
		AllowedStrategies: binding.AllowedStrategies,
		MaxRiskLevel:      binding.MaxRiskLevel,
		Deterministic:     resolvedProfile == ProfileStrict,
		LearningEnabled:   learningEnabled,
		MaxFallbackSteps:  maxFallbackSteps,
		TraceID:           e.idFunc(),
	}

	if putErr := e.store.PutRunContext(ctx, rc, spec); putErr != nil {
		err = core.NewKernelError("Engine.Submit", core.ErrorKindInternal, putErr)
		return "", err
	}

	var plan ExecutionPlan
	plan, err = e.ranker.Plan(ctx, rc, spec)
	if err != nil {
		err = core.NewKernelError("Engine.Submit", core.ErrorKindInternal, err)
		return rc.RunID, err
	}

	if _, runErr := e.executor.Run(ctx, rc, plan, spec); runErr != nil {
		e.logger.ErrorWithContext(ctx, "run failed", map[string]interface{}{
			"run_id": rc.RunID, "error": runErr.Error(),
		})
		err = runErr
		return rc.RunID, err
	}

	return rc.RunID, nil
}

// Status implements `status(run_id) → RunSummary|pending`.
func (e *Engine) Status(ctx context.Context, runID string) (*RunSummary, error) {
	summary, err := e.store.GetRunSummary(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", runID, err)
	}
	return summary, nil
}
