package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/LuisChen1Q84/agentkernel/autonomy"
	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/feedback"
	"github.com/LuisChen1Q84/agentkernel/governance"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/mcp"
	"github.com/LuisChen1Q84/agentkernel/observability"
	"github.com/LuisChen1Q84/agentkernel/ranker"
	"github.com/LuisChen1Q84/agentkernel/registry"
	"github.com/LuisChen1Q84/agentkernel/store"

	"github.com/go-redis/redis/v8"
)

// defaultBraveSearchEndpoint and braveSearchTimeout ground the MCP tool that
// is always wired at startup: the research-brief leaf service's declared
// Fallback. redisToolReplyTimeout bounds the optional Redis-backed tool wired
// when AGENTKERNEL_MCP_REDIS_TOOL_URL is set.
const (
	defaultBraveSearchEndpoint = "http://localhost:8089/brave-search"
	braveSearchTimeout         = 10 * time.Second
	redisToolReplyTimeout      = 10 * time.Second
)

// app bundles every collaborator the CLI verbs need, built once per
// invocation from a loaded core.Config — the same factory-function shape the
// teacher's core.NewBaseAgent composes its own dependency graph with.
type app struct {
	cfg    *core.Config
	logger core.Logger

	st        *store.Store
	registry  *registry.Registry
	chain     *mcp.Chain
	breakers  map[string]*mcp.CircuitBreaker
	tracer    *observability.Tracer
	metrics   *observability.Metrics
	recorder  *observability.Recorder
	health    *observability.HealthReporter

	classifier *kernel.Classifier
	resolver   *kernel.ProfileResolver
	rank       *ranker.Ranker
	executor   *autonomy.Executor
	engine     *kernel.Engine
	tuner      *feedback.Tuner

	strictPolicy *governance.Policy
}

// buildApp loads configuration from configPath (empty uses defaults+env) and
// wires the full dependency graph. dryRun substitutes governance.NoOpPolicy
// for governance.Policy so no gate or approval check can block the run,
// matching NoOpPolicy's own doc comment ("used by tests and by --dry-run
// runs").
func buildApp(configPath string, dryRun bool) (*app, error) {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := core.Logger(core.NewJSONLogger())
	if jl, ok := logger.(*core.JSONLogger); ok && cfg.Logging.Level == "debug" {
		jl.SetMinLevel(true)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("build store provider: %w", err)
	}

	st, err := store.Open(cfg.StateRoot, provider,
		store.WithLogger(logger),
		store.WithClock(core.SystemClock{}),
		store.WithMemoryWindowDays(cfg.Feedback.WindowDays),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracer := observability.NewTracer(cfg.Observability.ServiceName, cfg.Observability.TracingEnabled)
	metrics := observability.NewMetrics()
	recorder := observability.NewRecorder(st, observability.WithLogger(logger))

	strictPolicy := governance.NewPolicy(governance.WithLogger(logger))
	var noop governance.NoOpPolicy

	reg := buildRegistry(logger)

	ctx := context.Background()
	breakers := restoreBreakers(ctx, st)
	breakerLookup := func(toolName string) bool {
		b, ok := breakers[toolName]
		if !ok {
			return true
		}
		return b.State() != mcp.StateOpen
	}
	router := mcp.NewRouter(mcp.RouterWeights{
		Alpha: cfg.MCP.AlphaIntent, Beta: cfg.MCP.BetaHistorical,
		Gamma: cfg.MCP.GammaLatency, Delta: cfg.MCP.DeltaCost,
		TopK: cfg.Ranker.TopK,
	}, breakerLookup)
	retryCfg := mcp.RetryConfig{
		MaxRetries: cfg.MCP.MaxRetries, InitialDelay: cfg.MCP.BackoffBase,
		BackoffFactor: cfg.MCP.BackoffFactor, JitterFraction: cfg.MCP.JitterFraction,
	}
	chain := mcp.NewChain(router, breakers, retryCfg, cfg.MCP.ChainBudget, mcp.WithTracer(tracer))

	braveEndpoint := firstNonEmptyEnv("AGENTKERNEL_BRAVE_SEARCH_ENDPOINT", defaultBraveSearchEndpoint)
	braveTool := mcp.NewHTTPTool("brave-search", braveEndpoint, braveSearchTimeout)
	toolCandidates := map[string][]mcp.ToolCandidate{
		"brave-search": {{Tool: braveTool, IntentMatch: 0.7, HistoricalSuccess: 0.6, LatencyMS: 400, Cost: 0.2}},
	}

	if redisToolURL := os.Getenv("AGENTKERNEL_MCP_REDIS_TOOL_URL"); redisToolURL != "" {
		opts, err := redis.ParseURL(redisToolURL)
		if err != nil {
			return nil, fmt.Errorf("parse AGENTKERNEL_MCP_REDIS_TOOL_URL: %w", err)
		}
		automationTool := mcp.NewRedisTool("automation-webhook-worker", redis.NewClient(opts),
			"agentkernel:tool:automation-webhook:req", "agentkernel:tool:automation-webhook:reply", redisToolReplyTimeout)
		toolCandidates["automation-webhook"] = []mcp.ToolCandidate{
			{Tool: automationTool, IntentMatch: 0.6, HistoricalSuccess: 0.5, LatencyMS: 800, Cost: 0.1},
		}
	}

	activeOverrides, _, err := st.ActiveOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active overrides: %w", err)
	}
	overrideIdx := feedback.NewActiveOverrideIndex(activeOverrides)
	taskKindOverride := map[kernel.TaskKind]kernel.Profile{}
	for _, ov := range activeOverrides {
		if ov.Scope == kernel.ScopeTaskKind {
			taskKindOverride[kernel.TaskKind(ov.Key)] = kernel.Profile(ov.Value)
		}
	}

	weightsFn := func(profile kernel.Profile) ranker.Weights {
		w := ranker.Weights{
			BaseWeight: cfg.Ranker.BaseWeight, MemoryWeight: cfg.Ranker.MemoryWeight,
			DefaultMemoryPrior: 0.5, AmbiguityThreshold: 0.05, TopK: cfg.Ranker.TopK,
		}
		if profile == kernel.ProfileStrict {
			w.AmbiguityThreshold = 0.15
		}
		return w
	}

	var gateChecker ranker.GateChecker = strictPolicy
	if dryRun {
		gateChecker = noop
	}
	rk := ranker.New(reg, st, gateChecker, weightsFn,
		ranker.WithLogger(logger),
		ranker.WithOverrides(overrideIdx),
		ranker.WithTracer(tracer),
	)

	classifier := kernel.NewClassifier(nil)
	resolver := kernel.NewProfileResolver(&cfg.Governance, kernel.Profile(cfg.Profile), taskKindOverride, 0)

	var execPolicy autonomy.Policy = strictPolicy
	if dryRun {
		execPolicy = noop
	}
	executor := autonomy.NewExecutor(execPolicy, reg, chain, st,
		autonomy.WithLogger(logger),
		autonomy.WithApprovalSource(st, cfg.Governance.ApprovalSecret),
		autonomy.WithToolCandidates(toolCandidates),
		autonomy.WithTracer(tracer),
	)

	engine := kernel.NewEngine(classifier, resolver, rk, executor, st,
		kernel.WithLogger(logger),
		kernel.WithTracer(tracer),
	)

	tuner := feedback.NewTuner(st, st, st, feedback.WeightsFromConfig(cfg.Feedback),
		feedback.WithLogger(logger),
		feedback.WithWindowDays(cfg.Feedback.WindowDays),
	)

	health := observability.NewHealthReporter(time.Now(), cfg.Observability.TracingEnabled, cfg.Observability.MetricsEnabled, chain.Breakers)

	return &app{
		cfg: cfg, logger: logger,
		st: st, registry: reg, chain: chain, breakers: breakers,
		tracer: tracer, metrics: metrics, recorder: recorder, health: health,
		classifier: classifier, resolver: resolver, rank: rk, executor: executor,
		engine: engine, tuner: tuner,
		strictPolicy: strictPolicy,
	}, nil
}

func buildProvider(cfg *core.Config) (store.Provider, error) {
	switch cfg.Store.Backend {
	case "redis":
		if cfg.Store.RedisURL == "" {
			return nil, fmt.Errorf("store.backend=redis requires store.redis_url")
		}
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return store.NewRedisProvider(redis.NewClient(opts)), nil
	default:
		return store.NewLocalProvider(cfg.StateRoot)
	}
}

// buildRegistry registers four leaf services unconditionally (three
// advisor-mode, plus the operator-mode automation-webhook) and the SQL-backed
// data-query service only when AGENTKERNEL_SQL_DSN is set.
func buildRegistry(logger core.Logger) *registry.Registry {
	reg := registry.New(registry.WithLogger(logger), registry.WithStrictLint(true))

	for _, desc := range []registry.ServiceDescriptor{
		registry.McKinseyPPTDescriptor(),
		registry.ResearchBriefDescriptor(),
		registry.ImageDescribeDescriptor(),
		registry.AutomationWebhookDescriptor(),
	} {
		if err := reg.Register(desc); err != nil {
			logger.Error("service registration rejected", map[string]interface{}{"error": err.Error()})
		}
	}

	if dsn := os.Getenv("AGENTKERNEL_SQL_DSN"); dsn != "" {
		querier, err := registry.NewSQLQuerier(dsn)
		if err != nil {
			logger.Error("sql querier unavailable, data-query-sql not registered", map[string]interface{}{"error": err.Error()})
		} else if err := reg.Register(registry.DataQuerySQLDescriptor(querier)); err != nil {
			logger.Error("data-query-sql registration rejected", map[string]interface{}{"error": err.Error()})
		}
	}

	return reg
}

// restoreBreakers seeds one circuit breaker per known tool from persisted
// state and wires a listener that writes every transition straight back, so
// a breaker trip survives across CLI invocations the way spec.md §4.5
// requires ("circuit state ... persisted so it survives process restarts").
func restoreBreakers(ctx context.Context, st *store.Store) map[string]*mcp.CircuitBreaker {
	saved, err := st.LoadBreakerStates(ctx)
	if err != nil {
		saved = map[string]store.BreakerState{}
	}

	names := []string{"brave-search"}
	for name := range saved {
		found := false
		for _, n := range names {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			names = append(names, name)
		}
	}

	breakers := map[string]*mcp.CircuitBreaker{}
	for _, name := range names {
		name := name
		b := mcp.NewCircuitBreaker(mcp.DefaultBreakerConfig(name))
		if state, ok := saved[name]; ok {
			b.RestoreState(state.State, state.OpenedAt, state.ConsecutiveFails)
		}
		b.AddStateChangeListener(func(_ string, _, to mcp.CircuitState) {
			state, openedAt, fails := b.Snapshot()
			_ = state
			_ = st.SaveBreakerState(ctx, name, to, openedAt, fails)
		})
		breakers[name] = b
	}
	return breakers
}

func firstNonEmptyEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// defaultRunContext builds a permissive RunContext for ad hoc, single-service
// invocations ("services call", pipeline steps) that sit outside the
// submit→plan→execute path and so never inherit a planned RunContext.
func defaultRunContext(cfg *core.Config, runID string) kernel.RunContext {
	return kernel.RunContext{
		RunID:           runID,
		Profile:         kernel.Profile(cfg.Profile),
		AllowedLayers:   cfg.Governance.AllowedLayersByProfile[cfg.Profile],
		BlockedMaturity: cfg.Governance.BlockedMaturity,
		MaxRiskLevel:    cfg.Governance.MaxRiskLevel,
	}
}
