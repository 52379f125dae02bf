package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/mcp"
	"github.com/LuisChen1Q84/agentkernel/observability"
)

// newFlagSet builds a flag.FlagSet carrying the two flags every verb shares:
// --config (which TOML file to load) and --dry-run (substitute
// governance.NoOpPolicy and skip any side-effecting execution).
func newFlagSet(name string) (fs *flag.FlagSet, configPath *string, dryRun *bool) {
	fs = flag.NewFlagSet(name, flag.ContinueOnError)
	configPath = fs.String("config", "", "path to a TOML configuration file")
	dryRun = fs.Bool("dry-run", false, "do not perform side effects")
	return fs, configPath, dryRun
}

func parseParams(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: --params must be a JSON object: %v", errUsage, err)
	}
	return out, nil
}

func runSubmit(args []string, stdout, stderr io.Writer) error {
	fs, configPath, dryRun := newFlagSet("submit")
	text := fs.String("text", "", "task text")
	profile := fs.String("profile", "auto", "strict|adaptive|auto")
	origin := fs.String("origin", "cli", "cli|studio|scheduler")
	paramsRaw := fs.String("params", "", "JSON object of explicit params")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*text) == "" {
		return fmt.Errorf("%w: --text is required", errUsage)
	}
	params, err := parseParams(*paramsRaw)
	if err != nil {
		return err
	}

	a, err := buildApp(*configPath, *dryRun)
	if err != nil {
		return err
	}
	ctx := context.Background()
	start := time.Now()

	if *dryRun {
		spec := kernel.TaskSpec{
			TaskID: "preview", Text: *text, EnteredAt: start,
			Origin: kernel.Origin(*origin), ExplicitParams: params,
		}
		spec.TaskKind = a.classifier.Classify(*text)
		resolvedProfile, learning, maxFallback, binding := a.resolver.Resolve(kernel.Profile(*profile), spec.TaskKind)
		rc := kernel.RunContext{
			RunID: "preview", TaskID: spec.TaskID, Profile: resolvedProfile,
			AllowedLayers: binding.AllowedLayers, BlockedMaturity: binding.BlockedMaturity,
			MaxRiskLevel: binding.MaxRiskLevel, Deterministic: resolvedProfile == kernel.ProfileStrict,
			LearningEnabled: learning, MaxFallbackSteps: maxFallback,
		}
		plan, err := a.rank.Plan(ctx, rc, spec)
		if err != nil {
			return err
		}
		return printJSON(stdout, map[string]interface{}{
			"dry_run": true, "task_kind": spec.TaskKind, "profile": resolvedProfile, "plan": plan,
		})
	}

	runID, runErr := a.engine.Submit(ctx, *text, kernel.Profile(*profile), kernel.Origin(*origin), params)
	latency := time.Since(start).Milliseconds()
	errKind := core.ErrorKind("")
	if runErr != nil {
		var kerr *core.KernelError
		if errors.As(runErr, &kerr) {
			errKind = kerr.Kind
		}
	}
	a.recorder.Record(ctx, "kernel", "submit", runID, "", latency, errKind)
	a.metrics.RecordRun(outcomeForError(runErr), latency)
	if runErr != nil {
		fmt.Fprintf(stderr, "run_id: %s\n", runID)
		return runErr
	}

	summary, _ := a.engine.Status(ctx, runID)
	return printJSON(stdout, map[string]interface{}{"run_id": runID, "summary": summary})
}

func runStatus(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("status")
	runID := fs.String("run", "", "run id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("%w: --run is required", errUsage)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	summary, err := a.engine.Status(context.Background(), *runID)
	if err != nil {
		return err
	}
	if summary == nil {
		return printJSON(stdout, map[string]interface{}{"status": "pending"})
	}
	return printJSON(stdout, summary)
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("inspect")
	runID := fs.String("run", "", "run id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("%w: --run is required", errUsage)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	attempts, err := a.st.GetAttempts(ctx, *runID)
	if err != nil {
		return err
	}
	bundle, bundleErr := a.st.GetDeliveryBundle(ctx, *runID)
	out := map[string]interface{}{"run_id": *runID, "attempts": attempts}
	if bundleErr == nil {
		out["delivery_bundle"] = bundle
	}
	return printJSON(stdout, out)
}

func runObserve(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("observe")
	since := fs.Duration("since", 7*24*time.Hour, "lookback window for failure topN")
	topN := fs.Int("top-n", 5, "how many strategies to report")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	failures := observability.FailureTopN(ctx, a.st, time.Now().Add(-*since), *topN)
	slo := observability.SLOAdherence(ctx, a.st, a.cfg.Feedback.HighWatermark)
	breakerRows := observability.BreakerDashboard(a.breakers)
	health := a.health.Snapshot()
	return printJSON(stdout, map[string]interface{}{
		"failure_top_n": failures, "slo_adherence": slo,
		"breakers": breakerRows, "health": health,
	})
}

func runRecommend(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("recommend")
	text := fs.String("text", "", "task text")
	profile := fs.String("profile", "auto", "strict|adaptive|auto")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*text) == "" {
		return fmt.Errorf("%w: --text is required", errUsage)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	kind := a.classifier.Classify(*text)
	resolvedProfile, _, _, binding := a.resolver.Resolve(kernel.Profile(*profile), kind)
	rc := kernel.RunContext{
		RunID: "recommend", Profile: resolvedProfile,
		AllowedLayers: binding.AllowedLayers, BlockedMaturity: binding.BlockedMaturity,
		MaxRiskLevel: binding.MaxRiskLevel, Deterministic: resolvedProfile == kernel.ProfileStrict,
	}
	spec := kernel.TaskSpec{TaskID: "recommend", Text: *text, TaskKind: kind, Origin: kernel.OriginCLI}
	plan, err := a.rank.Plan(ctx, rc, spec)
	if err != nil {
		return err
	}
	out := map[string]interface{}{"task_kind": kind, "profile": resolvedProfile, "ambiguous": plan.Ambiguous}
	if len(plan.Candidates) > 0 {
		out["recommended_strategy"] = plan.Candidates[0]
	}
	out["candidates"] = plan.Candidates
	return printJSON(stdout, out)
}

func runFeedback(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: feedback requires a subcommand: add|stats", errUsage)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return runFeedbackAdd(rest, stdout, stderr)
	case "stats":
		return runFeedbackStats(rest, stdout, stderr)
	default:
		return fmt.Errorf("%w: unknown feedback subcommand %q", errUsage, sub)
	}
}

func runFeedbackAdd(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("feedback add")
	runID := fs.String("run", "", "run id this feedback refers to")
	rating := fs.Int("rating", 0, "+1 or -1")
	note := fs.String("note", "", "free-text note")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("%w: --run is required", errUsage)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	fb := kernel.FeedbackRecord{RunID: *runID, Rating: *rating, Note: *note, SubmittedAt: time.Now()}
	if err := a.st.AppendFeedback(context.Background(), fb); err != nil {
		return err
	}
	return printJSON(stdout, fb)
}

func runFeedbackStats(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("feedback stats")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	records, err := a.st.FeedbackRecords(context.Background())
	if err != nil {
		return err
	}
	var total float64
	for _, r := range records {
		total += float64(r.Rating)
	}
	avg := 0.0
	if len(records) > 0 {
		avg = total / float64(len(records))
	}
	return printJSON(stdout, map[string]interface{}{
		"count": len(records), "average_rating": avg, "records": records,
	})
}

func runPolicy(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: policy requires a subcommand: show|apply|rollback", errUsage)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "show":
		return runPolicyShowOrApply(rest, stdout, stderr, false)
	case "apply":
		return runPolicyShowOrApply(rest, stdout, stderr, true)
	case "rollback":
		return runPolicyRollback(rest, stdout, stderr)
	default:
		return fmt.Errorf("%w: unknown policy subcommand %q", errUsage, sub)
	}
}

func runPolicyShowOrApply(args []string, stdout, stderr io.Writer, apply bool) error {
	fs, configPath, dryRun := newFlagSet("policy")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *dryRun {
		apply = false
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	result, err := a.tuner.RunOnce(context.Background(), apply)
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

func runPolicyRollback(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("policy rollback")
	snapshot := fs.String("snapshot", "", "snapshot id to restore")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*snapshot) == "" {
		return fmt.Errorf("%w: --snapshot is required", errUsage)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	restored, diff, err := a.tuner.Rollback(context.Background(), *snapshot)
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]interface{}{"restored": restored, "diff": diff})
}

func runServices(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: services requires a subcommand: list|call", errUsage)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return runServicesList(rest, stdout, stderr)
	case "call":
		return runServicesCall(rest, stdout, stderr)
	default:
		return fmt.Errorf("%w: unknown services subcommand %q", errUsage, sub)
	}
}

func runServicesList(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("services list")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	type row struct {
		ServiceName   string   `json:"service_name"`
		ExecutionMode string   `json:"execution_mode"`
		TaskKinds     []string `json:"task_kinds"`
		SideEffects   []string `json:"side_effects,omitempty"`
	}
	var rows []row
	for _, desc := range a.registry.List() {
		kinds := make([]string, 0, len(desc.Contract.TaskKinds))
		for _, k := range desc.Contract.TaskKinds {
			kinds = append(kinds, string(k))
		}
		rows = append(rows, row{
			ServiceName: desc.Contract.ServiceName, ExecutionMode: string(desc.Contract.ExecutionMode),
			TaskKinds: kinds, SideEffects: desc.Contract.SideEffects,
		})
	}
	return printJSON(stdout, rows)
}

func runServicesCall(args []string, stdout, stderr io.Writer) error {
	fs, configPath, dryRun := newFlagSet("services call")
	service := fs.String("service", "", "registered service name")
	paramsRaw := fs.String("params", "", "JSON object of params")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*service) == "" {
		return fmt.Errorf("%w: --service is required", errUsage)
	}
	params, err := parseParams(*paramsRaw)
	if err != nil {
		return err
	}
	a, err := buildApp(*configPath, *dryRun)
	if err != nil {
		return err
	}
	rc := defaultRunContext(a.cfg, "services-call")

	if *dryRun {
		return printJSON(stdout, map[string]interface{}{
			"dry_run": true, "service": *service, "params": params,
		})
	}

	ctx := context.Background()
	start := time.Now()
	result, callErr := a.registry.Call(ctx, *service, params, rc)
	latency := time.Since(start).Milliseconds()
	status := "ok"
	if callErr != nil {
		status = "error"
	}
	a.metrics.RecordToolCall(*service, status)
	if callErr != nil {
		return callErr
	}
	return printJSON(stdout, result)
}

func runDiagnose(args []string, stdout, stderr io.Writer) error {
	fs, configPath, _ := newFlagSet("diagnose")
	topN := fs.Int("top-n", 10, "how many recent runs to inspect")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a, err := buildApp(*configPath, false)
	if err != nil {
		return err
	}
	report := observability.Diagnose(context.Background(), a.cfg, a.registry, a.breakers, a.st, *topN)
	return printJSON(stdout, report)
}

func runPipeline(args []string, stdout, stderr io.Writer) error {
	fs, configPath, dryRun := newFlagSet("pipeline")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("%w: pipeline requires a file path", errUsage)
	}
	path := rest[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return core.NewKernelError("pipeline", core.ErrorKindMissingInput, err)
	}
	pipeline, err := decodePipeline(path, data)
	if err != nil {
		return core.NewKernelError("pipeline", core.ErrorKindContractViolation, err)
	}

	a, err := buildApp(*configPath, *dryRun)
	if err != nil {
		return err
	}
	ctx := context.Background()
	rc := defaultRunContext(a.cfg, "pipeline")

	runner := func(ctx context.Context, step mcp.PipelineStep) error {
		if *dryRun {
			return nil
		}
		_, err := a.registry.Call(ctx, step.Service, step.Params, rc)
		return err
	}
	results := mcp.RunPipeline(ctx, pipeline, runner)
	return printJSON(stdout, map[string]interface{}{"dry_run": *dryRun, "results": results})
}

// decodePipeline dispatches on file extension across the three formats
// mcp.Pipeline's struct tags support.
func decodePipeline(path string, data []byte) (mcp.Pipeline, error) {
	switch {
	case strings.HasSuffix(path, ".json"):
		return mcp.ParsePipelineJSON(data)
	case strings.HasSuffix(path, ".toml"):
		return mcp.ParsePipelineTOML(data)
	default:
		return mcp.ParsePipelineYAML(data)
	}
}

func outcomeForError(err error) string {
	if err == nil {
		return "succeeded"
	}
	return "failed"
}
