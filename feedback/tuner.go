// Package feedback implements the Feedback & Policy Tuner (spec.md §4.8): on
// a configured cadence it aggregates recent ExecutionAttempts into
// per-strategy EvaluationRecords, classifies each as promote/demote/
// collect-more-data by a weighted health score, enforces the strict P1/P2
// forced-demotion rule, and either writes a reversible override snapshot or
// returns the proposal set unapplied to its caller. The package writes no
// plan file.
package feedback

import (
	"context"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/store"
)

// AttemptSource supplies the raw attempts a window's aggregation is built
// from; implemented by store.Store.
type AttemptSource interface {
	AttemptsInWindow(ctx context.Context, since time.Time) []kernel.ExecutionAttempt
}

// EvaluationStore persists the Tuner's aggregates and answers the
// per-strategy window history the forced-demotion rule walks; implemented
// by store.Store.
type EvaluationStore interface {
	PutEvaluationRecords(ctx context.Context, records []kernel.EvaluationRecord) error
	EvaluationHistory(ctx context.Context, strategyID string) []kernel.EvaluationRecord
}

// OverrideStore is the reversible override log; implemented by store.Store.
// Its Rollback signature reuses store.OverrideDiff directly — unlike
// autonomy's RunRecorder, there is no alternate implementation to decouple
// from, so importing the concrete type costs nothing.
type OverrideStore interface {
	ApplySnapshot(ctx context.Context, snapshotID string, overrides []kernel.PolicyOverride) error
	ActiveOverrides(ctx context.Context) ([]kernel.PolicyOverride, string, error)
	Rollback(ctx context.Context, snapshotID string) (restored []kernel.PolicyOverride, diff store.OverrideDiff, err error)
}

// Weights are the configurable health-score coefficients, mirroring
// ranker.Weights' "keep weights as configuration" shape (Design Note
// "Score-weighted ranking with memory") adapted from base/memory score to
// success-rate/latency/fallback-rate.
type Weights struct {
	SuccessWeight  float64
	LatencyWeight  float64
	FallbackWeight float64

	// LatencyCeilingMS normalizes p95 latency into a [0,1] penalty: latency
	// at or above this ceiling contributes the full LatencyWeight penalty.
	LatencyCeilingMS int64

	HighWatermark float64
	LowWatermark  float64
	MinSamples    int

	// ConsecutiveWindows is M: the number of consecutive windows a
	// strategy must score at/below LowWatermark before Classify recommends
	// demote (spec.md §4.8 step 2).
	ConsecutiveWindows int

	// BreachLookback is N: the window the P1/P2 forced-demotion rule scans
	// (spec.md §4.8 step 5 / example 6: "over N=7 days").
	BreachLookback time.Duration

	MaxActions       int
	MinPriorityScore float64
}

// DefaultWeights mirrors core.DefaultConfig's FeedbackConfig defaults.
func DefaultWeights() Weights {
	return Weights{
		SuccessWeight: 0.5, LatencyWeight: 0.3, FallbackWeight: 0.2,
		LatencyCeilingMS: 10000, HighWatermark: 0.8, LowWatermark: 0.4,
		MinSamples: 5, ConsecutiveWindows: 3, BreachLookback: 7 * 24 * time.Hour,
		MaxActions: 5, MinPriorityScore: 0.1,
	}
}

// WeightsFromConfig adapts core.FeedbackConfig into Weights, the same
// file-to-struct seam core.Config uses for ranker/mcp.
func WeightsFromConfig(cfg core.FeedbackConfig) Weights {
	w := Weights{
		SuccessWeight: cfg.SuccessRateWeight, LatencyWeight: cfg.LatencyWeight,
		FallbackWeight: cfg.FallbackWeight, LatencyCeilingMS: cfg.LatencyCeilingMS,
		HighWatermark: cfg.HighWatermark, LowWatermark: cfg.LowWatermark,
		MinSamples: cfg.MinSamples, ConsecutiveWindows: cfg.ConsecutiveWindows,
		BreachLookback: time.Duration(cfg.BreachLookbackDays) * 24 * time.Hour,
		MaxActions:     cfg.MaxActions, MinPriorityScore: cfg.MinPriorityScore,
	}
	if w.ConsecutiveWindows <= 0 {
		w.ConsecutiveWindows = 3
	}
	if w.BreachLookback <= 0 {
		w.BreachLookback = 7 * 24 * time.Hour
	}
	if w.MaxActions <= 0 {
		w.MaxActions = 5
	}
	return w
}

// Tuner is the concrete Policy Tuner. It is stateless between RunOnce calls
// beyond the collaborators injected at construction — every decision is
// reconstructible from the attempt log and evaluation history, mirroring
// ranker.Ranker's "no hidden context" design.
type Tuner struct {
	attempts   AttemptSource
	evals      EvaluationStore
	overrides  OverrideStore
	weights    Weights
	windowDays int
	logger     core.Logger
	clock      core.Clock
	idFunc     func() string
}

// Option configures a Tuner at construction.
type Option func(*Tuner)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) Option {
	return func(t *Tuner) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			t.logger = aware.WithComponent("feedback")
			return
		}
		t.logger = logger
	}
}

// WithClock overrides the clock used to bound the aggregation window; tests
// use this for deterministic "last N days" computation.
func WithClock(clock core.Clock) Option {
	return func(t *Tuner) { t.clock = clock }
}

// WithIDFunc overrides the snapshot_id generator.
func WithIDFunc(f func() string) Option {
	return func(t *Tuner) { t.idFunc = f }
}

// WithWindowDays overrides the default 14-day aggregation window (spec.md
// §4.8 step 1: "aggregate the last N days of attempts").
func WithWindowDays(days int) Option {
	return func(t *Tuner) {
		if days > 0 {
			t.windowDays = days
		}
	}
}

// NewTuner builds a Tuner over its collaborators.
func NewTuner(attempts AttemptSource, evals EvaluationStore, overrides OverrideStore, weights Weights, opts ...Option) *Tuner {
	t := &Tuner{
		attempts: attempts, evals: evals, overrides: overrides, weights: weights,
		windowDays: 14, logger: &core.NoOpLogger{}, clock: core.SystemClock{},
		idFunc: defaultSnapshotIDFunc,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func defaultSnapshotIDFunc() string {
	return time.Now().UTC().Format("20060102T150405.000000000Z")
}

// RunResult is what one tuning cycle produced, returned to the caller (the
// `policy show`/cron job log) regardless of whether it was applied.
type RunResult struct {
	Evaluations []kernel.EvaluationRecord
	Plan        Plan
	Applied     bool
	SnapshotID  string
}

// RunOnce executes one full cycle of spec.md §4.8's loop: aggregate, score,
// classify, build a bounded proposal set, and either apply it as a new
// override snapshot or return it unapplied for human review.
func (t *Tuner) RunOnce(ctx context.Context, apply bool) (RunResult, error) {
	now := t.clock.Now()
	since := now.Add(-time.Duration(t.windowDays) * 24 * time.Hour)

	attempts := t.attempts.AttemptsInWindow(ctx, since)
	windows := Aggregate(attempts, since, now, t.weights)

	records := make([]kernel.EvaluationRecord, len(windows))
	for i := range windows {
		history := t.evals.EvaluationHistory(ctx, windows[i].Record.StrategyID)
		windows[i].Record.Recommendation = Classify(windows[i].Record, windows[i].SampleCount, history, t.weights)
		records[i] = windows[i].Record
	}

	if err := t.evals.PutEvaluationRecords(ctx, records); err != nil {
		t.logger.ErrorWithContext(ctx, "failed to persist evaluation records", map[string]interface{}{"error": err.Error()})
		return RunResult{}, err
	}

	breached := t.breachedStrategies(ctx, attempts, since)
	plan := BuildPlan(records, breached, t.weights)

	result := RunResult{Evaluations: records, Plan: plan}
	if !apply || len(plan.Proposals) == 0 {
		return result, nil
	}

	snapshotID := t.idFunc()
	if err := t.overrides.ApplySnapshot(ctx, snapshotID, plan.Proposals); err != nil {
		return result, err
	}
	result.Applied = true
	result.SnapshotID = snapshotID
	t.logger.InfoWithContext(ctx, "applied policy override snapshot", map[string]interface{}{
		"snapshot_id": snapshotID, "proposal_count": len(plan.Proposals),
	})
	return result, nil
}

// Rollback restores the override set recorded in snapshotID itself (as
// store.Store.Rollback does, by appending it as a new snapshot) and reports
// the diff against the set active before the rollback.
func (t *Tuner) Rollback(ctx context.Context, snapshotID string) ([]kernel.PolicyOverride, store.OverrideDiff, error) {
	return t.overrides.Rollback(ctx, snapshotID)
}
