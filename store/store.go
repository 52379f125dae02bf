package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// runRecord is the in-memory projection of one run, rebuilt at Open by
// replaying events/runs.jsonl and events/attempts.jsonl — the "small
// relational index for fast lookups" spec.md §4.7 calls for, kept in memory
// rather than a real RDBMS since the system is single-operator/local
// (spec.md §1 Non-goals).
type runRecord struct {
	Spec     kernel.TaskSpec
	Context  kernel.RunContext
	Attempts []kernel.ExecutionAttempt
	Summary  *kernel.RunSummary
	Bundle   *kernel.DeliveryBundle
}

// runEvent is one line of events/runs.jsonl: either a run_started or a
// run_sealed record, distinguished by Type.
type runEvent struct {
	Type           string                 `json:"type"`
	RunContext     *kernel.RunContext     `json:"run_context,omitempty"`
	TaskSpec       *kernel.TaskSpec       `json:"task_spec,omitempty"`
	RunSummary     *kernel.RunSummary     `json:"run_summary,omitempty"`
	DeliveryBundle *kernel.DeliveryBundle `json:"delivery_bundle,omitempty"`
	RecordedAt     time.Time              `json:"recorded_at"`
}

const (
	eventRunStarted = "run_started"
	eventRunSealed  = "run_sealed"
)

// Store is the concrete State Store & Evidence component (spec.md §4.7). It
// satisfies kernel.RunStore and ranker.MemoryScorer directly so it can be
// wired into both without an adapter.
type Store struct {
	root     string
	provider Provider

	runsLog      *EventLog
	attemptsLog  *EventLog
	feedbackLog  *EventLog
	breakerLog   *EventLog
	evaluations  *EventLog
	telemetryLog *EventLog

	mu                sync.RWMutex
	runs              map[string]*runRecord
	latestByTaskKind  map[kernel.TaskKind]string
	evalByStrategy    map[string]kernel.EvaluationRecord
	sealedOrder       []string // run_ids in seal order, oldest first
	windowDays        int
	clock             core.Clock
	logger            core.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger core.Logger) Option {
	return func(s *Store) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			s.logger = aware.WithComponent("store")
			return
		}
		s.logger = logger
	}
}

// WithClock overrides the clock used for TTL/window computations in tests.
func WithClock(clock core.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithMemoryWindowDays bounds how far back an EvaluationRecord may be and
// still feed ranker.MemoryScore — Open Question decision #2 in DESIGN.md.
func WithMemoryWindowDays(days int) Option {
	return func(s *Store) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// Open builds a Store rooted at dir, creating the events/ and config/
// subdirectories and replaying every existing event log into the in-memory
// index.
func Open(dir string, provider Provider, opts ...Option) (*Store, error) {
	eventsDir := filepath.Join(dir, "events")
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir events dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "config", "overrides"), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir config dir: %w", err)
	}

	runsLog, err := OpenEventLog(filepath.Join(eventsDir, "runs.jsonl"))
	if err != nil {
		return nil, err
	}
	attemptsLog, err := OpenEventLog(filepath.Join(eventsDir, "attempts.jsonl"))
	if err != nil {
		return nil, err
	}
	feedbackLog, err := OpenEventLog(filepath.Join(eventsDir, "feedback.jsonl"))
	if err != nil {
		return nil, err
	}
	breakerLog, err := OpenEventLog(filepath.Join(eventsDir, "breaker.jsonl"))
	if err != nil {
		return nil, err
	}
	evaluations, err := OpenEventLog(filepath.Join(eventsDir, "evaluations.jsonl"))
	if err != nil {
		return nil, err
	}
	telemetryLog, err := OpenEventLog(filepath.Join(eventsDir, "telemetry.jsonl"))
	if err != nil {
		return nil, err
	}

	s := &Store{
		root:             dir,
		provider:         provider,
		runsLog:          runsLog,
		attemptsLog:      attemptsLog,
		feedbackLog:      feedbackLog,
		breakerLog:       breakerLog,
		evaluations:      evaluations,
		telemetryLog:     telemetryLog,
		runs:             make(map[string]*runRecord),
		latestByTaskKind: make(map[kernel.TaskKind]string),
		evalByStrategy:   make(map[string]kernel.EvaluationRecord),
		windowDays:       14,
		clock:            core.SystemClock{},
		logger:           &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.replay(eventsDir); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) replay(eventsDir string) error {
	if err := ReadAllLines(filepath.Join(eventsDir, "runs.jsonl"), func(line []byte) error {
		var ev runEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil // skip malformed trailing line
		}
		s.applyRunEvent(ev)
		return nil
	}); err != nil {
		return err
	}

	if err := ReadAllLines(filepath.Join(eventsDir, "attempts.jsonl"), func(line []byte) error {
		var att kernel.ExecutionAttempt
		if err := json.Unmarshal(line, &att); err != nil {
			return nil
		}
		if rec := s.runs[att.RunID]; rec != nil {
			rec.Attempts = append(rec.Attempts, att)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := ReadAllLines(filepath.Join(eventsDir, "evaluations.jsonl"), func(line []byte) error {
		var rec kernel.EvaluationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil
		}
		s.evalByStrategy[rec.StrategyID] = rec
		return nil
	}); err != nil {
		return err
	}

	return nil
}

func (s *Store) applyRunEvent(ev runEvent) {
	switch ev.Type {
	case eventRunStarted:
		if ev.RunContext == nil || ev.TaskSpec == nil {
			return
		}
		s.runs[ev.RunContext.RunID] = &runRecord{Spec: *ev.TaskSpec, Context: *ev.RunContext}
		s.latestByTaskKind[ev.TaskSpec.TaskKind] = ev.RunContext.RunID
	case eventRunSealed:
		if ev.RunSummary == nil {
			return
		}
		rec := s.runs[ev.RunSummary.RunID]
		if rec == nil {
			rec = &runRecord{}
			s.runs[ev.RunSummary.RunID] = rec
		}
		summary := *ev.RunSummary
		rec.Summary = &summary
		if ev.DeliveryBundle != nil {
			bundle := *ev.DeliveryBundle
			rec.Bundle = &bundle
		}
		s.sealedOrder = append(s.sealedOrder, summary.RunID)
	}
}

// PutRunContext implements kernel.RunStore: append a run_started event and
// update the in-memory index.
func (s *Store) PutRunContext(_ context.Context, rc kernel.RunContext, spec kernel.TaskSpec) error {
	ev := runEvent{Type: eventRunStarted, RunContext: &rc, TaskSpec: &spec, RecordedAt: s.clock.Now()}
	if err := s.runsLog.Append(ev); err != nil {
		return fmt.Errorf("append run_started: %w", err)
	}
	s.mu.Lock()
	s.applyRunEvent(ev)
	s.mu.Unlock()
	return nil
}

// AppendAttempt appends one ExecutionAttempt, preserving the strict-prefix
// ordering guarantee (spec.md §3 invariant 3): callers append attempts in
// plan order and never out of order.
func (s *Store) AppendAttempt(_ context.Context, att kernel.ExecutionAttempt) error {
	if err := s.attemptsLog.Append(att); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	s.mu.Lock()
	if rec := s.runs[att.RunID]; rec != nil {
		rec.Attempts = append(rec.Attempts, att)
	}
	s.mu.Unlock()
	return nil
}

// SealRun appends the run_sealed event carrying the terminal RunSummary and
// its DeliveryBundle (spec.md §3 invariant 2: exactly one RunSummary per
// RunContext).
func (s *Store) SealRun(_ context.Context, summary kernel.RunSummary, bundle kernel.DeliveryBundle) error {
	s.mu.RLock()
	rec := s.runs[summary.RunID]
	s.mu.RUnlock()
	if rec != nil && rec.Summary != nil {
		return core.NewKernelError("Store.SealRun", core.ErrorKindInternal, core.ErrAlreadySealed)
	}

	ev := runEvent{Type: eventRunSealed, RunSummary: &summary, DeliveryBundle: &bundle, RecordedAt: s.clock.Now()}
	if err := s.runsLog.Append(ev); err != nil {
		return fmt.Errorf("append run_sealed: %w", err)
	}
	s.mu.Lock()
	s.applyRunEvent(ev)
	s.mu.Unlock()
	return nil
}

// GetRunSummary implements kernel.RunStore.
func (s *Store) GetRunSummary(_ context.Context, runID string) (*kernel.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok || rec.Summary == nil {
		return nil, nil // pending, per `status(run_id) → RunSummary|pending`
	}
	summary := *rec.Summary
	return &summary, nil
}

// GetDeliveryBundle returns the sealed bundle for a run, used by `inspect`.
func (s *Store) GetDeliveryBundle(_ context.Context, runID string) (*kernel.DeliveryBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok || rec.Bundle == nil {
		return nil, core.NewKernelError("Store.GetDeliveryBundle", core.ErrorKindInternal, core.ErrRunNotFound)
	}
	bundle := *rec.Bundle
	return &bundle, nil
}

// GetAttempts returns every recorded attempt for a run, in append order —
// the full breakdown `inspect run_id` retrieves per spec.md §7.
func (s *Store) GetAttempts(_ context.Context, runID string) ([]kernel.ExecutionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, core.NewKernelError("Store.GetAttempts", core.ErrorKindInternal, core.ErrRunNotFound)
	}
	return append([]kernel.ExecutionAttempt(nil), rec.Attempts...), nil
}

// LatestRunForTaskKind answers "latest run per (module, task_kind)".
func (s *Store) LatestRunForTaskKind(_ context.Context, kind kernel.TaskKind) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runID, ok := s.latestByTaskKind[kind]
	return runID, ok
}

// AttemptsInWindow returns every attempt recorded since `since`, across all
// runs, ungrouped — the raw input to failure-hotspot and evaluation
// aggregation.
func (s *Store) AttemptsInWindow(_ context.Context, since time.Time) []kernel.ExecutionAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []kernel.ExecutionAttempt
	for _, rec := range s.runs {
		for _, att := range rec.Attempts {
			if !att.StartedAt.Before(since) {
				out = append(out, att)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// FailureHotspots ranks strategy_ids by failed-attempt count since `since`,
// most failures first, truncated to topN.
func (s *Store) FailureHotspots(ctx context.Context, since time.Time, topN int) []StrategyFailureCount {
	counts := map[string]int{}
	for _, att := range s.AttemptsInWindow(ctx, since) {
		if att.Status == kernel.AttemptFailed {
			counts[att.StrategyID]++
		}
	}
	out := make([]StrategyFailureCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, StrategyFailureCount{StrategyID: id, Failures: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].StrategyID < out[j].StrategyID
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// StrategyFailureCount is one row of a FailureHotspots report.
type StrategyFailureCount struct {
	StrategyID string
	Failures   int
}

// PutEvaluationRecords persists the Tuner's periodic aggregates (spec.md
// §4.8) and refreshes the in-memory cache ranker.MemoryScore reads from.
func (s *Store) PutEvaluationRecords(_ context.Context, records []kernel.EvaluationRecord) error {
	for _, rec := range records {
		if err := s.evaluations.Append(rec); err != nil {
			return fmt.Errorf("append evaluation record: %w", err)
		}
	}
	s.mu.Lock()
	for _, rec := range records {
		s.evalByStrategy[rec.StrategyID] = rec
	}
	s.mu.Unlock()
	return nil
}

// EvaluationRecords returns the latest cached EvaluationRecord per strategy,
// in strategy_id order. The tuner's consecutive-window check reads
// EvaluationHistory instead.
func (s *Store) EvaluationRecords(_ context.Context) []kernel.EvaluationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]kernel.EvaluationRecord, 0, len(s.evalByStrategy))
	for _, rec := range s.evalByStrategy {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out
}

// MemoryScore implements ranker.MemoryScorer: only EvaluationRecords whose
// window_end falls inside the configured WindowDays feed runtime ranking
// (Open Question decision #2, DESIGN.md) — older data stays visible through
// `observe`/`diagnose` but never here.
func (s *Store) MemoryScore(_ context.Context, strategyID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.evalByStrategy[strategyID]
	if !ok {
		return 0, false
	}
	if s.clock.Now().Sub(rec.WindowEnd) > time.Duration(s.windowDays)*24*time.Hour {
		return 0, false
	}
	return rec.SuccessRate, true
}

// AppendFeedback persists one operator rating (spec.md §3 FeedbackRecord);
// feedback ingestion is append-only and may arrive out of order with
// respect to runs (spec.md §5).
func (s *Store) AppendFeedback(_ context.Context, fb kernel.FeedbackRecord) error {
	return s.feedbackLog.Append(fb)
}

// FeedbackRecords returns every recorded FeedbackRecord.
func (s *Store) FeedbackRecords(_ context.Context) ([]kernel.FeedbackRecord, error) {
	var out []kernel.FeedbackRecord
	err := ReadAllLines(filepath.Join(s.root, "events", "feedback.jsonl"), func(line []byte) error {
		var fb kernel.FeedbackRecord
		if err := json.Unmarshal(line, &fb); err != nil {
			return nil
		}
		out = append(out, fb)
		return nil
	})
	return out, err
}

// EvaluationHistory returns every EvaluationRecord ever recorded for
// strategyID, oldest window first — the feedback Tuner's forced-demotion
// rule walks this to count consecutive breached windows, which the
// single-latest-record cache in evalByStrategy cannot answer.
func (s *Store) EvaluationHistory(_ context.Context, strategyID string) []kernel.EvaluationRecord {
	var out []kernel.EvaluationRecord
	err := ReadAllLines(filepath.Join(s.root, "events", "evaluations.jsonl"), func(line []byte) error {
		var rec kernel.EvaluationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil
		}
		if rec.StrategyID == strategyID {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowEnd.Before(out[j].WindowEnd) })
	return out
}

// RecentRunSummaries returns up to n sealed RunSummaries, most recently
// sealed first — the "last N runs" leg of the `diagnose` graph walk
// (spec.md §4.9). Unsealed (pending) runs are skipped.
func (s *Store) RecentRunSummaries(_ context.Context, n int) []kernel.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]kernel.RunSummary, 0, n)
	for i := len(s.sealedOrder) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		rec := s.runs[s.sealedOrder[i]]
		if rec != nil && rec.Summary != nil {
			out = append(out, *rec.Summary)
		}
	}
	return out
}

// AppendTelemetryEvent persists one core.Event to events/telemetry.jsonl — the
// unified telemetry log (spec.md §4.9). Kept append-only and unindexed in
// memory like feedback.jsonl: unlike runs/attempts/evaluations, nothing
// needs a fast in-memory view of it.
func (s *Store) AppendTelemetryEvent(_ context.Context, ev core.Event) error {
	return s.telemetryLog.Append(ev)
}

// RecentTelemetryEvents returns every recorded Event since `since`, oldest
// first. Neither the dashboard reports nor `diagnose` call it.
func (s *Store) RecentTelemetryEvents(_ context.Context, since time.Time) ([]core.Event, error) {
	var out []core.Event
	err := ReadAllLines(filepath.Join(s.root, "events", "telemetry.jsonl"), func(line []byte) error {
		var ev core.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil
		}
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Root exposes the state-root directory for cmd/agentctl to lay out
// config/ alongside events/ and artifacts/.
func (s *Store) Root() string { return s.root }
