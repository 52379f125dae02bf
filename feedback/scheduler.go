package feedback

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Scheduler drives Tuner.RunOnce on a configured cadence. Grounded on
// spec.md §4.8's **[AMBIENT/DOMAIN STACK]** note: "robfig/cron/v3 ... drives
// the tuner's configured cadence instead of a hand-rolled ticker loop" —
// unlike the pack's own schedule-due-check-in-a-ticker pattern
// (marcus-qen-legator's jobs.Scheduler), this uses cron.Cron's own
// AddFunc/Start/Stop lifecycle directly.
type Scheduler struct {
	tuner *Tuner
	cron  *cron.Cron
	apply bool
}

// SchedulerOption configures a Scheduler at construction.
type SchedulerOption func(*Scheduler)

// WithApply controls whether scheduled runs apply their proposals
// immediately (apply=true) or only persist evaluation records and leave the
// plan for human review via `policy show` (the default, apply=false).
func WithApply(apply bool) SchedulerOption {
	return func(s *Scheduler) { s.apply = apply }
}

// NewScheduler builds a Scheduler that fires Tuner.RunOnce on cronSpec (a
// standard 5-field cron expression, e.g. core.FeedbackConfig.CronSchedule).
func NewScheduler(tuner *Tuner, cronSpec string, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{tuner: tuner, cron: cron.New()}
	for _, opt := range opts {
		opt(s)
	}
	_, err := s.cron.AddFunc(cronSpec, func() {
		_, _ = s.tuner.RunOnce(context.Background(), s.apply)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron schedule. It returns immediately; the underlying
// cron.Cron runs its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels the schedule and waits for any in-flight run to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
