package observability

import (
	"context"
	"testing"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	events []core.Event
}

func (f *fakeSink) AppendTelemetryEvent(_ context.Context, ev core.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func TestRecorderPersistsEventWithDerivedStatus(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink)

	r.Record(context.Background(), "kernel", "submit", "run-1", "trace-1", 120, "")
	r.Record(context.Background(), "mcp", "chain.run", "run-1", "trace-1", 50, core.ErrorKindToolTimeout)

	require.Len(t, sink.events, 2)
	assert.Equal(t, core.EventStatusOK, sink.events[0].Status)
	assert.Equal(t, core.EventStatusError, sink.events[1].Status)
	assert.Equal(t, core.ErrorKindToolTimeout, sink.events[1].ErrorCode)
}

func TestTracerDisabledIsNoOpStartSpan(t *testing.T) {
	tr := NewTracer("agentkernel-test", false)
	ctx, end := tr.StartSpan(context.Background(), "test.span")
	require.NotNil(t, ctx)
	end(nil)
	end(assert.AnError) // must not panic when called again with an error
}

func TestTracerEnabledRecordsErrorOnSpan(t *testing.T) {
	tr := NewTracer("agentkernel-test", true)
	defer tr.Shutdown(context.Background())

	ctx, end := tr.StartSpan(context.Background(), "test.span")
	require.NotNil(t, ctx)
	end(assert.AnError)
}

func TestMetricsRecordRunIncrementsCounter(t *testing.T) {
	m := NewMetrics()
	m.RecordRun("succeeded", 250)
	m.RecordAttempt("strategy-a", "succeeded")
	m.RecordToolCall("search", "ok")
	m.SetBreakerState("search", 0)

	require.NotNil(t, m.Handler())
}

func TestBreakerDashboardOrdersByToolName(t *testing.T) {
	breakers := map[string]*mcp.CircuitBreaker{
		"zeta":  mcp.NewCircuitBreaker(mcp.DefaultBreakerConfig("zeta")),
		"alpha": mcp.NewCircuitBreaker(mcp.DefaultBreakerConfig("alpha")),
	}
	rows := BreakerDashboard(breakers)
	require.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0].Tool)
	assert.Equal(t, "zeta", rows[1].Tool)
	assert.Equal(t, "closed", rows[0].State)
}

type fakeHistory struct {
	summaries []kernel.RunSummary
}

func (f *fakeHistory) RecentRunSummaries(_ context.Context, n int) []kernel.RunSummary {
	if n > 0 && n < len(f.summaries) {
		return f.summaries[:n]
	}
	return f.summaries
}

func TestDiagnoseFlagsFailedRunsAndOpenBreakers(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Governance.ApprovalSecret = "secret"

	breaker := mcp.NewCircuitBreaker(mcp.DefaultBreakerConfig("search"))
	breaker.RestoreState(mcp.StateOpen, time.Now(), 5)
	breakers := map[string]*mcp.CircuitBreaker{"search": breaker}

	history := &fakeHistory{summaries: []kernel.RunSummary{
		{RunID: "r1", Outcome: kernel.OutcomeFailed},
		{RunID: "r2", Outcome: kernel.OutcomeSucceeded},
	}}

	report := Diagnose(context.Background(), cfg, nil, breakers, history, 10)
	require.NotEmpty(t, report.Findings)
	assert.Equal(t, SeverityCritical, report.Findings[0].Severity, "open breaker or config error must rank first")

	var sawOpenBreaker, sawFailedRun bool
	for _, f := range report.Findings {
		if f.Stage == "breaker" && f.Severity == SeverityCritical {
			sawOpenBreaker = true
		}
		if f.Stage == "runs" {
			sawFailedRun = true
		}
	}
	assert.True(t, sawOpenBreaker)
	assert.True(t, sawFailedRun)
}
