package observability

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
	"github.com/LuisChen1Q84/agentkernel/mcp"
	"github.com/LuisChen1Q84/agentkernel/registry"
)

// Severity ranks a Finding for report ordering, most urgent first.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (sev Severity) String() string {
	switch sev {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Finding is one row of the `diagnose` report.
type Finding struct {
	Stage    string   `json:"stage"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report is the complete, severity-ranked `diagnose` output: the graph walk
// env → config → services → breaker state → last N runs, per spec.md §4.9.
type Report struct {
	Findings []Finding `json:"findings"`
}

// RunHistorySource is the subset of store.Store diagnose's last-N-runs leg
// needs.
type RunHistorySource interface {
	RecentRunSummaries(ctx context.Context, n int) []kernel.RunSummary
}

// Diagnose walks env → config → services → breaker state → last N runs and
// returns a severity-ranked Report. cfg, reg, breakers and history may each
// be nil/empty without a panic: a nil cfg yields a critical "no configuration
// loaded" finding, a nil reg a warning, and nil or empty breakers or history
// no findings for their stage, since an operator may run `diagnose` before
// every component is wired (e.g. straight after `agentctl` starts with an
// empty registry).
func Diagnose(ctx context.Context, cfg *core.Config, reg *registry.Registry, breakers map[string]*mcp.CircuitBreaker, history RunHistorySource, lastN int) Report {
	var findings []Finding

	findings = append(findings, diagnoseEnv()...)
	findings = append(findings, diagnoseConfig(cfg)...)
	findings = append(findings, diagnoseServices(reg)...)
	findings = append(findings, diagnoseBreakers(breakers)...)
	findings = append(findings, diagnoseRuns(ctx, history, lastN)...)

	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Severity > findings[j].Severity })
	return Report{Findings: findings}
}

func diagnoseEnv() []Finding {
	var out []Finding
	if os.Getenv("AGENTKERNEL_APPROVAL_SECRET") == "" {
		out = append(out, Finding{
			Stage: "env", Severity: SeverityWarning,
			Message: "AGENTKERNEL_APPROVAL_SECRET is unset; operator-mode candidates requiring approval cannot be admitted",
		})
	}
	return out
}

func diagnoseConfig(cfg *core.Config) []Finding {
	if cfg == nil {
		return []Finding{{Stage: "config", Severity: SeverityCritical, Message: "no configuration loaded"}}
	}
	var out []Finding
	if err := cfg.Validate(); err != nil {
		out = append(out, Finding{Stage: "config", Severity: SeverityCritical, Message: err.Error()})
	}
	return out
}

func diagnoseServices(reg *registry.Registry) []Finding {
	if reg == nil {
		return []Finding{{Stage: "services", Severity: SeverityWarning, Message: "no service registry wired"}}
	}
	services := reg.List()
	if len(services) == 0 {
		return []Finding{{Stage: "services", Severity: SeverityWarning, Message: "no services registered"}}
	}
	return []Finding{{
		Stage: "services", Severity: SeverityInfo,
		Message: fmt.Sprintf("%d service(s) registered", len(services)),
	}}
}

func diagnoseBreakers(breakers map[string]*mcp.CircuitBreaker) []Finding {
	var out []Finding
	for _, row := range BreakerDashboard(breakers) {
		switch row.State {
		case mcp.StateOpen.String():
			out = append(out, Finding{
				Stage: "breaker", Severity: SeverityCritical,
				Message: fmt.Sprintf("circuit breaker for %q is open after %d consecutive failures", row.Tool, row.ConsecutiveFails),
			})
		case mcp.StateHalfOpen.String():
			out = append(out, Finding{
				Stage: "breaker", Severity: SeverityWarning,
				Message: fmt.Sprintf("circuit breaker for %q is half-open, probing recovery", row.Tool),
			})
		}
	}
	return out
}

func diagnoseRuns(ctx context.Context, history RunHistorySource, lastN int) []Finding {
	if history == nil {
		return nil
	}
	summaries := history.RecentRunSummaries(ctx, lastN)
	var failed, degraded int
	for _, s := range summaries {
		switch s.Outcome {
		case kernel.OutcomeFailed, kernel.OutcomeAborted:
			failed++
		case kernel.OutcomeDegraded:
			degraded++
		}
	}
	var out []Finding
	if failed > 0 {
		out = append(out, Finding{
			Stage: "runs", Severity: SeverityWarning,
			Message: fmt.Sprintf("%d of the last %d runs failed or aborted", failed, len(summaries)),
		})
	}
	if degraded > 0 {
		out = append(out, Finding{
			Stage: "runs", Severity: SeverityInfo,
			Message: fmt.Sprintf("%d of the last %d runs completed degraded", degraded, len(summaries)),
		})
	}
	return out
}
