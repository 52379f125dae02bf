// Package kernel holds the core data model (spec.md §3) and the Planner/
// Engine that turn a submitted TaskSpec into a RunContext, an ExecutionPlan
// and eventually a sealed RunSummary. Other packages (ranker, registry, mcp,
// governance, store, autonomy, feedback) depend on these types; kernel itself
// depends only on core, keeping the dependency graph acyclic the way the
// teacher's own core/orchestration split does.
package kernel

import "time"

// TaskKind enumerates the classification buckets a TaskSpec can fall into.
type TaskKind string

const (
	TaskKindPresentation TaskKind = "presentation"
	TaskKindResearch     TaskKind = "research"
	TaskKindDataQuery    TaskKind = "data-query"
	TaskKindImage        TaskKind = "image"
	TaskKindAutomation   TaskKind = "automation"
	TaskKindOther        TaskKind = "other"
)

// Origin identifies where a TaskSpec entered the system.
type Origin string

const (
	OriginCLI       Origin = "cli"
	OriginStudio    Origin = "studio"
	OriginScheduler Origin = "scheduler"
)

// TaskSpec is the immutable description of a user request. It is created on
// ingress and never mutated afterward.
type TaskSpec struct {
	TaskID         string                 `json:"task_id"`
	Text           string                 `json:"text"`
	TaskKind       TaskKind               `json:"task_kind"`
	EnteredAt      time.Time              `json:"entered_at"`
	Origin         Origin                 `json:"origin"`
	ExplicitParams map[string]interface{} `json:"explicit_params,omitempty"`
}

// Profile names a governance preset.
type Profile string

const (
	ProfileStrict   Profile = "strict"
	ProfileAdaptive Profile = "adaptive"
	ProfileAuto     Profile = "auto"
)

// RunContext is the profile-bound execution envelope for one run. It is
// immutable after creation; its lifetime is exactly one run.
type RunContext struct {
	RunID             string   `json:"run_id"`
	TaskID            string   `json:"task_id"`
	Profile           Profile  `json:"profile"`
	AllowedLayers     []string `json:"allowed_layers"`
	BlockedMaturity   []string `json:"blocked_maturity"`
	BlockedStrategies []string `json:"blocked_strategies,omitempty"`
	AllowedStrategies []string `json:"allowed_strategies,omitempty"`
	MaxRiskLevel      int      `json:"max_risk_level"`
	Deterministic     bool     `json:"deterministic"`
	LearningEnabled   bool     `json:"learning_enabled"`
	MaxFallbackSteps  int      `json:"max_fallback_steps"`
	TraceID           string   `json:"trace_id"`
}

// RiskLevel orders strategy risk for the tie-break rule (low < medium < high).
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank gives RiskLevel an ascending ordinal for sorting.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// Less reports whether r sorts before other under "low first" ascending order.
func (r RiskLevel) Less(other RiskLevel) bool { return r.rank() < other.rank() }

// Level returns the 1-indexed numeric risk level (low=1, medium=2, high=3)
// so it can be compared against RunContext.MaxRiskLevel.
func (r RiskLevel) Level() int { return r.rank() + 1 }

// Maturity is the lifecycle tier of a capability.
type Maturity string

const (
	MaturityExperimental Maturity = "experimental"
	MaturityBeta         Maturity = "beta"
	MaturityStable       Maturity = "stable"
)

// rank gives Maturity a descending ordinal so "stable first" sorts
// with the smallest rank first.
func (m Maturity) rank() int {
	switch m {
	case MaturityStable:
		return 0
	case MaturityBeta:
		return 1
	case MaturityExperimental:
		return 2
	default:
		return 3
	}
}

// Less reports whether m sorts before other under "stable first" descending
// maturity order.
func (m Maturity) Less(other Maturity) bool { return m.rank() < other.rank() }

// ParamSchema describes one named, required-or-optional input parameter.
type ParamSchema struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Domain   []string `json:"domain,omitempty"`
	Default  string   `json:"default,omitempty"`
}

// StrategyCandidate is one way to satisfy a task.
type StrategyCandidate struct {
	StrategyID       string        `json:"strategy_id"`
	ServiceBinding   string        `json:"service_binding"`
	BaseScore        float64       `json:"base_score"`
	MemoryScore      float64       `json:"memory_score"`
	CompositeScore   float64       `json:"composite_score"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	Maturity         Maturity      `json:"maturity"`
	RequiredLayer    string        `json:"required_layer"`
	RequiredInputs   []ParamSchema `json:"required_inputs"`
	TaskKinds        []TaskKind    `json:"task_kinds"`
	RequiresApproval bool          `json:"requires_approval"`
}

// ExecutionPlan is an ordered sequence of StrategyCandidates for one
// RunContext, already sorted by the ranker's stable tie-break rule.
type ExecutionPlan struct {
	RunID      string              `json:"run_id"`
	Candidates []StrategyCandidate `json:"candidates"`
	Ambiguous  bool                `json:"ambiguous"`
}

// AttemptStatus is the terminal state of one ExecutionAttempt.
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptSkipped   AttemptStatus = "skipped"
	AttemptAborted   AttemptStatus = "aborted"
)

// ArtifactKind enumerates the artifact payload formats leaf services return.
type ArtifactKind string

const (
	ArtifactJSON   ArtifactKind = "json"
	ArtifactMD     ArtifactKind = "md"
	ArtifactHTML   ArtifactKind = "html"
	ArtifactBinary ArtifactKind = "binary"
)

// ArtifactRef is an immutable, content-addressed reference to a produced
// artifact; the State Store owns the underlying bytes.
type ArtifactRef struct {
	URI        string       `json:"uri"`
	Kind       ArtifactKind `json:"kind"`
	SHA256     string       `json:"sha256"`
	SizeBytes  int64        `json:"size_bytes"`
	ProducedBy string       `json:"produced_by"`
	Advisory   bool         `json:"advisory,omitempty"`
}

// Telemetry carries the per-attempt performance counters.
type Telemetry struct {
	LatencyMS     int64 `json:"latency_ms"`
	Retries       int   `json:"retries"`
	FallbacksUsed int   `json:"fallbacks_used"`
}

// ExecutionAttempt records one candidate's invocation within a run.
type ExecutionAttempt struct {
	AttemptID    string        `json:"attempt_id"`
	RunID        string        `json:"run_id"`
	StrategyID   string        `json:"strategy_id"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Status       AttemptStatus `json:"status"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Artifacts    []ArtifactRef `json:"artifacts,omitempty"`
	Telemetry    Telemetry     `json:"telemetry"`
}

// RetryOption is a labelled preset offered back to the operator on failure.
type RetryOption string

const (
	RetryOptionStrict        RetryOption = "strict"
	RetryOptionAdaptive      RetryOption = "adaptive"
	RetryOptionAllowHighRisk RetryOption = "allow_high_risk_once"
)

// DeliveryBundle is a run's user-facing summary.
type DeliveryBundle struct {
	RunID                  string        `json:"run_id"`
	Headline               string        `json:"headline"`
	WhyFailed              string        `json:"why_failed,omitempty"`
	ClarificationQuestions []string      `json:"clarification_questions,omitempty"`
	Assumptions            []string      `json:"assumptions,omitempty"`
	PrimaryArtifact        *ArtifactRef  `json:"primary_artifact,omitempty"`
	SupportingArtifacts    []ArtifactRef `json:"supporting_artifacts,omitempty"`
	RetryOptions           []RetryOption `json:"retry_options,omitempty"`
}

// Outcome is the run-level sum type; clarification_needed is a first-class
// outcome, not an exception (Design Note: "Clarification loop").
type Outcome string

const (
	OutcomeSucceeded            Outcome = "succeeded"
	OutcomeDegraded             Outcome = "degraded"
	OutcomeFailed               Outcome = "failed"
	OutcomeAborted              Outcome = "aborted"
	OutcomeClarificationNeeded  Outcome = "clarification_needed"
)

// RunSummary is the terminal record of a run.
type RunSummary struct {
	RunID             string  `json:"run_id"`
	TaskID            string  `json:"task_id"`
	Outcome           Outcome `json:"outcome"`
	ChosenStrategy    string  `json:"chosen_strategy,omitempty"`
	AttemptsCount     int     `json:"attempts_count"`
	TotalLatencyMS    int64   `json:"total_latency_ms"`
	DeliveryBundleRef string  `json:"delivery_bundle_ref"`
}

// FeedbackRecord is an operator rating on a completed run.
type FeedbackRecord struct {
	RunID       string    `json:"run_id"`
	Rating      int       `json:"rating"` // +1 or -1
	Note        string    `json:"note,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Processed   bool      `json:"processed"`
}

// Recommendation is the Tuner's verdict for one EvaluationRecord.
type Recommendation string

const (
	RecommendPromote        Recommendation = "promote"
	RecommendDemote         Recommendation = "demote"
	RecommendCollectMoreData Recommendation = "collect-more-data"
)

// EvaluationRecord is a periodic, strategy-level performance aggregate.
type EvaluationRecord struct {
	StrategyID     string         `json:"strategy_id"`
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
	SuccessRate    float64        `json:"success_rate"`
	P95LatencyMS   int64          `json:"p95_latency_ms"`
	FallbackRate   float64        `json:"fallback_rate"`
	HealthScore    float64        `json:"health_score"`
	Recommendation Recommendation `json:"recommendation"`
}

// OverrideScope names what a PolicyOverride applies to.
type OverrideScope string

const (
	ScopeProfile   OverrideScope = "profile"
	ScopeStrategy  OverrideScope = "strategy"
	ScopeTaskKind  OverrideScope = "task_kind"
)

// PolicyOverride is one entry in the reversible override log.
type PolicyOverride struct {
	Scope      OverrideScope `json:"scope"`
	Key        string        `json:"key"`
	Value      string        `json:"value"`
	SnapshotID string        `json:"snapshot_id"`
	AppliedAt  time.Time     `json:"applied_at"`
	ApprovedBy string        `json:"approved_by"`
}
