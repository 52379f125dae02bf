package autonomy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// verifyAttemptArtifacts re-checks every artifact an attempt produced against
// the State Store (spec.md §3 invariant 4: "for every artifact referenced in
// a RunSummary, sha256(content) equals the ArtifactRef sha256"). PutArtifact
// already computed the hash once at write time; this re-derives it from
// whatever bytes are actually on disk at the moment the RunSummary is
// sealed, catching corruption or a store swapped out from under a run.
func (e *Executor) verifyAttemptArtifacts(ctx context.Context, attempts []kernel.ExecutionAttempt) {
	for _, a := range attempts {
		for _, ref := range a.Artifacts {
			if err := e.recorder.VerifyArtifact(ctx, ref); err != nil {
				e.logger.ErrorWithContext(ctx, "artifact failed verification at seal time", map[string]interface{}{
					"run_id": a.RunID, "attempt_id": a.AttemptID, "uri": ref.URI, "error": err.Error(),
				})
			}
		}
	}
}

// seal content-addresses the DeliveryBundle, stamps its ref onto the
// RunSummary, and persists both through the RunRecorder — spec.md §3
// invariant 2: exactly one RunSummary (and its bundle) per RunContext.
func (e *Executor) seal(ctx context.Context, summary kernel.RunSummary, bundle kernel.DeliveryBundle) (kernel.RunSummary, error) {
	bundle.RunID = summary.RunID

	if payload, err := json.Marshal(bundle); err == nil {
		if ref, putErr := e.recorder.PutArtifact(ctx, kernel.ArtifactJSON, payload, "autonomy.DeliveryBundle"); putErr == nil {
			summary.DeliveryBundleRef = ref.URI
		} else {
			e.logger.ErrorWithContext(ctx, "failed to persist delivery bundle artifact", map[string]interface{}{
				"run_id": summary.RunID, "error": putErr.Error(),
			})
		}
	}

	if err := e.recorder.SealRun(ctx, summary, bundle); err != nil {
		return summary, fmt.Errorf("seal run %s: %w", summary.RunID, err)
	}
	return summary, nil
}

func (e *Executor) sealClarification(ctx context.Context, rc kernel.RunContext, spec kernel.TaskSpec, bundle kernel.DeliveryBundle) (kernel.RunSummary, error) {
	summary := kernel.RunSummary{
		RunID:   rc.RunID,
		TaskID:  spec.TaskID,
		Outcome: kernel.OutcomeClarificationNeeded,
	}
	return e.seal(ctx, summary, bundle)
}

func (e *Executor) sealSucceeded(ctx context.Context, rc kernel.RunContext, spec kernel.TaskSpec, attempt kernel.ExecutionAttempt, attempts []kernel.ExecutionAttempt) (kernel.RunSummary, error) {
	e.verifyAttemptArtifacts(ctx, attempts)

	var primary *kernel.ArtifactRef
	var supporting []kernel.ArtifactRef
	if len(attempt.Artifacts) > 0 {
		first := attempt.Artifacts[0]
		primary = &first
		supporting = attempt.Artifacts[1:]
	}

	bundle := kernel.DeliveryBundle{
		Headline:            fmt.Sprintf("%s completed via %s", spec.TaskKind, attempt.StrategyID),
		PrimaryArtifact:     primary,
		SupportingArtifacts: supporting,
	}
	summary := kernel.RunSummary{
		RunID:          rc.RunID,
		TaskID:         spec.TaskID,
		Outcome:        kernel.OutcomeSucceeded,
		ChosenStrategy: attempt.StrategyID,
		AttemptsCount:  len(attempts),
		TotalLatencyMS: totalLatency(attempts),
	}
	return e.seal(ctx, summary, bundle)
}

// sealExhausted is reached once every candidate in the plan has been tried
// without a success (spec.md §4.3 step 2): `degraded` if any attempt carried
// an advisory (partial) artifact, `failed` otherwise.
func (e *Executor) sealExhausted(ctx context.Context, rc kernel.RunContext, spec kernel.TaskSpec, attempts []kernel.ExecutionAttempt, lastErr error) (kernel.RunSummary, error) {
	e.verifyAttemptArtifacts(ctx, attempts)

	var advisory []kernel.ArtifactRef
	for _, a := range attempts {
		for _, ref := range a.Artifacts {
			if ref.Advisory {
				advisory = append(advisory, ref)
			}
		}
	}

	outcome := kernel.OutcomeFailed
	if len(advisory) > 0 {
		outcome = kernel.OutcomeDegraded
	}

	why := "all candidates were skipped or failed"
	if lastErr != nil {
		why = lastErr.Error()
	}

	bundle := kernel.DeliveryBundle{
		Headline:     fmt.Sprintf("run %s", outcome),
		WhyFailed:    why,
		RetryOptions: []kernel.RetryOption{kernel.RetryOptionStrict, kernel.RetryOptionAdaptive, kernel.RetryOptionAllowHighRisk},
	}
	if len(advisory) > 0 {
		first := advisory[0]
		bundle.PrimaryArtifact = &first
		bundle.SupportingArtifacts = advisory[1:]
	}

	summary := kernel.RunSummary{
		RunID:          rc.RunID,
		TaskID:         spec.TaskID,
		Outcome:        outcome,
		AttemptsCount:  len(attempts),
		TotalLatencyMS: totalLatency(attempts),
	}
	return e.seal(ctx, summary, bundle)
}

func (e *Executor) sealAborted(ctx context.Context, rc kernel.RunContext, spec kernel.TaskSpec, attempts []kernel.ExecutionAttempt, reason string) (kernel.RunSummary, error) {
	e.verifyAttemptArtifacts(ctx, attempts)

	summary := kernel.RunSummary{
		RunID:          rc.RunID,
		TaskID:         spec.TaskID,
		Outcome:        kernel.OutcomeAborted,
		AttemptsCount:  len(attempts),
		TotalLatencyMS: totalLatency(attempts),
	}
	bundle := kernel.DeliveryBundle{
		Headline:  "run aborted",
		WhyFailed: reason,
	}
	return e.seal(ctx, summary, bundle)
}
