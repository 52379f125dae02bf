package mcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReplayRecord is the replayable record of one tool call chain, keyed by
// run_id.step_id per spec.md §4.5, sufficient to re-execute with
// dry_run=true (no side effects) or without it to re-invoke.
type ReplayRecord struct {
	Key            string                 `json:"key"` // "<run_id>.<step_id>"
	Params         map[string]interface{} `json:"params"`
	ToolsAttempted []string               `json:"tools_attempted"`
	ChosenTool     string                 `json:"chosen_tool,omitempty"`
	Succeeded      bool                   `json:"succeeded"`
	RecordedAt     time.Time              `json:"recorded_at"`
}

// ReplayKey builds the "run_id.step_id" key spec.md §4.5 specifies.
func ReplayKey(runID, stepID string) string {
	return fmt.Sprintf("%s.%s", runID, stepID)
}

// NewReplayRecord builds a ReplayRecord from a completed Chain.Run call.
func NewReplayRecord(runID, stepID string, params map[string]interface{}, result ChainResult, succeeded bool, now time.Time) ReplayRecord {
	return ReplayRecord{
		Key:            ReplayKey(runID, stepID),
		Params:         params,
		ToolsAttempted: result.ToolsAttempted,
		ChosenTool:     result.ToolName,
		Succeeded:      succeeded,
		RecordedAt:     now,
	}
}

// MarshalJSONL renders the record as one JSON Lines row.
func (r ReplayRecord) MarshalJSONL() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal replay record: %w", err)
	}
	return append(b, '\n'), nil
}
