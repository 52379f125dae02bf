package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LuisChen1Q84/agentkernel/mcp"
)

// BreakerState is one persisted row of a circuit breaker's state, appended
// to events/breaker.jsonl on every transition — spec.md §4.5 "Breaker state
// is persisted so restarts don't forget tripped tools."
type BreakerState struct {
	ToolName         string          `json:"tool_name"`
	State            mcp.CircuitState `json:"state"`
	OpenedAt         time.Time       `json:"opened_at"`
	ConsecutiveFails int             `json:"consecutive_fails"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

// SaveBreakerState appends the latest snapshot of one breaker. Replay on
// restart folds these by tool_name, last-write-wins, via LoadBreakerStates.
func (s *Store) SaveBreakerState(_ context.Context, toolName string, state mcp.CircuitState, openedAt time.Time, consecutiveFails int) error {
	return s.breakerLog.Append(BreakerState{
		ToolName: toolName, State: state, OpenedAt: openedAt,
		ConsecutiveFails: consecutiveFails, RecordedAt: s.clock.Now(),
	})
}

// LoadBreakerStates replays events/breaker.jsonl and returns the latest
// state per tool, so cmd/agentctl can call CircuitBreaker.RestoreState on
// process start.
func (s *Store) LoadBreakerStates(_ context.Context) (map[string]BreakerState, error) {
	latest := make(map[string]BreakerState)
	err := ReadAllLines(s.breakerLogPath(), func(line []byte) error {
		var row BreakerState
		if err := json.Unmarshal(line, &row); err != nil {
			return nil
		}
		latest[row.ToolName] = row
		return nil
	})
	return latest, err
}

func (s *Store) breakerLogPath() string {
	return s.root + "/events/breaker.jsonl"
}
