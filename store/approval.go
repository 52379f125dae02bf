package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LuisChen1Q84/agentkernel/governance"
)

// approvalKeyPrefix namespaces approval tokens within the Provider's flat
// key/value space, the only keys this package stores there (spec.md §4.6 approval gate, persisted through the same
// StorageProvider-shaped abstraction as everything else in this package).
const approvalKeyPrefix = "approval:"

// approvalTTL bounds how long a submitted approval token is retained before
// the provider reclaims it, independent of ApprovalToken.Verify's own
// staleness check.
const approvalTTL = 7 * 24 * time.Hour

// SaveApproval stores a signed ApprovalToken for a strategy_id so the
// Autonomy Engine's exec-time pre-check can look it up without the operator
// needing to resubmit it per attempt.
func (s *Store) SaveApproval(ctx context.Context, strategyID string, token governance.ApprovalToken) error {
	b, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode approval token: %w", err)
	}
	return s.provider.Set(ctx, approvalKeyPrefix+strategyID, string(b), approvalTTL)
}

// LoadApproval retrieves the approval token saved for strategyID, if any.
func (s *Store) LoadApproval(ctx context.Context, strategyID string) (*governance.ApprovalToken, bool) {
	raw, err := s.provider.Get(ctx, approvalKeyPrefix+strategyID)
	if err != nil || raw == "" {
		return nil, false
	}
	var token governance.ApprovalToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, false
	}
	return &token, true
}

// RevokeApproval removes a previously saved approval token, e.g. after a
// forced demotion (spec.md §4.8 P1/P2 rule).
func (s *Store) RevokeApproval(ctx context.Context, strategyID string) error {
	return s.provider.Del(ctx, approvalKeyPrefix+strategyID)
}
