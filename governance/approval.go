package governance

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ApprovalToken is the signed approval file spec.md §4.6 requires before an
// operator-mode service whose side effects include "publish" may run: a
// token, the approver identity, and a monotonic counter, all signed.
type ApprovalToken struct {
	Token      string
	ApproverID string
	Counter    uint64
	IssuedAt   time.Time
	Signature  string
}

// maxApprovalAge bounds how stale an approval file may be before it is
// treated as missing (CheckApproval's "stale" case).
const maxApprovalAge = 24 * time.Hour

// signingPayload builds the canonical string signed over, so verification is
// order-independent of how the token was serialized to disk.
func signingPayload(token, approverID string, counter uint64, issuedAt time.Time) string {
	return strings.Join([]string{
		token, approverID, strconv.FormatUint(counter, 10), issuedAt.UTC().Format(time.RFC3339),
	}, "\x1f")
}

// SignApprovalToken produces a signed ApprovalToken using a keyed BLAKE2b MAC
// over the canonical payload. BLAKE2b's built-in keyed mode gives a
// constant-time MAC without pulling in a second hash primitive beyond what
// the pack already carries in golang.org/x/crypto (bcrypt/ssh elsewhere in
// the pack do not offer keyed MAC semantics) — see DESIGN.md.
func SignApprovalToken(token, approverID string, counter uint64, issuedAt time.Time, secret string) (ApprovalToken, error) {
	mac, err := blake2b.New256([]byte(secret))
	if err != nil {
		return ApprovalToken{}, fmt.Errorf("init mac: %w", err)
	}
	if _, err := mac.Write([]byte(signingPayload(token, approverID, counter, issuedAt))); err != nil {
		return ApprovalToken{}, fmt.Errorf("write mac: %w", err)
	}
	return ApprovalToken{
		Token:      token,
		ApproverID: approverID,
		Counter:    counter,
		IssuedAt:   issuedAt,
		Signature:  hex.EncodeToString(mac.Sum(nil)),
	}, nil
}

// Verify checks the signature against secret and rejects tokens older than
// maxApprovalAge ("stale" approvals in spec.md §4.6).
func (a ApprovalToken) Verify(secret string) error {
	if time.Since(a.IssuedAt) > maxApprovalAge {
		return fmt.Errorf("approval token issued at %s is stale", a.IssuedAt.Format(time.RFC3339))
	}
	expected, err := SignApprovalToken(a.Token, a.ApproverID, a.Counter, a.IssuedAt, secret)
	if err != nil {
		return err
	}
	if expected.Signature != a.Signature {
		return fmt.Errorf("approval signature mismatch")
	}
	return nil
}
