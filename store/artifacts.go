package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// artifactsDir is the root subdirectory for the content-addressed store,
// spec.md §6 "artifacts/<first-2-hex>/<sha256>".
const artifactsDir = "artifacts"

// PutArtifact writes payload under the content-addressed path and returns
// the immutable ArtifactRef (§3 invariant 4: the hash must match at seal
// time, so it is computed here, not trusted from the caller).
func (s *Store) PutArtifact(_ context.Context, kind kernel.ArtifactKind, payload []byte, producedBy string) (kernel.ArtifactRef, error) {
	sum := sha256.Sum256(payload)
	hexSum := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.root, artifactsDir, hexSum[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return kernel.ArtifactRef{}, fmt.Errorf("mkdir artifact dir: %w", err)
	}
	full := filepath.Join(dir, hexSum)
	if _, err := os.Stat(full); os.IsNotExist(err) {
		if err := os.WriteFile(full, payload, 0o644); err != nil {
			return kernel.ArtifactRef{}, fmt.Errorf("write artifact: %w", err)
		}
	}

	return kernel.ArtifactRef{
		URI:        filepath.Join(artifactsDir, hexSum[:2], hexSum),
		Kind:       kind,
		SHA256:     hexSum,
		SizeBytes:  int64(len(payload)),
		ProducedBy: producedBy,
	}, nil
}

// GetArtifact reads the bytes behind ref and verifies the sha256 match
// (invariant 4) before returning them.
func (s *Store) GetArtifact(_ context.Context, ref kernel.ArtifactRef) ([]byte, error) {
	full := filepath.Join(s.root, ref.URI)
	b, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", ref.URI, err)
	}
	sum := sha256.Sum256(b)
	if hex.EncodeToString(sum[:]) != ref.SHA256 {
		return nil, core.NewKernelError("Store.GetArtifact", core.ErrorKindContractViolation,
			fmt.Errorf("artifact %s failed hash verification", ref.URI))
	}
	return b, nil
}

// VerifyArtifact re-checks an ArtifactRef without returning its payload,
// called over every attempt's artifacts when sealing a RunSummary
// (invariant 4; see autonomy.Executor.verifyAttemptArtifacts).
func (s *Store) VerifyArtifact(ctx context.Context, ref kernel.ArtifactRef) error {
	_, err := s.GetArtifact(ctx, ref)
	return err
}
