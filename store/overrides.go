package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/LuisChen1Q84/agentkernel/kernel"
)

// snapshotFile is the on-disk shape of one override snapshot: the full set
// of overrides active as of that snapshot, spec.md §3 invariant 5 "Applied
// PolicyOverrides form an ordered, reversible log; rollback by snapshot_id
// restores the set of overrides that were active at that snapshot."
type snapshotFile struct {
	SnapshotID string                  `json:"snapshot_id"`
	AppliedAt  time.Time               `json:"applied_at"`
	Overrides  []kernel.PolicyOverride `json:"overrides"`
}

func (s *Store) overridesDir() string {
	return filepath.Join(s.root, "config", "overrides")
}

func (s *Store) snapshotIndexPath() string {
	return filepath.Join(s.overridesDir(), "_index.jsonl")
}

// ApplySnapshot writes a new override snapshot and appends it to the
// ordered snapshot index — "apply" is itself an append, never a mutation of
// a prior snapshot (Design Note "Reversible overrides").
func (s *Store) ApplySnapshot(_ context.Context, snapshotID string, overrides []kernel.PolicyOverride) error {
	appliedAt := s.clock.Now()
	file := snapshotFile{SnapshotID: snapshotID, AppliedAt: appliedAt, Overrides: overrides}

	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(s.overridesDir(), snapshotID+".json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snapshotID, err)
	}

	idx, err := OpenEventLog(s.snapshotIndexPath())
	if err != nil {
		return err
	}
	return idx.Append(struct {
		SnapshotID string    `json:"snapshot_id"`
		AppliedAt  time.Time `json:"applied_at"`
	}{snapshotID, appliedAt})
}

// ActiveOverrides returns the overrides active as of the most recently
// applied snapshot (or an empty set if none has been applied).
func (s *Store) ActiveOverrides(ctx context.Context) ([]kernel.PolicyOverride, string, error) {
	ids, err := s.snapshotIDsInOrder()
	if err != nil {
		return nil, "", err
	}
	if len(ids) == 0 {
		return nil, "", nil
	}
	latest := ids[len(ids)-1]
	file, err := s.readSnapshot(latest)
	if err != nil {
		return nil, "", err
	}
	return file.Overrides, latest, nil
}

// Rollback restores the override set exactly as recorded in snapshotID
// itself (not the snapshot preceding it), per spec.md §3 invariant 5, and
// returns a diff against what was active just before the rollback.
func (s *Store) Rollback(ctx context.Context, snapshotID string) (restored []kernel.PolicyOverride, diff OverrideDiff, err error) {
	ids, err := s.snapshotIDsInOrder()
	if err != nil {
		return nil, diff, err
	}
	pos := indexOf(ids, snapshotID)
	if pos < 0 {
		return nil, diff, core.NewKernelError("Store.Rollback", core.ErrorKindInternal, core.ErrSnapshotNotFound)
	}

	before, _, err := s.ActiveOverrides(ctx)
	if err != nil {
		return nil, diff, err
	}

	file, err := s.readSnapshot(snapshotID)
	if err != nil {
		return nil, diff, err
	}

	rollbackID := fmt.Sprintf("%s-rollback-%d", snapshotID, s.clock.Now().UnixNano())
	if err := s.ApplySnapshot(ctx, rollbackID, file.Overrides); err != nil {
		return nil, diff, err
	}

	diff = diffOverrides(before, file.Overrides)
	return file.Overrides, diff, nil
}

// OverrideDiff is the human-readable delta produced by Rollback.
type OverrideDiff struct {
	Added   []kernel.PolicyOverride
	Removed []kernel.PolicyOverride
}

func diffOverrides(before, after []kernel.PolicyOverride) OverrideDiff {
	key := func(o kernel.PolicyOverride) string { return string(o.Scope) + "|" + o.Key + "|" + o.Value }
	beforeSet := map[string]kernel.PolicyOverride{}
	for _, o := range before {
		beforeSet[key(o)] = o
	}
	afterSet := map[string]kernel.PolicyOverride{}
	for _, o := range after {
		afterSet[key(o)] = o
	}

	var diff OverrideDiff
	for k, o := range afterSet {
		if _, ok := beforeSet[k]; !ok {
			diff.Added = append(diff.Added, o)
		}
	}
	for k, o := range beforeSet {
		if _, ok := afterSet[k]; !ok {
			diff.Removed = append(diff.Removed, o)
		}
	}
	return diff
}

func (s *Store) readSnapshot(snapshotID string) (snapshotFile, error) {
	b, err := os.ReadFile(filepath.Join(s.overridesDir(), snapshotID+".json"))
	if err != nil {
		return snapshotFile{}, core.NewKernelError("Store.readSnapshot", core.ErrorKindInternal, core.ErrSnapshotNotFound)
	}
	var file snapshotFile
	if err := json.Unmarshal(b, &file); err != nil {
		return snapshotFile{}, fmt.Errorf("decode snapshot %s: %w", snapshotID, err)
	}
	return file, nil
}

func (s *Store) snapshotIDsInOrder() ([]string, error) {
	type row struct {
		SnapshotID string    `json:"snapshot_id"`
		AppliedAt  time.Time `json:"applied_at"`
	}
	var rows []row
	err := ReadAllLines(s.snapshotIndexPath(), func(line []byte) error {
		var r row
		if err := json.Unmarshal(line, &r); err != nil {
			return nil
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].AppliedAt.Before(rows[j].AppliedAt) })
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.SnapshotID
	}
	return ids, nil
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
