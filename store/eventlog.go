package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// EventLog is a single append-only JSON Lines file: one writer lock per
// file, any number of readers (spec.md §4.7 "single-writer per log file,
// multi-reader; readers see snapshot-consistent views" — ReadAllLines opens its
// own file handle and never observes a torn write because writes are
// whole-line appends under the write mutex).
type EventLog struct {
	mu   sync.Mutex
	path string
}

// OpenEventLog opens (creating if absent) the JSONL file at path.
func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	f.Close()
	return &EventLog{path: path}, nil
}

// Append marshals v to one JSON line and appends it, fsyncing before return
// so the append is durable before the caller's blocking point releases
// (spec.md §5 "State Store append with fsync" is a guarded blocking point).
func (l *EventLog) Append(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log for append %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return f.Sync()
}

// ReadAllLines passes a copy of every non-empty line of the file at path to
// each, in file order, and stops at the first error each returns. A missing
// file is not an error. Callers skip malformed lines (e.g. from a torn
// process kill) by returning nil from each.
func ReadAllLines(path string, each func(line []byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open event log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := append([]byte(nil), line...)
		if err := each(cp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
