// Package eventlog owns the per-task append-only event logs and the derived
// lifecycle index. The event log is the source of truth: snapshots and
// indices are reconstructions of it.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Log reads and appends task events.
type Log struct {
	store *store.Store
}

// New creates a Log over a state directory.
func New(s *store.Store) *Log {
	return &Log{store: s}
}

// Append validates ev and appends it to the task's log. Idempotency: when an
// event with the same ID already exists, a byte-equivalent payload is treated
// as success (no second append, returns false) and a differing payload is a
// CONFLICT. The caller must hold the task's lock scope.
func (l *Log) Append(ev *types.Event) (appended bool, err error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}

	existing, found, err := l.Find(ev.TaskID, ev.ID)
	if err != nil {
		return false, err
	}
	if found {
		if existing.SamePayload(ev) {
			return false, nil
		}
		return false, types.Errorf(types.CodeConflict,
			"event %s already exists for %s with a different payload", ev.ID, ev.TaskID)
	}

	if err := store.AppendJSONL(l.store.EventLogPath(ev.TaskID), ev); err != nil {
		return false, fmt.Errorf("appending event: %w", err)
	}
	return true, nil
}

// AppendLifecycle mirrors a lifecycle-relevant event into the global index.
// Must be called after a successful Append; non-lifecycle events are ignored.
func (l *Log) AppendLifecycle(ev *types.Event) error {
	if !types.LifecycleTypes[ev.Type] {
		return nil
	}
	return store.AppendJSONL(l.store.LifecyclePath(), ev)
}

// Read returns the task's events in file (append) order. A corrupted
// trailing line is tolerated and skipped; doctor reports it. Archived tasks
// are read from the archive subtree.
func (l *Log) Read(taskID string) ([]*types.Event, error) {
	path := l.store.EventLogPath(taskID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := os.Stat(l.store.ArchivedEventLogPath(taskID)); err == nil {
			path = l.store.ArchivedEventLogPath(taskID)
		}
	}
	return ReadFile(path)
}

// ReadFile decodes one event log file, skipping undecodable lines.
func ReadFile(path string) ([]*types.Event, error) {
	var events []*types.Event
	err := store.ScanJSONL(path, func(line store.JSONLLine) bool {
		if line.Err != nil {
			return true
		}
		var ev types.Event
		if err := json.Unmarshal(line.Raw, &ev); err != nil {
			return true
		}
		events = append(events, &ev)
		return true
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Find looks up a single event by ID in a task's log.
func (l *Log) Find(taskID, eventID string) (*types.Event, bool, error) {
	events, err := l.Read(taskID)
	if err != nil {
		return nil, false, err
	}
	for _, ev := range events {
		if ev.ID == eventID {
			return ev, true, nil
		}
	}
	return nil, false, nil
}

// LastTimestamp returns the timestamp of the newest event in the task's log,
// or a zero timestamp for an empty log. Used to seed clock monotonicity.
func (l *Log) LastTimestamp(taskID string) (types.Timestamp, error) {
	events, err := l.Read(taskID)
	if err != nil {
		return types.Timestamp{}, err
	}
	if len(events) == 0 {
		return types.Timestamp{}, nil
	}
	return events[len(events)-1].TS, nil
}

// ReadLifecycle returns the lifecycle index contents in file order.
func (l *Log) ReadLifecycle() ([]*types.Event, error) {
	return ReadFile(l.store.LifecyclePath())
}

// Exists reports whether the task has any event log, active or archived.
func (l *Log) Exists(taskID string) bool {
	if _, err := os.Stat(l.store.EventLogPath(taskID)); err == nil {
		return true
	}
	_, err := os.Stat(l.store.ArchivedEventLogPath(taskID))
	return err == nil
}
