// Package integrity rebuilds derived state from event logs and audits a state
// directory for corruption. The event log is the source of truth; snapshots,
// the lifecycle index, and the short-ID index can all be regenerated from it.
package integrity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/eventlog"
	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/reducer"
	"github.com/latticehq/lattice/internal/shortid"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Rebuilder regenerates snapshots and derived indexes from event logs.
type Rebuilder struct {
	store *store.Store
	cfg   *configfile.Config
	log   *eventlog.Log
	red   *reducer.Reducer
	short *shortid.Service
	locks *lockfile.Manager
}

// NewRebuilder wires a Rebuilder over a state directory.
func NewRebuilder(s *store.Store, cfg *configfile.Config, locks *lockfile.Manager) *Rebuilder {
	return &Rebuilder{
		store: s,
		cfg:   cfg,
		log:   eventlog.New(s),
		red:   reducer.New(cfg),
		short: shortid.New(s, locks),
		locks: locks,
	}
}

// RebuildTask replays one task's event log and writes the snapshot
// atomically. Works for both active and archived tasks; the snapshot lands
// next to its log.
func (r *Rebuilder) RebuildTask(ctx context.Context, taskID string) (*types.Task, error) {
	scope, err := r.locks.Acquire(ctx, lockfile.TaskResource(taskID))
	if err != nil {
		return nil, err
	}
	defer scope.Release()
	return r.rebuildLocked(taskID)
}

// rebuildLocked is RebuildTask without lock acquisition, for callers that
// already hold the task lock.
func (r *Rebuilder) rebuildLocked(taskID string) (*types.Task, error) {
	events, err := r.log.Read(taskID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, types.Errorf(types.CodeNotFound, "no event log for %q", taskID)
	}
	snap, err := r.red.Replay(events)
	if err != nil {
		return nil, err
	}
	path := r.store.TaskPath(taskID)
	if snap.Archived {
		path = r.store.ArchivedTaskPath(taskID)
	}
	if err := store.WriteJSONAtomic(path, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RebuildLockedSnapshot replays and persists a snapshot for a caller already
// holding the task lock. Used to heal a missing or stale snapshot in the
// write path.
func (r *Rebuilder) RebuildLockedSnapshot(taskID string) (*types.Task, error) {
	return r.rebuildLocked(taskID)
}

// RebuildResult summarizes a full rebuild.
type RebuildResult struct {
	TasksRebuilt    int    `json:"tasks_rebuilt"`
	LifecycleEvents int    `json:"lifecycle_events"`
	Aliases         int    `json:"aliases"`
	ProjectCode     string `json:"project_code,omitempty"`
}

// RebuildAll replays every task log in parallel, then regenerates the
// lifecycle index and the short-ID index from the replayed history.
func (r *Rebuilder) RebuildAll(ctx context.Context) (*RebuildResult, error) {
	active, err := r.store.ListTaskIDs()
	if err != nil {
		return nil, err
	}
	archived, err := r.store.ListArchivedTaskIDs()
	if err != nil {
		return nil, err
	}
	ids := append(append([]string{}, active...), archived...)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := r.RebuildTask(ctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lifecycle, created, err := r.collectHistory(ids)
	if err != nil {
		return nil, err
	}

	if err := r.writeLifecycle(ctx, lifecycle); err != nil {
		return nil, err
	}

	ulids := make([]string, 0, len(created))
	for _, ev := range created {
		ulids = append(ulids, ev.TaskID)
	}
	ix, err := r.short.Rebuild(ctx, r.cfg.ProjectCode, ulids)
	if err != nil {
		return nil, err
	}

	return &RebuildResult{
		TasksRebuilt:    len(ids),
		LifecycleEvents: len(lifecycle),
		Aliases:         len(ix.Map),
		ProjectCode:     ix.ProjectCode,
	}, nil
}

// collectHistory gathers lifecycle events and task_created events across all
// logs, each sorted by timestamp then event ID for determinism.
func (r *Rebuilder) collectHistory(ids []string) (lifecycle, created []*types.Event, err error) {
	for _, id := range ids {
		events, err := r.log.Read(id)
		if err != nil {
			return nil, nil, err
		}
		for _, ev := range events {
			if types.LifecycleTypes[ev.Type] {
				lifecycle = append(lifecycle, ev)
			}
			if ev.Type == types.EventTaskCreated {
				created = append(created, ev)
			}
		}
	}
	byTime := func(evs []*types.Event) {
		sort.SliceStable(evs, func(i, j int) bool {
			if !evs[i].TS.Time.Equal(evs[j].TS.Time) {
				return evs[i].TS.Time.Before(evs[j].TS.Time)
			}
			return evs[i].ID < evs[j].ID
		})
	}
	byTime(lifecycle)
	byTime(created)
	return lifecycle, created, nil
}

func (r *Rebuilder) writeLifecycle(ctx context.Context, events []*types.Event) error {
	scope, err := r.locks.Acquire(ctx, lockfile.LifecycleResource)
	if err != nil {
		return err
	}
	defer scope.Release()

	var buf bytes.Buffer
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshaling lifecycle event %s: %w", ev.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return store.WriteFileAtomic(r.store.LifecyclePath(), buf.Bytes(), 0600)
}

// ReplaySnapshot replays a task's log without writing anything. Nil when the
// log is empty.
func (r *Rebuilder) ReplaySnapshot(taskID string) (*types.Task, error) {
	events, err := r.log.Read(taskID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return r.red.Replay(events)
}

// snapshotsEqual compares a stored snapshot with a replayed one by canonical
// JSON so field order and file formatting do not matter.
func snapshotsEqual(a, b *types.Task) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ab, bb)
}

// readSnapshot loads a task snapshot from the active tree, falling back to
// the archive. os.IsNotExist errors mean no snapshot on disk.
func readSnapshot(s *store.Store, taskID string) (*types.Task, error) {
	var t types.Task
	err := store.ReadJSON(s.TaskPath(taskID), &t)
	if os.IsNotExist(err) {
		err = store.ReadJSON(s.ArchivedTaskPath(taskID), &t)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
