package service

import (
	"context"
	"os"

	"github.com/latticehq/lattice/internal/types"
)

// Archive retires a task: task_archived is appended, the snapshot, event
// log, notes, and plan move to the archive subtree, and the task becomes
// read-only. Artifacts stay in place; they are shared by reference.
func (s *Service) Archive(ctx context.Context, taskID string, meta Meta) (*types.Task, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "archive", id, meta, true, func(snap *types.Task) (*types.Event, error) {
		if snap.Archived {
			return nil, types.Errorf(types.CodeAlreadyArchived, "task %s is already archived", id)
		}
		return &types.Event{
			ID:         s.eventID(meta),
			Type:       types.EventTaskArchived,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(struct{}{}),
			Provenance: meta.Provenance,
		}, nil
	}, s.moveToArchive)
}

// Unarchive restores an archived task. The event log moves back first so
// task_unarchived lands in the active log; notes, plan, and the stale
// archived snapshot move after the commit, keeping the window where a failed
// commit leaves files half-moved as small as possible.
func (s *Service) Unarchive(ctx context.Context, taskID string, meta Meta) (*types.Task, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "unarchive", id, meta, true, func(snap *types.Task) (*types.Event, error) {
		if !snap.Archived {
			return nil, types.Errorf(types.CodeNotArchived, "task %s is not archived", id)
		}
		if err := moveIfExists(s.store.ArchivedEventLogPath(id), s.store.EventLogPath(id)); err != nil {
			return nil, err
		}
		return &types.Event{
			ID:         s.eventID(meta),
			Type:       types.EventTaskUnarchived,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(struct{}{}),
			Provenance: meta.Provenance,
		}, nil
	}, s.restoreFromArchive)
}

// moveToArchive relocates a task's files into the archive subtree after the
// archived snapshot has been written. Notes and plans move with the task.
func (s *Service) moveToArchive(id string) error {
	moves := [][2]string{
		{s.store.EventLogPath(id), s.store.ArchivedEventLogPath(id)},
		{s.store.NotesPath(id), s.store.ArchivedNotesPath(id)},
		{s.store.PlanPath(id), s.store.ArchivedPlanPath(id)},
	}
	for _, m := range moves {
		if err := moveIfExists(m[0], m[1]); err != nil {
			return err
		}
	}
	// The reducer marked the snapshot archived, so commit wrote it to the
	// archive path; only the stale active copy remains.
	if err := os.Remove(s.store.TaskPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// restoreFromArchive runs post-commit: notes and plan move back to the
// active tree and the stale archived snapshot is removed. The commit already
// wrote the active snapshot.
func (s *Service) restoreFromArchive(id string) error {
	moves := [][2]string{
		{s.store.ArchivedNotesPath(id), s.store.NotesPath(id)},
		{s.store.ArchivedPlanPath(id), s.store.PlanPath(id)},
	}
	for _, m := range moves {
		if err := moveIfExists(m[0], m[1]); err != nil {
			return err
		}
	}
	if err := os.Remove(s.store.ArchivedTaskPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func moveIfExists(from, to string) error {
	if _, err := os.Stat(from); os.IsNotExist(err) {
		return nil
	}
	return os.Rename(from, to)
}
