package service

import (
	"context"
	"os"

	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Notes and plans are free-form markdown sidecars owned by a task. They live
// outside the event log, move with the task on archive, and are written
// atomically under the task lock.

// WriteNotes replaces a task's notes file.
func (s *Service) WriteNotes(ctx context.Context, taskID, content string) error {
	return s.writeSidecar(ctx, taskID, content, s.store.NotesPath)
}

// WritePlan replaces a task's plan file.
func (s *Service) WritePlan(ctx context.Context, taskID, content string) error {
	return s.writeSidecar(ctx, taskID, content, s.store.PlanPath)
}

// Notes returns a task's notes, or empty when none exist.
func (s *Service) Notes(taskID string) (string, error) {
	return s.readSidecar(taskID, s.store.NotesPath, s.store.ArchivedNotesPath)
}

// Plan returns a task's plan, or empty when none exist.
func (s *Service) Plan(taskID string) (string, error) {
	return s.readSidecar(taskID, s.store.PlanPath, s.store.ArchivedPlanPath)
}

func (s *Service) writeSidecar(ctx context.Context, taskID, content string, path func(string) string) error {
	id, err := s.Resolve(taskID)
	if err != nil {
		return err
	}
	scope, err := s.locks.Acquire(ctx, lockfile.TaskResource(id))
	if err != nil {
		return err
	}
	defer scope.Release()

	snap, err := s.loadLocked(id)
	if err != nil {
		return err
	}
	if snap.Archived {
		return types.Errorf(types.CodeAlreadyArchived,
			"task %s is archived and read-only; unarchive it first", id)
	}
	return store.WriteFileAtomic(path(id), []byte(content), 0600)
}

func (s *Service) readSidecar(taskID string, path, archivedPath func(string) string) (string, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path(id))
	if os.IsNotExist(err) {
		data, err = os.ReadFile(archivedPath(id))
	}
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
