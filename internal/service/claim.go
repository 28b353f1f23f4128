package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/selector"
	"github.com/latticehq/lattice/internal/types"
)

// claimAttempts bounds how many candidates a single Claim races for before
// giving up.
const claimAttempts = 5

// Next returns the task the actor should work on, without claiming it.
// Resume-first: the actor's own in-flight work wins over new work.
func (s *Service) Next(actor string, pool []string) (*types.Task, error) {
	tasks, err := s.List(ListFilter{})
	if err != nil {
		return nil, err
	}
	pick := selector.Next(tasks, actor, pool)
	if pick == nil {
		return nil, types.NewError(types.CodeNothingToClaim, "no eligible task to pick up")
	}
	return pick, nil
}

// Claim atomically selects and takes a task: assignment and the move to
// in_progress land under the task lock, after re-checking eligibility so two
// concurrent claimers can never take the same task. A lost race moves on to
// the next candidate with constant backoff.
func (s *Service) Claim(ctx context.Context, pool []string, meta Meta) (*types.Task, error) {
	ctx, span := s.tracer.Start(ctx, "lattice.claim")
	defer span.End()

	var claimed *types.Task
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > claimAttempts {
			return backoff.Permanent(types.NewError(types.CodeNothingToClaim,
				"lost the claim race repeatedly; try again"))
		}

		tasks, err := s.List(ListFilter{})
		if err != nil {
			return backoff.Permanent(err)
		}
		pick := selector.Next(tasks, meta.Actor, pool)
		if pick == nil {
			return backoff.Permanent(types.NewError(types.CodeNothingToClaim, "no eligible task to pick up"))
		}

		got, err := s.claimOne(ctx, pick.ID, pool, meta)
		if err != nil {
			if types.IsCode(err, types.CodeNothingToClaim) {
				return err // someone else won this one; retry with the next candidate
			}
			return backoff.Permanent(err)
		}
		claimed = got
		return nil
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(50*time.Millisecond), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return claimed, nil
}

// claimOne takes one candidate under its lock, re-verifying eligibility.
func (s *Service) claimOne(ctx context.Context, taskID string, pool []string, meta Meta) (*types.Task, error) {
	scope, err := s.locks.Acquire(ctx, lockfile.TaskResource(taskID))
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	snap, err := s.loadLocked(taskID)
	if err != nil {
		return nil, err
	}
	if !selector.Eligible(snap, meta.Actor, pool) {
		return nil, types.Errorf(types.CodeNothingToClaim, "task %s was taken concurrently", taskID)
	}

	if snap.AssignedTo == nil || *snap.AssignedTo != meta.Actor {
		actor := meta.Actor
		snap, err = s.commitLocked(snap, &types.Event{
			ID:         s.gen.EventID(),
			Type:       types.EventAssignmentChanged,
			TaskID:     taskID,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(types.AssignmentChangedData{AssignedTo: &actor}),
			Provenance: meta.Provenance,
		})
		if err != nil {
			return nil, err
		}
	}

	// Resuming in-flight work needs no transition.
	if snap.Status == configfile.StatusInProgress || snap.Status == configfile.StatusInPlanning {
		return snap, nil
	}
	if err := s.wf.ValidateTransition(snap.Status, configfile.StatusInProgress, false, ""); err != nil {
		return nil, err
	}
	return s.commitLocked(snap, &types.Event{
		ID:     s.gen.EventID(),
		Type:   types.EventStatusChanged,
		TaskID: taskID,
		Actor:  meta.Actor,
		Data: types.MustMarshalData(types.StatusChangedData{
			From: snap.Status,
			To:   configfile.StatusInProgress,
		}),
		Provenance: meta.Provenance,
	})
}
