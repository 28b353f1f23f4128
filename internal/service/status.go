package service

import (
	"context"

	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// StatusResult is a status change outcome plus any advisory warning.
type StatusResult struct {
	Task    *types.Task `json:"task"`
	Warning string      `json:"warning,omitempty"`
}

// ChangeStatus moves a task through the workflow graph. Force with a reason
// bypasses graph, policy, and review-cycle checks but still records the
// transition honestly (forced=true, the reason in the event). Epics are
// rejected: their status is derived from children and never written.
func (s *Service) ChangeStatus(ctx context.Context, taskID, target string, force bool, reason string, meta Meta) (*StatusResult, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{}
	task, err := s.mutate(ctx, "status", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		if snap.IsEpic() {
			return nil, types.Errorf(types.CodeInvalidTransition,
				"%s is an epic; its status is derived from its children", id)
		}
		if err := s.wf.ValidateTransition(snap.Status, target, force, reason); err != nil {
			return nil, err
		}
		if !force {
			if err := s.wf.CheckCompletionPolicy(snap, target); err != nil {
				return nil, err
			}
			events, err := s.log.Read(id)
			if err != nil {
				return nil, err
			}
			if err := s.wf.CheckReviewCycles(events, snap.Status, target, force); err != nil {
				return nil, err
			}
		}

		if warn := s.wf.CheckWIPLimit(target, s.countInStatus(target)); warn != "" {
			res.Warning = warn
			s.logger.Warn("wip limit exceeded", "status", target, "detail", warn)
		}

		prov := meta.Provenance
		if force && prov == nil {
			prov = &types.Provenance{Reason: reason}
		}
		return &types.Event{
			ID:     s.eventID(meta),
			Type:   types.EventStatusChanged,
			TaskID: id,
			Actor:  meta.Actor,
			Data: types.MustMarshalData(types.StatusChangedData{
				From:   snap.Status,
				To:     target,
				Forced: force,
				Reason: reason,
			}),
			Provenance: prov,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res.Task = task
	return res, nil
}

// countInStatus counts active non-epic tasks currently in a status, for WIP
// advisories. Best effort: unreadable snapshots are skipped.
func (s *Service) countInStatus(status string) int {
	ids, err := s.store.ListTaskIDs()
	if err != nil {
		return 0
	}
	n := 0
	for _, id := range ids {
		var snap types.Task
		if err := store.ReadJSON(s.store.TaskPath(id), &snap); err != nil {
			continue
		}
		if !snap.Archived && !snap.IsEpic() && snap.Status == status {
			n++
		}
	}
	return n
}
