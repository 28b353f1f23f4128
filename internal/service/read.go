package service

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/latticehq/lattice/internal/selector"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Get returns a task snapshot by ID or alias. Epics come back with their
// derived status so no reader ever sees a stale container status.
func (s *Service) Get(taskID string) (*types.Task, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	var snap types.Task
	err = store.ReadJSON(s.store.TaskPath(id), &snap)
	if os.IsNotExist(err) {
		err = store.ReadJSON(s.store.ArchivedTaskPath(id), &snap)
	}
	if os.IsNotExist(err) {
		if !s.log.Exists(id) {
			return nil, types.Errorf(types.CodeNotFound, "no task %s", id)
		}
		rebuilt, rerr := s.reb.RebuildTask(context.Background(), id)
		if rerr != nil {
			return nil, rerr
		}
		snap = *rebuilt
	} else if err != nil {
		return nil, err
	}

	if snap.IsEpic() {
		derived, err := s.deriveEpicStatus(&snap)
		if err == nil {
			snap.Status = derived
		}
	}
	return &snap, nil
}

// ListFilter narrows List output. Zero values mean no filtering.
type ListFilter struct {
	Status     string
	Type       string
	AssignedTo string
	Tag        string
	Archived   bool // include archived tasks instead of active ones
}

// List returns snapshots matching the filter, ordered by the selection sort
// key so the output doubles as a priority queue view.
func (s *Service) List(filter ListFilter) ([]*types.Task, error) {
	var ids []string
	var err error
	if filter.Archived {
		ids, err = s.store.ListArchivedTaskIDs()
	} else {
		ids, err = s.store.ListTaskIDs()
	}
	if err != nil {
		return nil, err
	}

	var out []*types.Task
	for _, id := range ids {
		snap, err := s.Get(id)
		if err != nil {
			continue
		}
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		if filter.Type != "" && snap.Type != filter.Type {
			continue
		}
		if filter.AssignedTo != "" &&
			(snap.AssignedTo == nil || *snap.AssignedTo != filter.AssignedTo) {
			continue
		}
		if filter.Tag != "" && !hasTag(snap, filter.Tag) {
			continue
		}
		out = append(out, snap)
	}
	selector.Sort(out)
	return out, nil
}

func hasTag(t *types.Task, tag string) bool {
	for _, have := range t.Tags {
		if strings.EqualFold(have, tag) {
			return true
		}
	}
	return false
}

// EpicChildren returns the snapshots of a container's children: every task
// carrying a child_of edge back to the epic, plus every target of the epic's
// parent_of edges.
func (s *Service) EpicChildren(epicID string) ([]*types.Task, error) {
	id, err := s.Resolve(epicID)
	if err != nil {
		return nil, err
	}

	childIDs := map[string]bool{}
	var epic types.Task
	rerr := store.ReadJSON(s.store.TaskPath(id), &epic)
	if rerr == nil {
		for _, rel := range epic.RelationshipsOut {
			if rel.Type == types.RelParentOf {
				childIDs[rel.TargetID] = true
			}
		}
	}

	active, err := s.store.ListTaskIDs()
	if err != nil {
		return nil, err
	}
	for _, cid := range active {
		if cid == id || childIDs[cid] {
			continue
		}
		var snap types.Task
		if store.ReadJSON(s.store.TaskPath(cid), &snap) != nil {
			continue
		}
		if snap.HasRelationship(id, types.RelChildOf) {
			childIDs[cid] = true
		}
	}

	ids := make([]string, 0, len(childIDs))
	for cid := range childIDs {
		ids = append(ids, cid)
	}
	sort.Strings(ids)

	var out []*types.Task
	for _, cid := range ids {
		var snap types.Task
		err := store.ReadJSON(s.store.TaskPath(cid), &snap)
		if os.IsNotExist(err) {
			err = store.ReadJSON(s.store.ArchivedTaskPath(cid), &snap)
		}
		if err != nil {
			continue
		}
		out = append(out, snap.Clone())
	}
	return out, nil
}

// deriveEpicStatus computes a container's status from its children.
func (s *Service) deriveEpicStatus(epic *types.Task) (string, error) {
	children, err := s.EpicChildren(epic.ID)
	if err != nil {
		return "", err
	}
	return s.wf.EpicDerivedStatus(children), nil
}
