// Package selector implements the next/claim task-selection ordering: which
// task an actor should pick up next, given the pool of active snapshots.
package selector

import (
	"sort"

	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/types"
)

// DefaultPool is the status pool next draws from when none is given.
var DefaultPool = []string{configfile.StatusBacklog, configfile.StatusPlanned}

// resumeStatuses are the in-flight statuses an actor resumes before picking
// up new work.
var resumeStatuses = map[string]bool{
	configfile.StatusInProgress: true,
	configfile.StatusInPlanning: true,
}

// Less orders tasks by the selection sort key: priority rank, then urgency
// rank, then creation time (ULID order breaks exact ties).
func Less(a, b *types.Task) bool {
	if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
		return ar < br
	}
	if ar, br := a.Urgency.Rank(), b.Urgency.Rank(); ar != br {
		return ar < br
	}
	if !a.CreatedAt.Time.Equal(b.CreatedAt.Time) {
		return a.CreatedAt.Time.Before(b.CreatedAt.Time)
	}
	return a.ID < b.ID
}

// Sort orders tasks in place by the selection key.
func Sort(tasks []*types.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return Less(tasks[i], tasks[j]) })
}

// Next picks the task an actor should work on. Resume-first: when actor is
// set and has in-flight work, the top of that set wins. Otherwise the top of
// the ready set: active tasks whose status is in pool and which are
// unassigned or already assigned to the actor. Epics are containers, never
// selected. Returns nil when nothing is eligible.
func Next(tasks []*types.Task, actor string, pool []string) *types.Task {
	if len(pool) == 0 {
		pool = DefaultPool
	}
	inPool := map[string]bool{}
	for _, st := range pool {
		inPool[st] = true
	}

	if actor != "" {
		var resume []*types.Task
		for _, t := range tasks {
			if t.Archived || t.IsEpic() {
				continue
			}
			if resumeStatuses[t.Status] && t.AssignedTo != nil && *t.AssignedTo == actor {
				resume = append(resume, t)
			}
		}
		if len(resume) > 0 {
			Sort(resume)
			return resume[0]
		}
	}

	var ready []*types.Task
	for _, t := range tasks {
		if t.Archived || t.IsEpic() {
			continue
		}
		if !inPool[t.Status] {
			continue
		}
		if t.AssignedTo != nil && (actor == "" || *t.AssignedTo != actor) {
			continue
		}
		ready = append(ready, t)
	}
	if len(ready) == 0 {
		return nil
	}
	Sort(ready)
	return ready[0]
}

// Eligible re-checks a candidate under lock before a claim commits: it must
// still be active, unassigned (or ours), and in the pool.
func Eligible(t *types.Task, actor string, pool []string) bool {
	if t == nil || t.Archived || t.IsEpic() {
		return false
	}
	if len(pool) == 0 {
		pool = DefaultPool
	}
	poolOK := false
	for _, st := range pool {
		if t.Status == st {
			poolOK = true
			break
		}
	}
	if resumeStatuses[t.Status] && t.AssignedTo != nil && *t.AssignedTo == actor {
		return true
	}
	if !poolOK {
		return false
	}
	return t.AssignedTo == nil || *t.AssignedTo == actor
}
