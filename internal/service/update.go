package service

import (
	"context"
	"strings"

	"github.com/latticehq/lattice/internal/reducer"
	"github.com/latticehq/lattice/internal/types"
)

// Patch is one field assignment in an update. Path uses dotted form; only
// custom fields nest ("custom_fields.estimate"). A nil Value on a custom
// field deletes the key.
type Patch struct {
	Path  string
	Value any
}

// Update applies one or more field patches to a task, appending one
// field_updated event per patch. Every patch is validated against the current
// snapshot before the first event is appended, so a bad patch rejects the
// whole command. Each event records the value being overwritten.
func (s *Service) Update(ctx context.Context, taskID string, patches []Patch, meta Meta) (*types.Task, error) {
	if len(patches) == 0 {
		return nil, types.NewError(types.CodeInvalidInput, "update requires at least one field patch")
	}
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "update", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		events := make([]*types.Event, 0, len(patches))
		for i, p := range patches {
			path := strings.Split(p.Path, ".")
			if err := validatePatch(snap, path); err != nil {
				return nil, err
			}
			// The first event carries the idempotency key; a retried batch is
			// recognized by it and not re-applied.
			evID := s.gen.EventID()
			if i == 0 {
				evID = s.eventID(meta)
			}
			events = append(events, &types.Event{
				ID:     evID,
				Type:   types.EventFieldUpdated,
				TaskID: id,
				Actor:  meta.Actor,
				Data: types.MustMarshalData(types.FieldUpdatedData{
					Path:          path,
					Value:         p.Value,
					PreviousValue: fieldValue(snap, path),
				}),
				Provenance: meta.Provenance,
			})
		}

		// All but the last event commit here; mutate commits the last one.
		current := snap
		for _, ev := range events[:len(events)-1] {
			next, err := s.commitLocked(current, ev)
			if err != nil {
				return nil, err
			}
			*snap = *next
			current = next
		}
		return events[len(events)-1], nil
	})
}

// validatePatch rejects protected, unknown, and malformed paths before any
// event is written.
func validatePatch(snap *types.Task, path []string) error {
	if len(path) == 0 || path[0] == "" {
		return types.NewError(types.CodeInvalidField, "empty field path")
	}
	head := path[0]
	if reducer.IsProtectedField(head) {
		return types.Errorf(types.CodeProtectedField,
			"field %q cannot be written directly; use its dedicated command", head)
	}
	if head == "custom_fields" {
		if len(path) != 2 || path[1] == "" {
			return types.Errorf(types.CodeInvalidField,
				"custom field path must be custom_fields.<key>, got %s", strings.Join(path, "."))
		}
		return nil
	}
	if len(path) != 1 {
		return types.Errorf(types.CodeInvalidField, "unknown nested field path %s", strings.Join(path, "."))
	}
	switch head {
	case "title", "description", "type", "priority", "urgency", "complexity", "tags":
		return nil
	}
	return types.Errorf(types.CodeInvalidField, "unknown field %q", head)
}

// fieldValue reads the current value at a validated patch path.
func fieldValue(snap *types.Task, path []string) any {
	switch path[0] {
	case "custom_fields":
		if snap.CustomFields == nil {
			return nil
		}
		return snap.CustomFields[path[1]]
	case "title":
		return snap.Title
	case "description":
		return snap.Description
	case "type":
		return snap.Type
	case "priority":
		return string(snap.Priority)
	case "urgency":
		return string(snap.Urgency)
	case "complexity":
		return string(snap.Complexity)
	case "tags":
		if snap.Tags == nil {
			return nil
		}
		out := make([]any, len(snap.Tags))
		for i, t := range snap.Tags {
			out[i] = t
		}
		return out
	}
	return nil
}

// Assign sets or clears a task's assignee. A nil assignee unassigns. Setting
// the same assignee again is a no-op.
func (s *Service) Assign(ctx context.Context, taskID string, assignee *string, meta Meta) (*types.Task, error) {
	if assignee != nil {
		if err := types.ValidateActor(*assignee); err != nil {
			return nil, err
		}
	}
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "assign", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		if equalAssignee(snap.AssignedTo, assignee) {
			return nil, nil
		}
		return &types.Event{
			ID:         s.eventID(meta),
			Type:       types.EventAssignmentChanged,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(types.AssignmentChangedData{AssignedTo: assignee}),
			Provenance: meta.Provenance,
		}, nil
	})
}

func equalAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
