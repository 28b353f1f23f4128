package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/latticehq/lattice/internal/types"
)

// RecordCustomEvent appends a caller-defined x_ event to a task's log.
// Custom events are opaque to the reducer (they only bump updated_at) but
// flow through hooks and replay like any other event. Built-in type names
// and non-prefixed names are rejected.
func (s *Service) RecordCustomEvent(ctx context.Context, taskID, eventType string, data json.RawMessage, meta Meta) (*types.Task, error) {
	et := types.EventType(eventType)
	if et.IsBuiltin() {
		return nil, types.Errorf(types.CodeReservedType,
			"%q is a built-in event type; custom events must use the %s prefix", eventType, types.ExtensionPrefix)
	}
	if !strings.HasPrefix(eventType, types.ExtensionPrefix) {
		return nil, types.Errorf(types.CodeReservedType,
			"custom event types must start with %q, got %q", types.ExtensionPrefix, eventType)
	}
	if len(data) > 0 && !json.Valid(data) {
		return nil, types.NewError(types.CodeInvalidInput, "event data must be valid JSON")
	}
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "event", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		return &types.Event{
			ID:         s.eventID(meta),
			Type:       et,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       data,
			Provenance: meta.Provenance,
		}, nil
	})
}

// Events returns a task's full event history in append order, from the
// active or archived log.
func (s *Service) Events(taskID string) ([]*types.Event, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}
	events, err := s.log.Read(id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, types.Errorf(types.CodeNotFound, "no task %s", id)
	}
	return events, nil
}
