package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/latticehq/lattice/internal/idgen"
	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// CreateRequest describes a new task. ID is optional; supplying one makes the
// call retryable (a retry with identical fields is a no-op, a retry with
// different fields is CONFLICT).
type CreateRequest struct {
	ID           string
	Title        string
	Description  string
	Status       string
	Type         string
	Priority     types.Priority
	Urgency      types.Urgency
	Complexity   types.Complexity
	AssignedTo   *string
	Tags         []string
	CustomFields map[string]any
}

// Create appends a task_created event, allocates a short ID when a project
// code is configured, and writes the first snapshot.
func (s *Service) Create(ctx context.Context, req CreateRequest, meta Meta) (*types.Task, error) {
	ctx, span := s.tracer.Start(ctx, "lattice.create")
	defer span.End()

	if strings.TrimSpace(req.Title) == "" {
		return nil, types.NewError(types.CodeInvalidInput, "title is required")
	}
	if !req.Priority.IsValid() {
		return nil, types.Errorf(types.CodeInvalidInput, "invalid priority %q", req.Priority)
	}
	if !req.Urgency.IsValid() {
		return nil, types.Errorf(types.CodeInvalidInput, "invalid urgency %q", req.Urgency)
	}
	if !req.Complexity.IsValid() {
		return nil, types.Errorf(types.CodeInvalidInput, "invalid complexity %q", req.Complexity)
	}
	if !s.cfg.IsValidTaskType(req.Type) {
		return nil, types.Errorf(types.CodeInvalidInput,
			"unknown task type %q; configured types: %s", req.Type, strings.Join(s.cfg.TaskTypes, ", "))
	}

	status := req.Status
	if status == "" {
		status = s.cfg.DefaultStatus
	} else if s.cfg.StatusIndex(status) < 0 {
		return nil, types.Errorf(types.CodeInvalidInput,
			"unknown status %q; configured statuses: %s", status, strings.Join(s.cfg.Statuses, ", "))
	}

	priority := req.Priority
	if priority == "" {
		priority = s.cfg.DefaultPriority
	}
	if req.AssignedTo != nil {
		if err := types.ValidateActor(*req.AssignedTo); err != nil {
			return nil, err
		}
	}

	taskID := req.ID
	if taskID == "" {
		taskID = s.gen.TaskID()
	} else if !idgen.Valid(taskID, idgen.PrefixTask) {
		return nil, types.Errorf(types.CodeInvalidInput, "malformed task id %q", taskID)
	}
	span.SetAttributes(attribute.String("task.id", taskID))

	scope, err := s.locks.Acquire(ctx, lockfile.TaskResource(taskID))
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	alias, err := s.short.Allocate(ctx, s.cfg.ProjectCode, taskID)
	if err != nil {
		return nil, err
	}

	data := types.TaskCreatedData{
		Title:        req.Title,
		Description:  req.Description,
		Status:       status,
		Type:         req.Type,
		Priority:     priority,
		Urgency:      req.Urgency,
		Complexity:   req.Complexity,
		AssignedTo:   req.AssignedTo,
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
		ShortID:      alias,
	}
	ev := &types.Event{
		ID:         s.eventID(meta),
		Type:       types.EventTaskCreated,
		TaskID:     taskID,
		Actor:      meta.Actor,
		Data:       types.MustMarshalData(data),
		Provenance: meta.Provenance,
	}

	// A supplied ID may be a retry: an identical payload returns the
	// existing snapshot, anything else is a conflict on the caller's id.
	existing, err := s.log.Read(taskID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		first := existing[0]
		if first.Type == types.EventTaskCreated && first.SamePayload(ev) {
			return s.loadLocked(taskID)
		}
		return nil, types.Errorf(types.CodeConflict,
			"task %s already exists with different creation fields", taskID)
	}

	ev.TS = s.clk.Now()
	if _, err := s.log.Append(ev); err != nil {
		return nil, err
	}
	snap, err := s.red.Apply(nil, ev)
	if err != nil {
		return nil, err
	}
	if err := s.writeSnapshot(snap); err != nil {
		return nil, err
	}
	if err := s.log.AppendLifecycle(ev); err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task", taskID, "short_id", alias, "actor", meta.Actor)
	s.hooks.Fire(ev)
	return snap, nil
}

func (s *Service) writeSnapshot(snap *types.Task) error {
	path := s.store.TaskPath(snap.ID)
	if snap.Archived {
		path = s.store.ArchivedTaskPath(snap.ID)
	}
	return store.WriteJSONAtomic(path, snap)
}
