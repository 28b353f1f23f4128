// Package reducer applies events to task snapshots. Apply is a pure function
// over (snapshot, event) shared by the incremental write path and the rebuild
// path, which is what makes replay deterministic: all derived times come from
// event timestamps, never from the wall clock.
package reducer

import (
	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/types"
)

// handler mutates a cloned snapshot in place.
type handler func(r *Reducer, snap *types.Task, ev *types.Event) error

// Reducer holds the event-type handler table. The table is built once at
// construction and never mutated afterwards.
type Reducer struct {
	cfg      *configfile.Config
	handlers map[types.EventType]handler
}

// New builds a reducer for the given workflow config.
func New(cfg *configfile.Config) *Reducer {
	r := &Reducer{cfg: cfg}
	r.handlers = map[types.EventType]handler{
		types.EventTaskCreated:         (*Reducer).applyTaskCreated,
		types.EventStatusChanged:       (*Reducer).applyStatusChanged,
		types.EventAssignmentChanged:   (*Reducer).applyAssignmentChanged,
		types.EventFieldUpdated:        (*Reducer).applyFieldUpdated,
		types.EventCommentAdded:        (*Reducer).applyCommentAdded,
		types.EventCommentEdited:       (*Reducer).applyCommentEdited,
		types.EventCommentDeleted:      (*Reducer).applyCommentDeleted,
		types.EventRelationshipAdded:   (*Reducer).applyRelationshipAdded,
		types.EventRelationshipRemoved: (*Reducer).applyRelationshipRemoved,
		types.EventArtifactAttached:    (*Reducer).applyArtifactAttached,
		types.EventTaskArchived:        (*Reducer).applyTaskArchived,
		types.EventTaskUnarchived:      (*Reducer).applyTaskUnarchived,
	}
	return r
}

// Apply returns the snapshot that results from applying ev to snap. The
// input snapshot is not mutated. A nil snapshot is only legal for
// task_created. Unknown (extension) event types bump updated_at and leave
// everything else unchanged.
func (r *Reducer) Apply(snap *types.Task, ev *types.Event) (*types.Task, error) {
	if ev.Type == types.EventTaskCreated {
		if snap != nil {
			return nil, types.Errorf(types.CodeIntegrityError,
				"task_created event %s replayed onto existing snapshot %s", ev.ID, snap.ID)
		}
		snap = &types.Task{ID: ev.TaskID}
	} else if snap == nil {
		return nil, types.Errorf(types.CodeIntegrityError,
			"event %s (%s) has no snapshot to apply to", ev.ID, ev.Type)
	} else {
		snap = snap.Clone()
	}

	if h, ok := r.handlers[ev.Type]; ok {
		if err := h(r, snap, ev); err != nil {
			return nil, err
		}
	}

	snap.UpdatedAt = ev.TS
	applyProvenance(snap, ev)
	return snap, nil
}

// Replay folds a whole event sequence over an empty snapshot.
func (r *Reducer) Replay(events []*types.Event) (*types.Task, error) {
	var snap *types.Task
	for _, ev := range events {
		next, err := r.Apply(snap, ev)
		if err != nil {
			return nil, err
		}
		snap = next
	}
	return snap, nil
}

// applyProvenance keeps the last-write provenance fields in sync with the
// most recent event.
func applyProvenance(snap *types.Task, ev *types.Event) {
	if ev.Provenance == nil {
		snap.TriggeredBy = ""
		snap.OnBehalfOf = ""
		snap.Reason = ""
		return
	}
	snap.TriggeredBy = ev.Provenance.TriggeredBy
	snap.OnBehalfOf = ev.Provenance.OnBehalfOf
	snap.Reason = ev.Provenance.Reason
}

func (r *Reducer) applyTaskCreated(snap *types.Task, ev *types.Event) error {
	var data types.TaskCreatedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}

	snap.Title = data.Title
	snap.Description = data.Description
	snap.Status = data.Status
	snap.Type = data.Type
	snap.Priority = data.Priority
	snap.Urgency = data.Urgency
	snap.Complexity = data.Complexity
	snap.AssignedTo = data.AssignedTo
	snap.Tags = types.NormalizeTags(data.Tags)
	snap.CustomFields = data.CustomFields
	snap.ShortID = data.ShortID
	snap.CreatedAt = ev.TS
	return nil
}

func (r *Reducer) applyStatusChanged(snap *types.Task, ev *types.Event) error {
	var data types.StatusChangedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}

	from := snap.Status
	snap.Status = data.To

	if r.cfg.IsDoneStatus(data.To) {
		ts := ev.TS
		snap.DoneAt = &ts
	} else if snap.DoneAt != nil {
		snap.DoneAt = nil
	}

	fromIdx := r.cfg.StatusIndex(from)
	toIdx := r.cfg.StatusIndex(data.To)
	if fromIdx >= 0 && toIdx >= 0 && toIdx < fromIdx {
		snap.ReopenedCount++
	}
	return nil
}

func (r *Reducer) applyAssignmentChanged(snap *types.Task, ev *types.Event) error {
	var data types.AssignmentChangedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	snap.AssignedTo = data.AssignedTo
	return nil
}

// protectedFields cannot be changed through field_updated; each has a
// dedicated event type or is reducer-derived.
var protectedFields = map[string]bool{
	"id":                true,
	"short_id":          true,
	"status":            true,
	"assigned_to":       true,
	"evidence_refs":     true,
	"relationships_out": true,
	"comment_count":     true,
	"reopened_count":    true,
	"created_at":        true,
	"updated_at":        true,
	"done_at":           true,
	"archived":          true,
}

// IsProtectedField reports whether a top-level field may not be written via
// field_updated. Exported so the service can reject before appending.
func IsProtectedField(name string) bool { return protectedFields[name] }

// updatableFields maps field names to setters for the generic update path.
var updatableFields = map[string]func(*types.Task, any) bool{
	"title":       func(t *types.Task, v any) bool { return setString(&t.Title, v) },
	"description": func(t *types.Task, v any) bool { return setString(&t.Description, v) },
	"type":        func(t *types.Task, v any) bool { return setString(&t.Type, v) },
	"priority": func(t *types.Task, v any) bool {
		s, ok := v.(string)
		if ok {
			t.Priority = types.Priority(s)
		}
		return ok
	},
	"urgency": func(t *types.Task, v any) bool {
		s, ok := v.(string)
		if ok {
			t.Urgency = types.Urgency(s)
		}
		return ok
	},
	"complexity": func(t *types.Task, v any) bool {
		s, ok := v.(string)
		if ok {
			t.Complexity = types.Complexity(s)
		}
		return ok
	},
	"tags": func(t *types.Task, v any) bool {
		items, ok := v.([]any)
		if !ok {
			if v == nil {
				t.Tags = nil
				return true
			}
			return false
		}
		tags := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return false
			}
			tags = append(tags, s)
		}
		t.Tags = types.NormalizeTags(tags)
		return true
	},
}

func setString(dst *string, v any) bool {
	s, ok := v.(string)
	if ok {
		*dst = s
	}
	return ok
}

func (r *Reducer) applyFieldUpdated(snap *types.Task, ev *types.Event) error {
	var data types.FieldUpdatedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	if len(data.Path) == 0 {
		return types.NewError(types.CodeInvalidField, "field_updated requires a non-empty path")
	}

	head := data.Path[0]
	if IsProtectedField(head) {
		return types.Errorf(types.CodeProtectedField,
			"field %q cannot be written directly; use its dedicated command", head)
	}

	if head == "custom_fields" {
		if len(data.Path) != 2 {
			return types.Errorf(types.CodeInvalidField,
				"custom field path must be custom_fields.<key>, got %v", data.Path)
		}
		key := data.Path[1]
		if data.Value == nil {
			delete(snap.CustomFields, key)
			if len(snap.CustomFields) == 0 {
				snap.CustomFields = nil
			}
			return nil
		}
		if snap.CustomFields == nil {
			snap.CustomFields = map[string]any{}
		}
		snap.CustomFields[key] = data.Value
		return nil
	}

	if len(data.Path) != 1 {
		return types.Errorf(types.CodeInvalidField, "unknown nested field path %v", data.Path)
	}
	set, ok := updatableFields[head]
	if !ok {
		return types.Errorf(types.CodeInvalidField, "unknown field %q", head)
	}
	if !set(snap, data.Value) {
		return types.Errorf(types.CodeInvalidField, "invalid value for field %q", head)
	}
	return nil
}

func (r *Reducer) applyCommentAdded(snap *types.Task, ev *types.Event) error {
	var data types.CommentData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	snap.CommentCount++
	if data.Role != "" {
		ref := types.EvidenceRef{SourceType: types.EvidenceComment, SourceID: data.CommentID, Role: data.Role}
		if !snap.HasEvidence(ref) {
			snap.EvidenceRefs = append(snap.EvidenceRefs, ref)
		}
	}
	return nil
}

func (r *Reducer) applyCommentEdited(snap *types.Task, ev *types.Event) error {
	var data types.CommentData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	// An edit may change the comment's role: replace this comment's refs.
	removeCommentEvidence(snap, data.CommentID)
	if data.Role != "" {
		snap.EvidenceRefs = append(snap.EvidenceRefs,
			types.EvidenceRef{SourceType: types.EvidenceComment, SourceID: data.CommentID, Role: data.Role})
	}
	return nil
}

func (r *Reducer) applyCommentDeleted(snap *types.Task, ev *types.Event) error {
	var data types.CommentDeletedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	if snap.CommentCount > 0 {
		snap.CommentCount--
	}
	removeCommentEvidence(snap, data.CommentID)
	return nil
}

func removeCommentEvidence(snap *types.Task, commentID string) {
	kept := snap.EvidenceRefs[:0]
	for _, ref := range snap.EvidenceRefs {
		if ref.SourceType == types.EvidenceComment && ref.SourceID == commentID {
			continue
		}
		kept = append(kept, ref)
	}
	if len(kept) == 0 {
		snap.EvidenceRefs = nil
	} else {
		snap.EvidenceRefs = kept
	}
}

func (r *Reducer) applyRelationshipAdded(snap *types.Task, ev *types.Event) error {
	var data types.RelationshipData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	if data.TargetID == snap.ID {
		return types.Errorf(types.CodeSelfLink, "task %s cannot link to itself", snap.ID)
	}
	// Replay of an already-present edge is a no-op; DUPLICATE_LINK is
	// enforced before append.
	if snap.HasRelationship(data.TargetID, data.Type) {
		return nil
	}
	snap.RelationshipsOut = append(snap.RelationshipsOut, types.Relationship{
		TargetID: data.TargetID, Type: data.Type, Note: data.Note,
	})
	return nil
}

func (r *Reducer) applyRelationshipRemoved(snap *types.Task, ev *types.Event) error {
	var data types.RelationshipData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	kept := snap.RelationshipsOut[:0]
	for _, rel := range snap.RelationshipsOut {
		if rel.TargetID == data.TargetID && rel.Type == data.Type {
			continue
		}
		kept = append(kept, rel)
	}
	if len(kept) == 0 {
		snap.RelationshipsOut = nil
	} else {
		snap.RelationshipsOut = kept
	}
	return nil
}

func (r *Reducer) applyArtifactAttached(snap *types.Task, ev *types.Event) error {
	var data types.ArtifactAttachedData
	if err := ev.DecodeData(&data); err != nil {
		return err
	}
	ref := types.EvidenceRef{SourceType: types.EvidenceArtifact, SourceID: data.ArtifactID, Role: data.Role}
	if !snap.HasEvidence(ref) {
		snap.EvidenceRefs = append(snap.EvidenceRefs, ref)
	}
	return nil
}

func (r *Reducer) applyTaskArchived(snap *types.Task, ev *types.Event) error {
	snap.Archived = true
	return nil
}

func (r *Reducer) applyTaskUnarchived(snap *types.Task, ev *types.Event) error {
	snap.Archived = false
	return nil
}
