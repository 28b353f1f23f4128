package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EventType identifies what kind of state change an event records.
type EventType string

// Built-in event types. Extension types must carry the "x_" prefix.
const (
	EventTaskCreated         EventType = "task_created"
	EventStatusChanged       EventType = "status_changed"
	EventAssignmentChanged   EventType = "assignment_changed"
	EventFieldUpdated        EventType = "field_updated"
	EventCommentAdded        EventType = "comment_added"
	EventCommentEdited       EventType = "comment_edited"
	EventCommentDeleted      EventType = "comment_deleted"
	EventRelationshipAdded   EventType = "relationship_added"
	EventRelationshipRemoved EventType = "relationship_removed"
	EventArtifactAttached    EventType = "artifact_attached"
	EventTaskArchived        EventType = "task_archived"
	EventTaskUnarchived      EventType = "task_unarchived"
)

// ExtensionPrefix marks caller-defined event types.
const ExtensionPrefix = "x_"

// builtinEventTypes is the closed set of reserved types.
var builtinEventTypes = map[EventType]bool{
	EventTaskCreated:         true,
	EventStatusChanged:       true,
	EventAssignmentChanged:   true,
	EventFieldUpdated:        true,
	EventCommentAdded:        true,
	EventCommentEdited:       true,
	EventCommentDeleted:      true,
	EventRelationshipAdded:   true,
	EventRelationshipRemoved: true,
	EventArtifactAttached:    true,
	EventTaskArchived:        true,
	EventTaskUnarchived:      true,
}

// IsBuiltin reports whether t is one of the reserved built-in types.
func (t EventType) IsBuiltin() bool { return builtinEventTypes[t] }

// IsExtension reports whether t is a caller-defined x_ type.
func (t EventType) IsExtension() bool { return strings.HasPrefix(string(t), ExtensionPrefix) }

// IsKnown reports whether t is either built-in or a well-formed extension.
func (t EventType) IsKnown() bool { return t.IsBuiltin() || t.IsExtension() }

// LifecycleTypes are the event types mirrored into the global lifecycle index.
var LifecycleTypes = map[EventType]bool{
	EventTaskCreated:    true,
	EventTaskArchived:   true,
	EventTaskUnarchived: true,
}

// Provenance attributes an event beyond the acting identity.
type Provenance struct {
	TriggeredBy string `json:"triggered_by,omitempty"`
	OnBehalfOf  string `json:"on_behalf_of,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Event is one immutable record of a state change. The per-task event log is
// the source of truth; snapshots are derived.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	TaskID     string            `json:"task_id"`
	Actor      string            `json:"actor"`
	TS         Timestamp         `json:"ts"`
	Data       json.RawMessage   `json:"data"`
	Provenance *Provenance       `json:"provenance,omitempty"`
	Telemetry  map[string]string `json:"telemetry,omitempty"`
}

// Validate checks the structural invariants of an event before append.
func (e *Event) Validate() error {
	if e.ID == "" {
		return NewError(CodeInvalidInput, "event id is required")
	}
	if e.TaskID == "" {
		return NewError(CodeInvalidInput, "event task_id is required")
	}
	if !e.Type.IsKnown() {
		return NewError(CodeInvalidInput,
			fmt.Sprintf("unknown event type %q: custom types must start with %q", e.Type, ExtensionPrefix))
	}
	if err := ValidateActor(e.Actor); err != nil {
		return err
	}
	if e.TS.IsZero() {
		return NewError(CodeInvalidInput, "event ts is required")
	}
	return nil
}

// SamePayload reports whether two events are identical for idempotency
// purposes. Timestamps, provenance, and telemetry are ignored: a retried
// command carries the same id, type, actor, and data but is stamped anew.
func (e *Event) SamePayload(other *Event) bool {
	if e.Type != other.Type || e.TaskID != other.TaskID || e.Actor != other.Actor {
		return false
	}
	return bytes.Equal(canonicalJSON(e.Data), canonicalJSON(other.Data))
}

// canonicalJSON re-marshals raw JSON so that key order and whitespace do not
// affect comparison. Invalid input compares as raw bytes.
func canonicalJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// TaskCreatedData is the payload of a task_created event.
type TaskCreatedData struct {
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status"`
	Type         string         `json:"type,omitempty"`
	Priority     Priority       `json:"priority,omitempty"`
	Urgency      Urgency        `json:"urgency,omitempty"`
	Complexity   Complexity     `json:"complexity,omitempty"`
	AssignedTo   *string        `json:"assigned_to,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	ShortID      string         `json:"short_id,omitempty"`
}

// StatusChangedData is the payload of a status_changed event.
type StatusChangedData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Forced bool   `json:"forced,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// AssignmentChangedData is the payload of an assignment_changed event.
// A nil AssignedTo clears the assignment.
type AssignmentChangedData struct {
	AssignedTo *string `json:"assigned_to"`
}

// FieldUpdatedData is the payload of a field_updated event. Path addresses
// nested custom fields ("custom_fields", "estimate"); PreviousValue is always
// recorded for reversibility.
type FieldUpdatedData struct {
	Path          []string `json:"path"`
	Value         any      `json:"value"`
	PreviousValue any      `json:"previous_value"`
}

// CommentData is shared by comment_added and comment_edited.
type CommentData struct {
	CommentID string `json:"comment_id"`
	Body      string `json:"body"`
	Role      string `json:"role,omitempty"`
}

// CommentDeletedData is the payload of comment_deleted.
type CommentDeletedData struct {
	CommentID string `json:"comment_id"`
}

// RelationshipData is shared by relationship_added and relationship_removed.
type RelationshipData struct {
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
	Note     string `json:"note,omitempty"`
}

// ArtifactAttachedData is the payload of artifact_attached.
type ArtifactAttachedData struct {
	ArtifactID string `json:"artifact_id"`
	Role       string `json:"role,omitempty"`
}

// DecodeData unmarshals the event payload into dst.
func (e *Event) DecodeData(dst any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decoding %s payload for %s: %w", e.Type, e.ID, err)
	}
	return nil
}

// MustMarshalData marshals a payload struct into an event data field.
// Payload structs contain only marshalable fields, so failure is a bug.
func MustMarshalData(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshaling event payload: %v", err))
	}
	return data
}
