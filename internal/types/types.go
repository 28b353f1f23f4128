// Package types defines core data structures for the lattice task tracker.
package types

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Timestamp is a time.Time that marshals as ISO-8601 UTC with millisecond
// precision. All snapshot-derived times use this representation so that
// incremental writes and rebuilds produce byte-identical files.
type Timestamp struct {
	time.Time
}

// TimestampLayout is the wire format for all event and snapshot times.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// NewTimestamp truncates t to millisecond precision in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(TimestampLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC().Truncate(time.Millisecond)
	return nil
}

// Equal compares at millisecond precision.
func (t Timestamp) Equal(other Timestamp) bool {
	return t.Time.Equal(other.Time)
}

// Priority represents how important a task is.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of a priority; lower ranks sort first.
// An empty or unknown priority sorts after all known ones.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// IsValid reports whether p is a known priority. Empty is allowed (unset).
func (p Priority) IsValid() bool {
	switch p {
	case "", PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Urgency represents how time-sensitive a task is.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyHigh      Urgency = "high"
	UrgencyNormal    Urgency = "normal"
	UrgencyLow       Urgency = "low"
)

func (u Urgency) Rank() int {
	switch u {
	case UrgencyImmediate:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyNormal:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 4
	}
}

func (u Urgency) IsValid() bool {
	switch u {
	case "", UrgencyImmediate, UrgencyHigh, UrgencyNormal, UrgencyLow:
		return true
	}
	return false
}

// Complexity is an optional effort estimate.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

func (c Complexity) IsValid() bool {
	switch c {
	case "", ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// Relationship is an outgoing typed edge from one task to another.
type Relationship struct {
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
	Note     string `json:"note,omitempty"`
}

// Well-known relationship types. Arbitrary types are accepted; these are the
// ones the tooling knows how to render and traverse.
const (
	RelBlocks      = "blocks"
	RelBlockedBy   = "blocked_by"
	RelRelatesTo   = "relates_to"
	RelDuplicateOf = "duplicate_of"
	RelParentOf    = "parent_of"
	RelChildOf     = "child_of"
)

// EvidenceSource is where a piece of evidence lives.
type EvidenceSource string

const (
	EvidenceComment  EvidenceSource = "comment"
	EvidenceArtifact EvidenceSource = "artifact"
)

// EvidenceRef points from a task to a role-bearing comment or artifact that
// can satisfy a completion-policy role.
type EvidenceRef struct {
	SourceType EvidenceSource `json:"source_type"`
	SourceID   string         `json:"source_id"`
	Role       string         `json:"role,omitempty"`
}

// Task is the derived, denormalized snapshot of a task's current state.
// It is never mutated directly: every change flows through an event and the
// reducer, and the whole document can be rebuilt from the event log.
type Task struct {
	ID               string         `json:"id"`
	ShortID          string         `json:"short_id,omitempty"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Status           string         `json:"status"`
	Type             string         `json:"type,omitempty"`
	Priority         Priority       `json:"priority,omitempty"`
	Urgency          Urgency        `json:"urgency,omitempty"`
	Complexity       Complexity     `json:"complexity,omitempty"`
	AssignedTo       *string        `json:"assigned_to"`
	Tags             []string       `json:"tags,omitempty"`
	CustomFields     map[string]any `json:"custom_fields,omitempty"`
	RelationshipsOut []Relationship `json:"relationships_out,omitempty"`
	EvidenceRefs     []EvidenceRef  `json:"evidence_refs,omitempty"`
	CommentCount     int            `json:"comment_count"`
	ReopenedCount    int            `json:"reopened_count,omitempty"`
	CreatedAt        Timestamp      `json:"created_at"`
	UpdatedAt        Timestamp      `json:"updated_at"`
	DoneAt           *Timestamp     `json:"done_at,omitempty"`
	Archived         bool           `json:"archived,omitempty"`

	// Provenance of the last applied event (last-write snapshot).
	TriggeredBy string `json:"triggered_by,omitempty"`
	OnBehalfOf  string `json:"on_behalf_of,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// TypeEpic is the container task type whose status is always derived from
// its children and never written directly.
const TypeEpic = "epic"

// IsEpic reports whether the task is a container task.
func (t *Task) IsEpic() bool { return t.Type == TypeEpic }

// HasRelationship reports whether an edge with the same (target, type) key
// already exists. Note is not part of the identity.
func (t *Task) HasRelationship(targetID, relType string) bool {
	for _, r := range t.RelationshipsOut {
		if r.TargetID == targetID && r.Type == relType {
			return true
		}
	}
	return false
}

// HasEvidence reports whether an evidence ref with the same identity exists.
func (t *Task) HasEvidence(ref EvidenceRef) bool {
	for _, e := range t.EvidenceRefs {
		if e == ref {
			return true
		}
	}
	return false
}

// EvidenceRoles returns the distinct non-empty roles present in evidence_refs.
func (t *Task) EvidenceRoles() []string {
	seen := map[string]bool{}
	var roles []string
	for _, e := range t.EvidenceRefs {
		if e.Role != "" && !seen[e.Role] {
			seen[e.Role] = true
			roles = append(roles, e.Role)
		}
	}
	sort.Strings(roles)
	return roles
}

// actorRegex matches the required actor shape, e.g. "human:alice" or
// "agent:claude". No registry backs it; the format is the whole contract.
var actorRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*:[^\s]+$`)

// ValidateActor checks the actor string format.
func ValidateActor(actor string) error {
	if !actorRegex.MatchString(actor) {
		return NewError(CodeInvalidInput,
			fmt.Sprintf("invalid actor %q: must match prefix:identifier (e.g. human:alice, agent:claude)", actor))
	}
	return nil
}

// NormalizeTags deduplicates and sorts a tag list in place, returning the
// canonical form stored in snapshots.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
