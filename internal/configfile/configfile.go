// Package configfile loads and validates the workflow configuration stored
// as config.json inside the state directory. Config mutations are plain JSON
// edits outside the event log.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// CompletionPolicy gates entry into a status by required evidence roles
// and/or assignment.
type CompletionPolicy struct {
	RequireRoles    []string `json:"require_roles,omitempty"`
	RequireAssigned bool     `json:"require_assigned,omitempty"`
}

// Config is the workflow configuration.
type Config struct {
	Statuses           []string                    `json:"statuses"`
	Transitions        map[string][]string         `json:"transitions"`
	DefaultStatus      string                      `json:"default_status"`
	DefaultPriority    types.Priority              `json:"default_priority,omitempty"`
	TaskTypes          []string                    `json:"task_types,omitempty"`
	CompletionPolicies map[string]CompletionPolicy `json:"completion_policies,omitempty"`
	UniversalTargets   []string                    `json:"universal_targets,omitempty"`
	DoneStatuses       []string                    `json:"done_statuses,omitempty"`
	ReviewCycleLimit   int                         `json:"review_cycle_limit,omitempty"`
	Roles              []string                    `json:"roles,omitempty"`
	ProjectCode        string                      `json:"project_code,omitempty"`
	DefaultActor       string                      `json:"default_actor,omitempty"`
	WIPLimits          map[string]int              `json:"wip_limits,omitempty"`
	Hooks              map[string]string           `json:"hooks,omitempty"`

	// Operational knobs.
	LockTimeoutSeconds int   `json:"lock_timeout_seconds,omitempty"`
	MaxArtifactBytes   int64 `json:"max_artifact_bytes,omitempty"`
}

// Built-in status names used by the default workflow.
const (
	StatusBacklog    = "backlog"
	StatusPlanned    = "planned"
	StatusInPlanning = "in_planning"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusReview     = "review"
	StatusNeedsHuman = "needs_human"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// DefaultMaxArtifactBytes caps artifact payload copies at 8 MiB.
const DefaultMaxArtifactBytes = 8 << 20

// Default returns the built-in workflow: a nine-status graph where review
// gates done, needs_human and cancelled are reachable from anywhere, and
// cancelled is the only dead end.
func Default() *Config {
	return &Config{
		Statuses: []string{
			StatusBacklog, StatusPlanned, StatusInPlanning, StatusInProgress,
			StatusBlocked, StatusReview, StatusNeedsHuman, StatusDone, StatusCancelled,
		},
		Transitions: map[string][]string{
			StatusBacklog:    {StatusPlanned, StatusInPlanning, StatusInProgress},
			StatusPlanned:    {StatusBacklog, StatusInPlanning, StatusInProgress},
			StatusInPlanning: {StatusPlanned, StatusInProgress, StatusBlocked},
			StatusInProgress: {StatusInPlanning, StatusBlocked, StatusReview, StatusDone},
			StatusBlocked:    {StatusBacklog, StatusPlanned, StatusInProgress},
			StatusReview:     {StatusInPlanning, StatusInProgress, StatusDone},
			StatusNeedsHuman: {StatusBacklog, StatusPlanned, StatusInProgress},
			StatusDone:       {StatusInProgress, StatusBacklog},
			StatusCancelled:  {},
		},
		DefaultStatus:   StatusBacklog,
		DefaultPriority: types.PriorityMedium,
		TaskTypes:       []string{"task", "bug", "feature", "chore", types.TypeEpic},
		CompletionPolicies: map[string]CompletionPolicy{
			StatusDone: {RequireRoles: []string{"review"}, RequireAssigned: true},
		},
		UniversalTargets: []string{StatusNeedsHuman, StatusCancelled},
		DoneStatuses:     []string{StatusDone},
		ReviewCycleLimit: 3,
		Roles:            []string{"review"},
	}
}

// Load reads config.json from the store, falling back to Default when the
// file is absent. The loaded config is validated and normalized.
func Load(s *store.Store) (*Config, error) {
	data, err := os.ReadFile(s.ConfigPath())
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, types.Errorf(types.CodeInvalidInput, "parsing config.json: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config atomically.
func (c *Config) Save(s *store.Store) error {
	return store.WriteJSONAtomic(s.ConfigPath(), c)
}

// Validate rejects configs whose transition graph references unknown
// statuses or whose defaults fall outside the status set.
func (c *Config) Validate() error {
	if len(c.Statuses) == 0 {
		return types.NewError(types.CodeInvalidInput, "config: statuses must not be empty")
	}
	known := map[string]bool{}
	for _, st := range c.Statuses {
		if known[st] {
			return types.Errorf(types.CodeInvalidInput, "config: duplicate status %q", st)
		}
		known[st] = true
	}
	if !known[c.DefaultStatus] {
		return types.Errorf(types.CodeInvalidInput,
			"config: default_status %q not in statuses %v", c.DefaultStatus, c.Statuses)
	}
	for from, targets := range c.Transitions {
		if !known[from] {
			return types.Errorf(types.CodeInvalidInput, "config: transition source %q not in statuses", from)
		}
		for _, to := range targets {
			if !known[to] {
				return types.Errorf(types.CodeInvalidInput,
					"config: transition %s -> %s references unknown status", from, to)
			}
		}
	}
	for target := range c.CompletionPolicies {
		if !known[target] {
			return types.Errorf(types.CodeInvalidInput,
				"config: completion policy for unknown status %q", target)
		}
	}
	for _, st := range c.UniversalTargets {
		if !known[st] {
			return types.Errorf(types.CodeInvalidInput, "config: universal target %q not in statuses", st)
		}
	}
	for _, st := range c.DoneStatuses {
		if !known[st] {
			return types.Errorf(types.CodeInvalidInput, "config: done status %q not in statuses", st)
		}
	}
	if c.ReviewCycleLimit < 0 {
		return types.NewError(types.CodeInvalidInput, "config: review_cycle_limit must be >= 0")
	}
	return nil
}

// StatusIndex returns the position of a status in the configured order, or
// -1 for unknown statuses. Earlier positions are earlier workflow stages.
func (c *Config) StatusIndex(status string) int {
	for i, st := range c.Statuses {
		if st == status {
			return i
		}
	}
	return -1
}

// IsDoneStatus reports whether status is a done-class terminal state.
func (c *Config) IsDoneStatus(status string) bool {
	for _, st := range c.DoneStatuses {
		if st == status {
			return true
		}
	}
	return false
}

// IsUniversalTarget reports whether status bypasses completion policies and
// is reachable from any active status.
func (c *Config) IsUniversalTarget(status string) bool {
	for _, st := range c.UniversalTargets {
		if st == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status has no outgoing transitions and is not
// a universal source.
func (c *Config) IsTerminal(status string) bool {
	return len(c.Transitions[status]) == 0
}

// IsValidTaskType reports whether t is a configured task type. An empty
// TaskTypes list accepts anything.
func (c *Config) IsValidTaskType(t string) bool {
	if t == "" || len(c.TaskTypes) == 0 {
		return true
	}
	for _, tt := range c.TaskTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// RoleVocabulary is the union of configured roles and every role any
// completion policy requires, sorted.
func (c *Config) RoleVocabulary() []string {
	seen := map[string]bool{}
	for _, r := range c.Roles {
		seen[r] = true
	}
	for _, policy := range c.CompletionPolicies {
		for _, r := range policy.RequireRoles {
			seen[r] = true
		}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
