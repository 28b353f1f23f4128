// Package workflow implements the config-driven status machine: transition
// validation, completion-policy gates, review-cycle limits, and the derived
// status of container (epic) tasks.
package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/types"
)

// Engine validates status changes against a workflow config.
type Engine struct {
	cfg *configfile.Config
}

// New creates an engine for cfg.
func New(cfg *configfile.Config) *Engine {
	return &Engine{cfg: cfg}
}

// ValidTargets returns the statuses legally reachable from current,
// including universal targets, sorted for stable error messages.
func (e *Engine) ValidTargets(current string) []string {
	seen := map[string]bool{}
	for _, to := range e.cfg.Transitions[current] {
		seen[to] = true
	}
	if !e.cfg.IsTerminal(current) {
		for _, to := range e.cfg.UniversalTargets {
			if to != current {
				seen[to] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for st := range seen {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}

// ValidateTransition checks whether current -> target is permitted. Force
// with a non-empty reason bypasses the graph; force without a reason is
// FORCE_REQUIRES_REASON. Error messages enumerate the valid alternatives.
func (e *Engine) ValidateTransition(current, target string, force bool, reason string) error {
	if force {
		if strings.TrimSpace(reason) == "" {
			return types.NewError(types.CodeForceRequiresReason,
				"forced transitions require a non-empty --reason")
		}
		if e.cfg.StatusIndex(target) < 0 {
			return types.Errorf(types.CodeInvalidInput,
				"unknown status %q; configured statuses: %s", target, strings.Join(e.cfg.Statuses, ", "))
		}
		return nil
	}

	if e.cfg.StatusIndex(target) < 0 {
		return types.Errorf(types.CodeInvalidInput,
			"unknown status %q; configured statuses: %s", target, strings.Join(e.cfg.Statuses, ", "))
	}
	if target == current {
		return types.Errorf(types.CodeInvalidTransition, "task is already %s", current)
	}

	for _, to := range e.ValidTargets(current) {
		if to == target {
			return nil
		}
	}
	valid := e.ValidTargets(current)
	if len(valid) == 0 {
		return types.Errorf(types.CodeInvalidTransition,
			"%s is terminal; no outgoing transitions", current)
	}
	return types.Errorf(types.CodeInvalidTransition,
		"cannot move %s -> %s; valid targets: %s", current, target, strings.Join(valid, ", "))
}

// CheckCompletionPolicy verifies the target status's evidence and assignment
// requirements against the task's current snapshot. Universal targets bypass
// policies. Failures carry the missing roles in the error details.
func (e *Engine) CheckCompletionPolicy(task *types.Task, target string) error {
	if e.cfg.IsUniversalTarget(target) {
		return nil
	}
	policy, ok := e.cfg.CompletionPolicies[target]
	if !ok {
		return nil
	}

	have := map[string]bool{}
	for _, role := range task.EvidenceRoles() {
		have[role] = true
	}
	var missing []string
	for _, role := range policy.RequireRoles {
		if !have[role] {
			missing = append(missing, role)
		}
	}
	missingAssignment := policy.RequireAssigned && task.AssignedTo == nil

	if len(missing) == 0 && !missingAssignment {
		return nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing evidence roles: %s", strings.Join(missing, ", ")))
	}
	if missingAssignment {
		parts = append(parts, "task must be assigned")
	}
	return types.Errorf(types.CodeCompletionBlocked,
		"cannot enter %s: %s", target, strings.Join(parts, "; ")).
		WithDetails(map[string]any{
			"missing_roles":      missing,
			"missing_assignment": missingAssignment,
		})
}

// reviewSourceStatus and reviewReturnTargets define the shape of a "review
// bounce": a transition out of review back into an implementation stage.
const reviewSourceStatus = configfile.StatusReview

var reviewReturnTargets = map[string]bool{
	configfile.StatusInProgress: true,
	configfile.StatusInPlanning: true,
}

// CountReviewCycles counts prior non-forced review bounces in a task's log.
func CountReviewCycles(events []*types.Event) int {
	count := 0
	for _, ev := range events {
		if ev.Type != types.EventStatusChanged {
			continue
		}
		var data types.StatusChangedData
		if err := ev.DecodeData(&data); err != nil {
			continue
		}
		if data.Forced {
			continue
		}
		if data.From == reviewSourceStatus && reviewReturnTargets[data.To] {
			count++
		}
	}
	return count
}

// CheckReviewCycles blocks the next review bounce once the configured limit
// is reached. Force bypasses (the caller has already validated the reason).
func (e *Engine) CheckReviewCycles(events []*types.Event, current, target string, force bool) error {
	if force {
		return nil
	}
	if current != reviewSourceStatus || !reviewReturnTargets[target] {
		return nil
	}
	limit := e.cfg.ReviewCycleLimit
	if limit <= 0 {
		return nil
	}
	if cycles := CountReviewCycles(events); cycles >= limit {
		return types.Errorf(types.CodeReviewCycleExceeded,
			"task has bounced out of review %d times (limit %d); use --force with a reason or escalate to needs_human",
			cycles, limit).WithDetails(map[string]any{"cycles": cycles, "limit": limit})
	}
	return nil
}

// EpicDerivedStatus infers a container task's status from its children.
// Rule order: any in_progress wins; then all-terminal outcomes; then any
// blocked; then any planned; else backlog. An epic with no children is
// backlog.
func (e *Engine) EpicDerivedStatus(children []*types.Task) string {
	if len(children) == 0 {
		return configfile.StatusBacklog
	}

	var anyInProgress, anyBlocked, anyPlanned, anyDone bool
	allTerminal := true
	allCancelled := true
	for _, child := range children {
		switch child.Status {
		case configfile.StatusInProgress:
			anyInProgress = true
		case configfile.StatusBlocked:
			anyBlocked = true
		case configfile.StatusPlanned:
			anyPlanned = true
		}
		done := e.cfg.IsDoneStatus(child.Status)
		cancelled := child.Status == configfile.StatusCancelled
		if done {
			anyDone = true
		}
		if !done && !cancelled {
			allTerminal = false
		}
		if !cancelled {
			allCancelled = false
		}
	}

	switch {
	case anyInProgress:
		return configfile.StatusInProgress
	case allTerminal && anyDone:
		return configfile.StatusDone
	case allCancelled:
		return configfile.StatusCancelled
	case anyBlocked:
		return configfile.StatusBlocked
	case anyPlanned:
		return configfile.StatusPlanned
	default:
		return configfile.StatusBacklog
	}
}

// CheckWIPLimit returns an advisory warning string when moving into target
// would exceed its configured WIP limit. Never blocks.
func (e *Engine) CheckWIPLimit(target string, currentCount int) string {
	limit, ok := e.cfg.WIPLimits[target]
	if !ok || limit <= 0 {
		return ""
	}
	if currentCount+1 > limit {
		return fmt.Sprintf("wip limit for %s is %d; this makes %d", target, limit, currentCount+1)
	}
	return ""
}
