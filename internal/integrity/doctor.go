package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/latticehq/lattice/internal/artifact"
	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/idgen"
	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/shortid"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Check names for doctor findings.
const (
	CheckCorruptLine     = "corrupt_jsonl_line"
	CheckSnapshotDrift   = "snapshot_drift"
	CheckSnapshotMissing = "snapshot_missing"
	CheckMalformedID     = "malformed_id"
	CheckUnknownEvent    = "unknown_event_type"
	CheckSelfLink        = "self_link"
	CheckDuplicateEdge   = "duplicate_edge"
	CheckDanglingEdge    = "dangling_relationship"
	CheckMissingPayload  = "missing_artifact_payload"
	CheckLifecycleDrift  = "lifecycle_drift"
	CheckUnknownRole     = "unknown_evidence_role"
	CheckAliasDrift      = "alias_drift"
)

// Issue is one doctor finding.
type Issue struct {
	Check   string `json:"check"`
	TaskID  string `json:"task_id,omitempty"`
	Path    string `json:"path,omitempty"`
	Detail  string `json:"detail"`
	Fixable bool   `json:"fixable"`
}

// Report is the outcome of a doctor run.
type Report struct {
	TasksScanned  int      `json:"tasks_scanned"`
	EventsScanned int      `json:"events_scanned"`
	Issues        []Issue  `json:"issues,omitempty"`
	Fixed         []string `json:"fixed,omitempty"`
}

// Healthy reports whether the scan found nothing wrong.
func (r *Report) Healthy() bool { return len(r.Issues) == 0 }

// Doctor audits a state directory. With fix enabled it truncates torn log
// tails, rebuilds drifting snapshots, and regenerates derived indexes; it
// never rewrites committed event history.
type Doctor struct {
	store *store.Store
	cfg   *configfile.Config
	reb   *Rebuilder
	arts  *artifact.Store
	short *shortid.Service
}

// NewDoctor wires a Doctor over a state directory.
func NewDoctor(s *store.Store, cfg *configfile.Config, locks *lockfile.Manager) *Doctor {
	maxBytes := cfg.MaxArtifactBytes
	if maxBytes <= 0 {
		maxBytes = configfile.DefaultMaxArtifactBytes
	}
	return &Doctor{
		store: s,
		cfg:   cfg,
		reb:   NewRebuilder(s, cfg, locks),
		arts:  artifact.New(s, maxBytes),
		short: shortid.New(s, locks),
	}
}

// Run performs the audit. Fixable issues are repaired when fix is set and
// re-reported in Report.Fixed.
func (d *Doctor) Run(ctx context.Context, fix bool) (*Report, error) {
	rep := &Report{}

	active, err := d.store.ListTaskIDs()
	if err != nil {
		return nil, err
	}
	archived, err := d.store.ListArchivedTaskIDs()
	if err != nil {
		return nil, err
	}
	ids := append(append([]string{}, active...), archived...)
	sort.Strings(ids)
	rep.TasksScanned = len(ids)

	exists := make(map[string]bool, len(ids))
	for _, id := range ids {
		exists[id] = true
	}

	needsDerivedRebuild := false
	for _, id := range ids {
		d.checkLog(rep, id, fix)
		if d.checkSnapshot(ctx, rep, id, fix) {
			needsDerivedRebuild = true
		}
		d.checkGraph(rep, id, exists)
	}

	d.checkArtifacts(rep)
	if d.checkLifecycle(rep, exists, archived) {
		needsDerivedRebuild = true
	}
	if d.checkAliases(rep, exists) {
		needsDerivedRebuild = true
	}

	if fix && needsDerivedRebuild {
		if _, err := d.reb.RebuildAll(ctx); err != nil {
			return nil, err
		}
		rep.Fixed = append(rep.Fixed, "rebuilt lifecycle and short-id indexes")
	}
	return rep, nil
}

// checkLog scans one event log for corrupt lines, malformed IDs, and unknown
// event types.
func (d *Doctor) checkLog(rep *Report, taskID string, fix bool) {
	path := d.store.EventLogPath(taskID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = d.store.ArchivedEventLogPath(taskID)
	}

	corrupt := 0
	_ = store.ScanJSONL(path, func(line store.JSONLLine) bool {
		rep.EventsScanned++
		if line.Err != nil {
			corrupt++
			rep.Issues = append(rep.Issues, Issue{
				Check:   CheckCorruptLine,
				TaskID:  taskID,
				Path:    d.store.Rel(path),
				Detail:  fmt.Sprintf("line %d is not valid JSON", line.Number),
				Fixable: true,
			})
			return true
		}
		var ev types.Event
		if err := json.Unmarshal(line.Raw, &ev); err != nil {
			return true
		}
		if !idgen.Valid(ev.ID, idgen.PrefixEvent) {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckMalformedID,
				TaskID: taskID,
				Path:   d.store.Rel(path),
				Detail: fmt.Sprintf("event %q on line %d has a malformed id", ev.ID, line.Number),
			})
		}
		if !ev.Type.IsKnown() {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckUnknownEvent,
				TaskID: taskID,
				Path:   d.store.Rel(path),
				Detail: fmt.Sprintf("event type %q is neither built-in nor %s-prefixed", ev.Type, types.ExtensionPrefix),
			})
		}
		return true
	})

	if corrupt > 0 && fix {
		if dropped, err := store.TruncateTrailingCorruption(path); err == nil && dropped > 0 {
			rep.Fixed = append(rep.Fixed,
				fmt.Sprintf("%s: dropped %d corrupt trailing line(s)", d.store.Rel(path), dropped))
		}
	}
}

// checkSnapshot compares the stored snapshot against a fresh replay. Returns
// true when a fix changed derived state.
func (d *Doctor) checkSnapshot(ctx context.Context, rep *Report, taskID string, fix bool) bool {
	replayed, err := d.reb.ReplaySnapshot(taskID)
	if err != nil || replayed == nil {
		return false
	}

	stored, err := readSnapshot(d.store, taskID)
	switch {
	case os.IsNotExist(err):
		rep.Issues = append(rep.Issues, Issue{
			Check:   CheckSnapshotMissing,
			TaskID:  taskID,
			Detail:  "event log exists but snapshot is missing",
			Fixable: true,
		})
	case err != nil:
		rep.Issues = append(rep.Issues, Issue{
			Check:   CheckSnapshotDrift,
			TaskID:  taskID,
			Detail:  fmt.Sprintf("snapshot unreadable: %v", err),
			Fixable: true,
		})
	case !snapshotsEqual(stored, replayed):
		rep.Issues = append(rep.Issues, Issue{
			Check:   CheckSnapshotDrift,
			TaskID:  taskID,
			Detail:  "snapshot does not match event-log replay",
			Fixable: true,
		})
	default:
		return false
	}

	if fix {
		if _, err := d.reb.RebuildTask(ctx, taskID); err == nil {
			rep.Fixed = append(rep.Fixed, fmt.Sprintf("%s: snapshot rebuilt from events", taskID))
			return true
		}
	}
	return false
}

// checkGraph inspects a snapshot's relationship edges and evidence roles.
func (d *Doctor) checkGraph(rep *Report, taskID string, exists map[string]bool) {
	snap, err := readSnapshot(d.store, taskID)
	if err != nil {
		return
	}

	seen := map[string]bool{}
	for _, rel := range snap.RelationshipsOut {
		key := rel.TargetID + "\x00" + rel.Type
		if seen[key] {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckDuplicateEdge,
				TaskID: taskID,
				Detail: fmt.Sprintf("duplicate %s edge to %s", rel.Type, rel.TargetID),
			})
		}
		seen[key] = true
		if rel.TargetID == taskID {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckSelfLink,
				TaskID: taskID,
				Detail: fmt.Sprintf("%s edge points at the task itself", rel.Type),
			})
		} else if !exists[rel.TargetID] {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckDanglingEdge,
				TaskID: taskID,
				Detail: fmt.Sprintf("%s edge targets %s, which has no event log", rel.Type, rel.TargetID),
			})
		}
	}

	vocab := d.cfg.RoleVocabulary()
	if len(vocab) == 0 {
		return
	}
	known := map[string]bool{}
	for _, r := range vocab {
		known[r] = true
	}
	for _, ev := range snap.EvidenceRefs {
		if ev.Role != "" && !known[ev.Role] {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckUnknownRole,
				TaskID: taskID,
				Detail: fmt.Sprintf("evidence ref %s carries unknown role %q", ev.SourceID, ev.Role),
			})
		}
	}
}

// checkArtifacts verifies every file-sourced artifact still has its payload.
func (d *Doctor) checkArtifacts(rep *Report) {
	arts, err := d.arts.List()
	if err != nil {
		return
	}
	for _, art := range arts {
		if !d.arts.PayloadExists(art) {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckMissingPayload,
				Path:   art.PayloadRef,
				Detail: fmt.Sprintf("artifact %s references a payload that is missing", art.ID),
			})
		}
	}
}

// checkLifecycle verifies the lifecycle index agrees with the task trees.
// Returns true when a rebuild is warranted.
func (d *Doctor) checkLifecycle(rep *Report, exists map[string]bool, archived []string) bool {
	archivedSet := map[string]bool{}
	for _, id := range archived {
		archivedSet[id] = true
	}

	drift := false
	state := map[string]string{} // task id -> last lifecycle verb
	_ = store.ScanJSONL(d.store.LifecyclePath(), func(line store.JSONLLine) bool {
		if line.Err != nil {
			drift = true
			return true
		}
		var ev types.Event
		if json.Unmarshal(line.Raw, &ev) != nil {
			return true
		}
		state[ev.TaskID] = string(ev.Type)
		return true
	})

	for id, verb := range state {
		if !exists[id] {
			rep.Issues = append(rep.Issues, Issue{
				Check:   CheckLifecycleDrift,
				TaskID:  id,
				Detail:  "lifecycle index names a task with no event log",
				Fixable: true,
			})
			drift = true
			continue
		}
		wantArchived := verb == string(types.EventTaskArchived)
		if wantArchived != archivedSet[id] {
			rep.Issues = append(rep.Issues, Issue{
				Check:   CheckLifecycleDrift,
				TaskID:  id,
				Detail:  fmt.Sprintf("lifecycle index says %s but the task tree disagrees", verb),
				Fixable: true,
			})
			drift = true
		}
	}
	for id := range exists {
		if _, ok := state[id]; !ok {
			rep.Issues = append(rep.Issues, Issue{
				Check:   CheckLifecycleDrift,
				TaskID:  id,
				Detail:  "task has an event log but no lifecycle entry",
				Fixable: true,
			})
			drift = true
		}
	}
	return drift
}

// checkAliases verifies ids.json maps only to tasks that exist.
func (d *Doctor) checkAliases(rep *Report, exists map[string]bool) bool {
	ix, err := d.short.Snapshot()
	if err != nil {
		return false
	}
	drift := false
	for alias, ulid := range ix.Map {
		if !exists[ulid] {
			rep.Issues = append(rep.Issues, Issue{
				Check:   CheckAliasDrift,
				TaskID:  ulid,
				Detail:  fmt.Sprintf("alias %s maps to a task with no event log", alias),
				Fixable: true,
			})
			drift = true
		}
		if !strings.HasPrefix(ulid, idgen.PrefixTask) {
			rep.Issues = append(rep.Issues, Issue{
				Check:  CheckMalformedID,
				TaskID: ulid,
				Detail: fmt.Sprintf("alias %s maps to a malformed task id", alias),
			})
		}
	}
	return drift
}
