// Package store owns raw file I/O for the state directory: path layout,
// project-root discovery, atomic snapshot writes, and append-only JSONL.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/latticehq/lattice/internal/types"
)

// StateDirName is the directory holding all tracker state, sibling to the
// version-control directory of a project.
const StateDirName = ".lattice"

// EnvRoot overrides root discovery when set.
const EnvRoot = "LATTICE_ROOT"

// Store resolves paths inside one state directory.
type Store struct {
	root string // absolute path of the .lattice directory
}

// New wraps an existing state directory path.
func New(root string) *Store {
	return &Store{root: root}
}

// Init creates the state directory tree under parentDir and returns a Store
// for it.
func Init(parentDir string) (*Store, error) {
	root := filepath.Join(parentDir, StateDirName)
	for _, dir := range []string{
		root,
		filepath.Join(root, "tasks"),
		filepath.Join(root, "events"),
		filepath.Join(root, "artifacts", "meta"),
		filepath.Join(root, "artifacts", "payload"),
		filepath.Join(root, "notes"),
		filepath.Join(root, "plans"),
		filepath.Join(root, "archive", "tasks"),
		filepath.Join(root, "archive", "events"),
		filepath.Join(root, "archive", "notes"),
		filepath.Join(root, "archive", "plans"),
		filepath.Join(root, "locks"),
	} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Discover finds the state directory by walking upward from startDir, or
// honors the LATTICE_ROOT environment override. Returns NOT_INITIALIZED when
// no state directory exists.
func Discover(startDir string) (*Store, error) {
	if env := os.Getenv(EnvRoot); env != "" {
		root := env
		if filepath.Base(root) != StateDirName {
			root = filepath.Join(root, StateDirName)
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return nil, types.Errorf(types.CodeNotInitialized, "%s=%s does not contain a %s directory", EnvRoot, env, StateDirName)
		}
		return &Store{root: root}, nil
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		candidate := filepath.Join(dir, StateDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return &Store{root: candidate}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, types.Errorf(types.CodeNotInitialized,
				"no %s directory found walking up from %s (run `lattice init`)", StateDirName, startDir)
		}
		dir = parent
	}
}

// Root returns the absolute state directory path.
func (s *Store) Root() string { return s.root }

// TaskPath is tasks/<id>.json for active tasks.
func (s *Store) TaskPath(id string) string {
	return filepath.Join(s.root, "tasks", id+".json")
}

// EventLogPath is events/<id>.jsonl.
func (s *Store) EventLogPath(id string) string {
	return filepath.Join(s.root, "events", id+".jsonl")
}

// LifecyclePath is the global lifecycle index log.
func (s *Store) LifecyclePath() string {
	return filepath.Join(s.root, "events", "_lifecycle.jsonl")
}

// ArchivedTaskPath is archive/tasks/<id>.json.
func (s *Store) ArchivedTaskPath(id string) string {
	return filepath.Join(s.root, "archive", "tasks", id+".json")
}

// ArchivedEventLogPath is archive/events/<id>.jsonl.
func (s *Store) ArchivedEventLogPath(id string) string {
	return filepath.Join(s.root, "archive", "events", id+".jsonl")
}

// NotesPath is notes/<id>.md.
func (s *Store) NotesPath(id string) string {
	return filepath.Join(s.root, "notes", id+".md")
}

// PlanPath is plans/<id>.md.
func (s *Store) PlanPath(id string) string {
	return filepath.Join(s.root, "plans", id+".md")
}

// ArchivedNotesPath is archive/notes/<id>.md.
func (s *Store) ArchivedNotesPath(id string) string {
	return filepath.Join(s.root, "archive", "notes", id+".md")
}

// ArchivedPlanPath is archive/plans/<id>.md.
func (s *Store) ArchivedPlanPath(id string) string {
	return filepath.Join(s.root, "archive", "plans", id+".md")
}

// ArtifactMetaPath is artifacts/meta/<id>.json.
func (s *Store) ArtifactMetaPath(id string) string {
	return filepath.Join(s.root, "artifacts", "meta", id+".json")
}

// ArtifactPayloadDir is artifacts/payload/.
func (s *Store) ArtifactPayloadDir() string {
	return filepath.Join(s.root, "artifacts", "payload")
}

// IDsPath is the short-ID index file.
func (s *Store) IDsPath() string {
	return filepath.Join(s.root, "ids.json")
}

// ConfigPath is config.json.
func (s *Store) ConfigPath() string {
	return filepath.Join(s.root, "config.json")
}

// LocksDir is the lock subtree.
func (s *Store) LocksDir() string {
	return filepath.Join(s.root, "locks")
}

// Rel converts an absolute path under the state dir to a root-relative one,
// the form used in lock resource names and payload refs.
func (s *Store) Rel(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// ListTaskIDs returns the IDs of all active (non-archived) tasks that have a
// snapshot or an event log.
func (s *Store) ListTaskIDs() ([]string, error) {
	ids := map[string]bool{}
	addMatches := func(dir, ext string) error {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || filepath.Ext(name) != ext || name[0] == '_' {
				continue
			}
			ids[name[:len(name)-len(ext)]] = true
		}
		return nil
	}
	if err := addMatches(filepath.Join(s.root, "tasks"), ".json"); err != nil {
		return nil, err
	}
	if err := addMatches(filepath.Join(s.root, "events"), ".jsonl"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

// ListArchivedTaskIDs returns IDs of archived tasks.
func (s *Store) ListArchivedTaskIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "archive", "tasks"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}
