// Package shortid maintains the bidirectional mapping between human-readable
// aliases like PROJ-42 and internal task ULIDs. The index is derived state:
// it can always be rebuilt by scanning task_created events in timestamp
// order.
package shortid

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Index is the persisted form of ids.json.
type Index struct {
	ProjectCode string            `json:"project_code"`
	NextSeq     int               `json:"next_seq"`
	Map         map[string]string `json:"map"`
}

// aliasRegex matches CODE-N aliases.
var aliasRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]*-[0-9]+$`)

// IsAlias reports whether s looks like a short-ID alias.
func IsAlias(s string) bool { return aliasRegex.MatchString(s) }

// Service allocates and resolves short IDs over a state directory.
type Service struct {
	store *store.Store
	locks *lockfile.Manager
}

// New creates a Service.
func New(s *store.Store, locks *lockfile.Manager) *Service {
	return &Service{store: s, locks: locks}
}

// LockResource is the lock name guarding ids.json.
const LockResource = "ids.json"

func (s *Service) load() (*Index, error) {
	var ix Index
	err := store.ReadJSON(s.store.IDsPath(), &ix)
	if os.IsNotExist(err) {
		return &Index{Map: map[string]string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if ix.Map == nil {
		ix.Map = map[string]string{}
	}
	return &ix, nil
}

func (s *Service) save(ix *Index) error {
	return store.WriteJSONAtomic(s.store.IDsPath(), ix)
}

// Allocate assigns the next sequential alias under projectCode to ulid and
// persists the index atomically. Allocation is serialized by the ids.json
// lock. An empty project code disables short IDs.
func (s *Service) Allocate(ctx context.Context, projectCode, ulid string) (string, error) {
	if projectCode == "" {
		return "", nil
	}

	scope, err := s.locks.Acquire(ctx, LockResource)
	if err != nil {
		return "", err
	}
	defer scope.Release()

	ix, err := s.load()
	if err != nil {
		return "", err
	}
	if ix.ProjectCode == "" {
		ix.ProjectCode = projectCode
	}

	// Idempotency: a retried create reuses the existing alias.
	for alias, existing := range ix.Map {
		if existing == ulid {
			return alias, nil
		}
	}

	ix.NextSeq++
	alias := fmt.Sprintf("%s-%d", projectCode, ix.NextSeq)
	ix.Map[alias] = ulid
	if err := s.save(ix); err != nil {
		return "", err
	}
	return alias, nil
}

// Resolve maps an alias or a raw task ULID to the task ULID. Unknown aliases
// are NOT_FOUND.
func (s *Service) Resolve(aliasOrID string) (string, error) {
	if strings.HasPrefix(aliasOrID, "task_") {
		return aliasOrID, nil
	}
	ix, err := s.load()
	if err != nil {
		return "", err
	}
	if ulid, ok := ix.Map[strings.ToUpper(aliasOrID)]; ok {
		return ulid, nil
	}
	return "", types.Errorf(types.CodeNotFound, "no task with id %q", aliasOrID)
}

// AliasFor returns the alias bound to a task ULID, if any.
func (s *Service) AliasFor(ulid string) (string, bool, error) {
	ix, err := s.load()
	if err != nil {
		return "", false, err
	}
	for alias, existing := range ix.Map {
		if existing == ulid {
			return alias, true, nil
		}
	}
	return "", false, nil
}

// Rebuild regenerates ids.json from task ULIDs in creation (timestamp)
// order, assigning sequential aliases under projectCode. Deterministic for a
// stable input order.
func (s *Service) Rebuild(ctx context.Context, projectCode string, ulidsInOrder []string) (*Index, error) {
	scope, err := s.locks.Acquire(ctx, LockResource)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	ix := &Index{ProjectCode: projectCode, Map: map[string]string{}}
	if projectCode != "" {
		for _, ulid := range ulidsInOrder {
			ix.NextSeq++
			ix.Map[fmt.Sprintf("%s-%d", projectCode, ix.NextSeq)] = ulid
		}
	}
	if err := s.save(ix); err != nil {
		return nil, err
	}
	return ix, nil
}

// Snapshot returns a copy of the current index for inspection.
func (s *Service) Snapshot() (*Index, error) {
	return s.load()
}
