// Package lockfile provides scoped advisory file locks for the state
// directory. Locks live under locks/ and mirror the resource paths they
// guard. Multi-path acquisition always locks in sorted order so that two
// writers touching the same pair of tasks cannot deadlock.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/latticehq/lattice/internal/types"
)

// DefaultTimeout bounds how long Acquire waits before LOCK_TIMEOUT.
const DefaultTimeout = 5 * time.Second

// StaleAge is how old an orphaned lock info file must be before it is broken.
const StaleAge = 10 * time.Minute

// Manager hands out lock scopes rooted at a locks/ directory.
type Manager struct {
	dir     string
	timeout time.Duration
}

// NewManager creates a manager for the given locks directory.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, timeout: DefaultTimeout}
}

// WithTimeout returns a copy of the manager using the given acquire timeout.
func (m *Manager) WithTimeout(d time.Duration) *Manager {
	return &Manager{dir: m.dir, timeout: d}
}

// Scope is a set of held locks, released together. Release is safe to call
// more than once and must run on every exit path.
type Scope struct {
	locks []*flock.Flock
	infos []string
}

// LockInfo is written beside each held lock for stale-lock diagnostics.
type LockInfo struct {
	PID        int       `json:"pid"`
	Resource   string    `json:"resource"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Acquire locks every path in resources, sorted lexicographically. On
// timeout it releases anything already held and returns LOCK_TIMEOUT.
func (m *Manager) Acquire(ctx context.Context, resources ...string) (*Scope, error) {
	if len(resources) == 0 {
		return &Scope{}, nil
	}
	if err := os.MkdirAll(m.dir, 0750); err != nil {
		return nil, fmt.Errorf("creating locks dir: %w", err)
	}

	paths := append([]string(nil), resources...)
	sort.Strings(paths)

	scope := &Scope{}
	for _, res := range paths {
		lockPath := m.lockPath(res)
		m.breakIfStale(lockPath)

		if err := m.lockOne(ctx, scope, lockPath); err != nil {
			scope.Release()
			return nil, err
		}
		if err := writeInfo(lockPath, res); err == nil {
			scope.infos = append(scope.infos, infoPath(lockPath))
		}
	}
	return scope, nil
}

func (m *Manager) lockOne(ctx context.Context, scope *Scope, lockPath string) error {
	fl := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	try := func() error {
		ok, err := fl.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errors.New("lock held")
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(25*time.Millisecond), ctx)
	if err := backoff.Retry(try, policy); err != nil {
		if ctx.Err() != nil {
			return types.Errorf(types.CodeLockTimeout,
				"timed out after %s waiting for lock on %s", m.timeout, filepath.Base(lockPath))
		}
		return fmt.Errorf("acquiring lock %s: %w", lockPath, err)
	}
	scope.locks = append(scope.locks, fl)
	return nil
}

// Release unlocks everything in reverse acquisition order.
func (s *Scope) Release() {
	for i := len(s.locks) - 1; i >= 0; i-- {
		_ = s.locks[i].Unlock()
	}
	s.locks = nil
	for _, p := range s.infos {
		_ = os.Remove(p)
	}
	s.infos = nil
}

// lockPath flattens a resource path into a single lock file name under the
// locks directory: "tasks/task_x.json" -> "locks/tasks__task_x.json.lock".
func (m *Manager) lockPath(resource string) string {
	flat := strings.ReplaceAll(filepath.ToSlash(resource), "/", "__")
	return filepath.Join(m.dir, flat+".lock")
}

func infoPath(lockPath string) string { return lockPath + ".info" }

func writeInfo(lockPath, resource string) error {
	info := LockInfo{PID: os.Getpid(), Resource: resource, AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(infoPath(lockPath), data, 0600)
}

// breakIfStale removes lock debris left by a crashed process: the owning PID
// is gone and the info file is older than StaleAge. The flock itself dies
// with its file descriptor, so this only clears cosmetic leftovers and lock
// files on filesystems where the advisory lock outlived a hard kill.
func (m *Manager) breakIfStale(lockPath string) {
	data, err := os.ReadFile(infoPath(lockPath))
	if err != nil {
		return
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		_ = os.Remove(infoPath(lockPath))
		return
	}
	if isProcessRunning(info.PID) {
		return
	}
	if time.Since(info.AcquiredAt) < StaleAge {
		return
	}
	_ = os.Remove(infoPath(lockPath))
	_ = os.Remove(lockPath)
}
