// Package idgen generates lexicographically sortable, time-ordered
// identifiers for tasks, events, and artifacts.
//
// IDs are 26-character Crockford-base32 ULIDs (48-bit millisecond prefix,
// 80-bit entropy) carrying a kind prefix, e.g. task_01ARZ3NDEKTSV4RRFFQ69G5FAV.
// Within a millisecond, successive IDs from one generator are strictly
// increasing.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID kind prefixes.
const (
	PrefixTask     = "task_"
	PrefixEvent    = "ev_"
	PrefixArtifact = "art_"
)

// Generator produces monotonic prefixed ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New returns a generator backed by crypto/rand with monotonic ordering
// within the same millisecond.
func New() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// NewWithClock returns a generator whose time source is injectable, for
// deterministic tests.
func NewWithClock(now func() time.Time) *Generator {
	g := New()
	g.now = now
	return g
}

func (g *Generator) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(g.now().UTC()), g.entropy)
	return prefix + id.String()
}

// TaskID returns a new task identifier.
func (g *Generator) TaskID() string { return g.next(PrefixTask) }

// EventID returns a new event identifier.
func (g *Generator) EventID() string { return g.next(PrefixEvent) }

// ArtifactID returns a new artifact identifier.
func (g *Generator) ArtifactID() string { return g.next(PrefixArtifact) }

// Valid reports whether id is a well-formed prefixed ULID of the given kind.
func Valid(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.TrimPrefix(id, prefix))
	return err == nil
}

// ValidAny reports whether id carries any known prefix and a parsable ULID.
func ValidAny(id string) bool {
	for _, p := range []string{PrefixTask, PrefixEvent, PrefixArtifact} {
		if Valid(id, p) {
			return true
		}
	}
	return false
}

// Time extracts the embedded millisecond timestamp from a prefixed ULID.
func Time(id string) (time.Time, error) {
	idx := strings.IndexByte(id, '_')
	if idx < 0 {
		return time.Time{}, fmt.Errorf("id %q has no kind prefix", id)
	}
	parsed, err := ulid.ParseStrict(id[idx+1:])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()).UTC(), nil
}
