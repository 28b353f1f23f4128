// Package clock provides the event timestamp source. Every event timestamp
// passes through a Clock so tests can inject fixed times and so the write
// path can enforce per-log monotonicity.
package clock

import (
	"sync"
	"time"

	"github.com/latticehq/lattice/internal/types"
)

// Clock yields millisecond-precision UTC timestamps.
type Clock interface {
	Now() types.Timestamp
}

// System is the wall-clock implementation.
type System struct{}

func (System) Now() types.Timestamp { return types.NewTimestamp(time.Now()) }

// Fixed is a test clock that returns a settable instant.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a clock pinned at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() types.Timestamp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.NewTimestamp(f.t)
}

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// Set pins the fixed clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}

// Monotonic wraps another clock and guarantees strictly increasing output:
// if the inner clock returns a timestamp at or before the last one handed
// out, the result is bumped by one millisecond. This keeps append order equal
// to timestamp order within a single event log.
type Monotonic struct {
	mu    sync.Mutex
	inner Clock
	last  time.Time
}

// NewMonotonic wraps inner with the bump discipline.
func NewMonotonic(inner Clock) *Monotonic {
	return &Monotonic{inner: inner}
}

func (m *Monotonic) Now() types.Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.inner.Now().Time
	if !now.After(m.last) {
		now = m.last.Add(time.Millisecond)
	}
	m.last = now
	return types.NewTimestamp(now)
}

// Observe records an externally seen timestamp (e.g. the last event already
// in a log) so subsequent Now calls stay ahead of it.
func (m *Monotonic) Observe(ts types.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts.Time.After(m.last) {
		m.last = ts.Time
	}
}
