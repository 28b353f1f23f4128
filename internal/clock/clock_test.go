package clock

import (
	"testing"
	"time"

	"github.com/latticehq/lattice/internal/types"
)

func TestFixedAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixed(start)

	if got := c.Now(); !got.Time.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(250 * time.Millisecond)
	if got := c.Now(); !got.Time.Equal(start.Add(250 * time.Millisecond)) {
		t.Errorf("Now() after Advance = %v", got)
	}
}

func TestMonotonicBumpsStalledClock(t *testing.T) {
	fixed := NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMonotonic(fixed)

	a := m.Now()
	b := m.Now()
	c := m.Now()

	if !b.Time.After(a.Time) || !c.Time.After(b.Time) {
		t.Errorf("timestamps not strictly increasing: %v %v %v", a, b, c)
	}
	if b.Time.Sub(a.Time) != time.Millisecond {
		t.Errorf("bump = %v, want 1ms", b.Time.Sub(a.Time))
	}
}

func TestMonotonicObserve(t *testing.T) {
	fixed := NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMonotonic(fixed)

	seen := types.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC))
	m.Observe(seen)

	if got := m.Now(); !got.Time.After(seen.Time) {
		t.Errorf("Now() = %v, want after observed %v", got, seen)
	}
}

func TestMonotonicPassesThroughAdvancingClock(t *testing.T) {
	fixed := NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMonotonic(fixed)

	a := m.Now()
	fixed.Advance(10 * time.Millisecond)
	b := m.Now()

	if b.Time.Sub(a.Time) != 10*time.Millisecond {
		t.Errorf("advancing clock should pass through, got delta %v", b.Time.Sub(a.Time))
	}
}
