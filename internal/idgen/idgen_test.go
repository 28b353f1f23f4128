package idgen

import (
	"sort"
	"testing"
	"time"
)

func TestPrefixes(t *testing.T) {
	g := New()

	if id := g.TaskID(); !Valid(id, PrefixTask) {
		t.Errorf("TaskID() = %q, not a valid task id", id)
	}
	if id := g.EventID(); !Valid(id, PrefixEvent) {
		t.Errorf("EventID() = %q, not a valid event id", id)
	}
	if id := g.ArtifactID(); !Valid(id, PrefixArtifact) {
		t.Errorf("ArtifactID() = %q, not a valid artifact id", id)
	}
}

func TestLength(t *testing.T) {
	g := New()
	id := g.TaskID()
	// task_ prefix + 26 Crockford base32 chars
	if len(id) != len(PrefixTask)+26 {
		t.Errorf("len(%q) = %d, want %d", id, len(id), len(PrefixTask)+26)
	}
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewWithClock(func() time.Time { return fixed })

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = g.EventID()
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not strictly increasing at %d: %q", i, ids[i])
		}
	}

	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q within same millisecond", id)
		}
		seen[id] = true
	}
}

func TestTimeOrdering(t *testing.T) {
	g := New()
	a := g.TaskID()
	time.Sleep(2 * time.Millisecond)
	b := g.TaskID()
	if a >= b {
		t.Errorf("later id should sort after earlier: %q >= %q", a, b)
	}
}

func TestTimeExtraction(t *testing.T) {
	fixed := time.Date(2026, 5, 20, 12, 30, 0, 0, time.UTC)
	g := NewWithClock(func() time.Time { return fixed })

	ts, err := Time(g.TaskID())
	if err != nil {
		t.Fatalf("Time() failed: %v", err)
	}
	if !ts.Equal(fixed) {
		t.Errorf("embedded time = %v, want %v", ts, fixed)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	bad := []string{"", "task_", "task_notaulid", "01ARZ3NDEKTSV4RRFFQ69G5FAV", "ev_01ARZ3NDEKTSV4RRFFQ69G5FA"}
	for _, id := range bad {
		if ValidAny(id) {
			t.Errorf("ValidAny(%q) = true, want false", id)
		}
	}
}
