package hooks

import (
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/latticehq/lattice/internal/types"
)

func statusEvent(from, to string) *types.Event {
	return &types.Event{
		ID:     "ev_1",
		Type:   types.EventStatusChanged,
		TaskID: "task_1",
		Actor:  "agent:claude",
		TS:     types.NewTimestamp(time.Now()),
		Data:   types.MustMarshalData(types.StatusChangedData{From: from, To: to}),
	}
}

func TestMatches(t *testing.T) {
	created := &types.Event{Type: types.EventTaskCreated}
	moved := statusEvent("in_progress", "review")

	tests := []struct {
		pattern string
		ev      *types.Event
		from    string
		to      string
		want    bool
	}{
		{"on_create", created, "", "", true},
		{"on_create", moved, "in_progress", "review", false},
		{"on_status_change", moved, "in_progress", "review", true},
		{"status_changed", moved, "in_progress", "review", true},
		{"* -> review", moved, "in_progress", "review", true},
		{"* -> done", moved, "in_progress", "review", false},
		{"in_progress -> *", moved, "in_progress", "review", true},
		{"backlog -> *", moved, "in_progress", "review", false},
		{"* -> *", created, "", "", false}, // transition patterns only match status_changed
		{"x_deploy", &types.Event{Type: "x_deploy"}, "", "", true},
	}
	for _, tt := range tests {
		if got := Matches(tt.pattern, tt.ev, tt.from, tt.to); got != tt.want {
			t.Errorf("Matches(%q, %s) = %v, want %v", tt.pattern, tt.ev.Type, got, tt.want)
		}
	}
}

func TestExpand(t *testing.T) {
	ev := statusEvent("in_progress", "review")
	got := Expand("notify.sh {task_id} {from} {to} {actor}", ev, "in_progress", "review")
	want := "notify.sh task_1 in_progress review agent:claude"
	if got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}

func TestFireSpawnsMatchingHooks(t *testing.T) {
	var mu sync.Mutex
	var spawned []string

	r := NewRunner("/tmp/.lattice", map[string]string{
		"* -> review":  "echo review {task_id}",
		"* -> done":    "echo done {task_id}",
		"on_create":    "echo created",
		"x_deploy":     "echo deploy",
		"on_status_change": "echo any-move",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.spawn = func(cmd *exec.Cmd) error {
		mu.Lock()
		defer mu.Unlock()
		// args are ["sh", "-c", expanded]
		spawned = append(spawned, cmd.Args[2])
		return nil
	}
	// spawn stub never starts a process; avoid Wait on a non-started cmd
	// by firing synchronously through the stubbed path only.

	r.Fire(statusEvent("in_progress", "review"))

	mu.Lock()
	defer mu.Unlock()
	if len(spawned) != 2 {
		t.Fatalf("spawned %d hooks %v, want 2", len(spawned), spawned)
	}
	joined := strings.Join(spawned, "|")
	if !strings.Contains(joined, "echo review task_1") || !strings.Contains(joined, "echo any-move") {
		t.Errorf("spawned = %v", spawned)
	}
}

func TestFireSpawnFailureDoesNotPropagate(t *testing.T) {
	r := NewRunner("/tmp/.lattice", map[string]string{"on_status_change": "doesnotmatter"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.spawn = func(cmd *exec.Cmd) error { return exec.ErrNotFound }

	// Must not panic or return anything.
	r.Fire(statusEvent("a", "b"))
}

func TestFireNoHooksIsCheap(t *testing.T) {
	r := NewRunner("/tmp/.lattice", nil, nil)
	r.Fire(statusEvent("a", "b"))
}
