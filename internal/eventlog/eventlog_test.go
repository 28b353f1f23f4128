package eventlog

import (
	"os"
	"testing"
	"time"

	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

func newTestLog(t *testing.T) (*Log, *store.Store) {
	t.Helper()
	s, err := store.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(s), s
}

func testEvent(id string, evType types.EventType, ts time.Time) *types.Event {
	return &types.Event{
		ID:     id,
		Type:   evType,
		TaskID: "task_01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Actor:  "human:alice",
		TS:     types.NewTimestamp(ts),
		Data:   types.MustMarshalData(types.CommentData{CommentID: "c1", Body: "hi"}),
	}
}

func TestAppendAndRead(t *testing.T) {
	log, _ := newTestLog(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"ev_1", "ev_2", "ev_3"} {
		ev := testEvent(id, types.EventCommentAdded, base.Add(time.Duration(i)*time.Millisecond))
		appended, err := log.Append(ev)
		if err != nil {
			t.Fatalf("Append(%s) failed: %v", id, err)
		}
		if !appended {
			t.Errorf("Append(%s) = false, want true", id)
		}
	}

	events, err := log.Read("task_01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, want := range []string{"ev_1", "ev_2", "ev_3"} {
		if events[i].ID != want {
			t.Errorf("events[%d].ID = %s, want %s (append order)", i, events[i].ID, want)
		}
	}
}

func TestIdempotentAppend(t *testing.T) {
	log, _ := newTestLog(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ev := testEvent("ev_1", types.EventCommentAdded, ts)
	if _, err := log.Append(ev); err != nil {
		t.Fatal(err)
	}

	t.Run("same payload is success without second append", func(t *testing.T) {
		retry := testEvent("ev_1", types.EventCommentAdded, ts.Add(5*time.Second))
		appended, err := log.Append(retry)
		if err != nil {
			t.Fatalf("retry failed: %v", err)
		}
		if appended {
			t.Error("retry should not append a second event")
		}

		events, _ := log.Read(ev.TaskID)
		if len(events) != 1 {
			t.Errorf("log has %d events, want 1", len(events))
		}
	})

	t.Run("different payload conflicts", func(t *testing.T) {
		conflicting := testEvent("ev_1", types.EventCommentAdded, ts)
		conflicting.Data = types.MustMarshalData(types.CommentData{CommentID: "c1", Body: "different"})
		_, err := log.Append(conflicting)
		if !types.IsCode(err, types.CodeConflict) {
			t.Errorf("got %v, want CONFLICT", err)
		}

		events, _ := log.Read(ev.TaskID)
		if len(events) != 1 {
			t.Errorf("conflict must not append; log has %d events", len(events))
		}
	})
}

func TestAppendRejectsInvalid(t *testing.T) {
	log, _ := newTestLog(t)
	ev := testEvent("ev_1", types.EventType("deploy"), time.Now())
	if _, err := log.Append(ev); !types.IsCode(err, types.CodeInvalidInput) {
		t.Errorf("got %v, want INVALID_INPUT for unprefixed custom type", err)
	}
}

func TestLifecycleIndex(t *testing.T) {
	log, _ := newTestLog(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	created := testEvent("ev_1", types.EventTaskCreated, ts)
	created.Data = types.MustMarshalData(types.TaskCreatedData{Title: "A", Status: "backlog"})
	if _, err := log.Append(created); err != nil {
		t.Fatal(err)
	}
	if err := log.AppendLifecycle(created); err != nil {
		t.Fatal(err)
	}

	comment := testEvent("ev_2", types.EventCommentAdded, ts.Add(time.Millisecond))
	if _, err := log.Append(comment); err != nil {
		t.Fatal(err)
	}
	// Non-lifecycle events are silently skipped.
	if err := log.AppendLifecycle(comment); err != nil {
		t.Fatal(err)
	}

	lifecycle, err := log.ReadLifecycle()
	if err != nil {
		t.Fatalf("ReadLifecycle failed: %v", err)
	}
	if len(lifecycle) != 1 || lifecycle[0].ID != "ev_1" {
		t.Errorf("lifecycle = %v, want only the task_created event", lifecycle)
	}
}

func TestReadToleratesCorruptTail(t *testing.T) {
	log, s := newTestLog(t)
	ev := testEvent("ev_1", types.EventCommentAdded, time.Now())
	if _, err := log.Append(ev); err != nil {
		t.Fatal(err)
	}

	// Simulate a torn append.
	f, err := os.OpenFile(s.EventLogPath(ev.TaskID), os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"id":"ev_2","ty`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err := log.Read(ev.TaskID)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1 (corrupt tail skipped)", len(events))
	}
}

func TestLastTimestamp(t *testing.T) {
	log, _ := newTestLog(t)

	zero, err := log.LastTimestamp("task_missing")
	if err != nil || !zero.IsZero() {
		t.Errorf("empty log LastTimestamp = %v, %v", zero, err)
	}

	ts := time.Date(2026, 1, 1, 0, 0, 7, 0, time.UTC)
	ev := testEvent("ev_1", types.EventCommentAdded, ts)
	if _, err := log.Append(ev); err != nil {
		t.Fatal(err)
	}

	last, err := log.LastTimestamp(ev.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if !last.Time.Equal(ts) {
		t.Errorf("LastTimestamp = %v, want %v", last, ts)
	}
}
