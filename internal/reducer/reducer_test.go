package reducer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/types"
)

var (
	t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func ev(id string, evType types.EventType, ts time.Time, data any) *types.Event {
	return &types.Event{
		ID:     id,
		Type:   evType,
		TaskID: "task_1",
		Actor:  "human:alice",
		TS:     types.NewTimestamp(ts),
		Data:   types.MustMarshalData(data),
	}
}

func created(ts time.Time) *types.Event {
	return ev("ev_created", types.EventTaskCreated, ts, types.TaskCreatedData{
		Title:    "A",
		Status:   configfile.StatusBacklog,
		Priority: types.PriorityHigh,
		Urgency:  types.UrgencyNormal,
	})
}

func TestTaskCreated(t *testing.T) {
	r := New(configfile.Default())

	snap, err := r.Apply(nil, created(t0))
	require.NoError(t, err)

	assert.Equal(t, "task_1", snap.ID)
	assert.Equal(t, "A", snap.Title)
	assert.Equal(t, configfile.StatusBacklog, snap.Status)
	assert.Equal(t, types.PriorityHigh, snap.Priority)
	assert.Equal(t, 0, snap.CommentCount)
	assert.True(t, snap.CreatedAt.Time.Equal(t0))
	assert.True(t, snap.UpdatedAt.Time.Equal(t0))
	assert.Nil(t, snap.DoneAt)
}

func TestTaskCreatedOntoExistingSnapshotFails(t *testing.T) {
	r := New(configfile.Default())
	snap, err := r.Apply(nil, created(t0))
	require.NoError(t, err)

	_, err = r.Apply(snap, created(t0.Add(time.Second)))
	assert.True(t, types.IsCode(err, types.CodeIntegrityError))
}

func TestApplyIsPure(t *testing.T) {
	r := New(configfile.Default())
	snap, err := r.Apply(nil, created(t0))
	require.NoError(t, err)

	before := snap.Clone()
	_, err = r.Apply(snap, ev("ev_2", types.EventCommentAdded, t0.Add(time.Second),
		types.CommentData{CommentID: "c1", Body: "hi", Role: "review"}))
	require.NoError(t, err)

	assert.Equal(t, before, snap, "Apply must not mutate its input snapshot")
}

func TestStatusChangedDoneAtAndReopen(t *testing.T) {
	cfg := configfile.Default()
	r := New(cfg)
	snap, err := r.Apply(nil, created(t0))
	require.NoError(t, err)

	move := func(from, to string, ts time.Time) {
		t.Helper()
		snap, err = r.Apply(snap, ev("ev_"+to+ts.String(), types.EventStatusChanged, ts,
			types.StatusChangedData{From: from, To: to}))
		require.NoError(t, err)
	}

	move(configfile.StatusBacklog, configfile.StatusInProgress, t0.Add(time.Second))
	assert.Nil(t, snap.DoneAt)
	assert.Equal(t, 0, snap.ReopenedCount)

	doneTS := t0.Add(2 * time.Second)
	move(configfile.StatusInProgress, configfile.StatusDone, doneTS)
	require.NotNil(t, snap.DoneAt)
	assert.True(t, snap.DoneAt.Time.Equal(doneTS), "done_at must equal the event ts")

	// Reopen: later stage -> earlier stage clears done_at and bumps the count.
	move(configfile.StatusDone, configfile.StatusInProgress, t0.Add(3*time.Second))
	assert.Nil(t, snap.DoneAt)
	assert.Equal(t, 1, snap.ReopenedCount)

	// Forward moves never count as reopens.
	move(configfile.StatusInProgress, configfile.StatusReview, t0.Add(4*time.Second))
	assert.Equal(t, 1, snap.ReopenedCount)
}

func TestAssignmentChanged(t *testing.T) {
	r := New(configfile.Default())
	snap, _ := r.Apply(nil, created(t0))

	who := "agent:claude"
	snap, err := r.Apply(snap, ev("ev_a", types.EventAssignmentChanged, t0.Add(time.Second),
		types.AssignmentChangedData{AssignedTo: &who}))
	require.NoError(t, err)
	require.NotNil(t, snap.AssignedTo)
	assert.Equal(t, "agent:claude", *snap.AssignedTo)

	snap, err = r.Apply(snap, ev("ev_b", types.EventAssignmentChanged, t0.Add(2*time.Second),
		types.AssignmentChangedData{AssignedTo: nil}))
	require.NoError(t, err)
	assert.Nil(t, snap.AssignedTo)
}

func TestFieldUpdated(t *testing.T) {
	r := New(configfile.Default())
	snap, _ := r.Apply(nil, created(t0))

	t.Run("title", func(t *testing.T) {
		next, err := r.Apply(snap, ev("ev_f1", types.EventFieldUpdated, t0.Add(time.Second),
			types.FieldUpdatedData{Path: []string{"title"}, Value: "B", PreviousValue: "A"}))
		require.NoError(t, err)
		assert.Equal(t, "B", next.Title)
	})

	t.Run("custom field set and delete", func(t *testing.T) {
		next, err := r.Apply(snap, ev("ev_f2", types.EventFieldUpdated, t0.Add(time.Second),
			types.FieldUpdatedData{Path: []string{"custom_fields", "estimate"}, Value: "3d"}))
		require.NoError(t, err)
		assert.Equal(t, "3d", next.CustomFields["estimate"])

		next, err = r.Apply(next, ev("ev_f3", types.EventFieldUpdated, t0.Add(2*time.Second),
			types.FieldUpdatedData{Path: []string{"custom_fields", "estimate"}, Value: nil, PreviousValue: "3d"}))
		require.NoError(t, err)
		assert.Nil(t, next.CustomFields)
	})

	t.Run("protected field rejected", func(t *testing.T) {
		_, err := r.Apply(snap, ev("ev_f4", types.EventFieldUpdated, t0.Add(time.Second),
			types.FieldUpdatedData{Path: []string{"status"}, Value: "done"}))
		assert.True(t, types.IsCode(err, types.CodeProtectedField))
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := r.Apply(snap, ev("ev_f5", types.EventFieldUpdated, t0.Add(time.Second),
			types.FieldUpdatedData{Path: []string{"flavor"}, Value: "vanilla"}))
		assert.True(t, types.IsCode(err, types.CodeInvalidField))
	})

	t.Run("tags normalized", func(t *testing.T) {
		next, err := r.Apply(snap, ev("ev_f6", types.EventFieldUpdated, t0.Add(time.Second),
			types.FieldUpdatedData{Path: []string{"tags"}, Value: []any{"b", "a", "b"}}))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, next.Tags)
	})
}

func TestCommentLifecycleAndEvidence(t *testing.T) {
	r := New(configfile.Default())
	snap, _ := r.Apply(nil, created(t0))

	snap, err := r.Apply(snap, ev("ev_c1", types.EventCommentAdded, t0.Add(time.Second),
		types.CommentData{CommentID: "ev_c1", Body: "lgtm", Role: "review"}))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CommentCount)
	assert.True(t, snap.HasEvidence(types.EvidenceRef{
		SourceType: types.EvidenceComment, SourceID: "ev_c1", Role: "review"}))

	// Edit that drops the role removes the evidence ref.
	snap, err = r.Apply(snap, ev("ev_c2", types.EventCommentEdited, t0.Add(2*time.Second),
		types.CommentData{CommentID: "ev_c1", Body: "lgtm!"}))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CommentCount, "edit does not change comment_count")
	assert.Empty(t, snap.EvidenceRefs)

	// Re-add the role through another edit, then delete the comment.
	snap, err = r.Apply(snap, ev("ev_c3", types.EventCommentEdited, t0.Add(3*time.Second),
		types.CommentData{CommentID: "ev_c1", Body: "lgtm!", Role: "review"}))
	require.NoError(t, err)
	require.Len(t, snap.EvidenceRefs, 1)

	snap, err = r.Apply(snap, ev("ev_c4", types.EventCommentDeleted, t0.Add(4*time.Second),
		types.CommentDeletedData{CommentID: "ev_c1"}))
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CommentCount)
	assert.Empty(t, snap.EvidenceRefs)
}

func TestArtifactAttachedDeduplicates(t *testing.T) {
	r := New(configfile.Default())
	snap, _ := r.Apply(nil, created(t0))

	attach := ev("ev_a1", types.EventArtifactAttached, t0.Add(time.Second),
		types.ArtifactAttachedData{ArtifactID: "art_1", Role: "review"})
	snap, err := r.Apply(snap, attach)
	require.NoError(t, err)

	again := ev("ev_a2", types.EventArtifactAttached, t0.Add(2*time.Second),
		types.ArtifactAttachedData{ArtifactID: "art_1", Role: "review"})
	snap, err = r.Apply(snap, again)
	require.NoError(t, err)

	assert.Len(t, snap.EvidenceRefs, 1, "evidence_refs is a set")
}

func TestRelationships(t *testing.T) {
	r := New(configfile.Default())
	snap, _ := r.Apply(nil, created(t0))

	snap, err := r.Apply(snap, ev("ev_r1", types.EventRelationshipAdded, t0.Add(time.Second),
		types.RelationshipData{TargetID: "task_2", Type: types.RelBlocks}))
	require.NoError(t, err)
	require.Len(t, snap.RelationshipsOut, 1)

	// Replaying the same edge is a no-op, not an error.
	snap, err = r.Apply(snap, ev("ev_r2", types.EventRelationshipAdded, t0.Add(2*time.Second),
		types.RelationshipData{TargetID: "task_2", Type: types.RelBlocks}))
	require.NoError(t, err)
	assert.Len(t, snap.RelationshipsOut, 1)

	// Self-links are rejected even on replay.
	_, err = r.Apply(snap, ev("ev_r3", types.EventRelationshipAdded, t0.Add(3*time.Second),
		types.RelationshipData{TargetID: "task_1", Type: types.RelBlocks}))
	assert.True(t, types.IsCode(err, types.CodeSelfLink))

	snap, err = r.Apply(snap, ev("ev_r4", types.EventRelationshipRemoved, t0.Add(4*time.Second),
		types.RelationshipData{TargetID: "task_2", Type: types.RelBlocks}))
	require.NoError(t, err)
	assert.Empty(t, snap.RelationshipsOut)
}

func TestArchiveFlag(t *testing.T) {
	r := New(configfile.Default())
	snap, _ := r.Apply(nil, created(t0))

	snap, err := r.Apply(snap, ev("ev_ar", types.EventTaskArchived, t0.Add(time.Second), nil))
	require.NoError(t, err)
	assert.True(t, snap.Archived)

	snap, err = r.Apply(snap, ev("ev_un", types.EventTaskUnarchived, t0.Add(2*time.Second), nil))
	require.NoError(t, err)
	assert.False(t, snap.Archived)
}

func TestUnknownExtensionTypeBumpsUpdatedAtOnly(t *testing.T) {
	r := New(configfile.Default())
	snap, _ := r.Apply(nil, created(t0))

	later := t0.Add(time.Minute)
	next, err := r.Apply(snap, ev("ev_x", types.EventType("x_deploy"), later,
		map[string]string{"env": "prod"}))
	require.NoError(t, err)

	assert.True(t, next.UpdatedAt.Time.Equal(later))
	next.UpdatedAt = snap.UpdatedAt
	assert.Equal(t, snap, next, "x_ events change nothing but updated_at")
}

func TestReplayDeterminism(t *testing.T) {
	r := New(configfile.Default())
	who := "agent:claude"

	events := []*types.Event{
		created(t0),
		ev("ev_1", types.EventCommentAdded, t0.Add(1*time.Second),
			types.CommentData{CommentID: "ev_1", Body: "ok", Role: "review"}),
		ev("ev_2", types.EventAssignmentChanged, t0.Add(2*time.Second),
			types.AssignmentChangedData{AssignedTo: &who}),
		ev("ev_3", types.EventStatusChanged, t0.Add(3*time.Second),
			types.StatusChangedData{From: "backlog", To: "in_progress"}),
		ev("ev_4", types.EventStatusChanged, t0.Add(4*time.Second),
			types.StatusChangedData{From: "in_progress", To: "review"}),
		ev("ev_5", types.EventStatusChanged, t0.Add(5*time.Second),
			types.StatusChangedData{From: "review", To: "done"}),
	}

	// Incremental fold.
	var incremental *types.Task
	for _, e := range events {
		next, err := r.Apply(incremental, e)
		require.NoError(t, err)
		incremental = next
	}

	// Full replay.
	replayed, err := r.Replay(events)
	require.NoError(t, err)

	assert.Equal(t, incremental, replayed)
	assert.Equal(t, configfile.StatusDone, replayed.Status)
	require.NotNil(t, replayed.DoneAt)
	assert.True(t, replayed.UpdatedAt.Time.Equal(t0.Add(5*time.Second)))
}
