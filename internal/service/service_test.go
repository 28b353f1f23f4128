package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/clock"
	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/integrity"
	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

const (
	actorA = "agent:claude"
	actorB = "agent:gpt"
	human  = "human:alice"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := store.Init(t.TempDir())
	require.NoError(t, err)

	cfg := configfile.Default()
	cfg.ProjectCode = "LAT"
	require.NoError(t, cfg.Save(s))

	svc, err := Open(s, WithClock(clock.NewFixed(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	return svc
}

func meta(actor string) Meta { return Meta{Actor: actor} }

func mustCreate(t *testing.T, svc *Service, title string) *types.Task {
	t.Helper()
	task, err := svc.Create(context.Background(), CreateRequest{Title: title}, meta(actorA))
	require.NoError(t, err)
	return task
}

func TestCreateDefaultsAndAlias(t *testing.T) {
	svc := newService(t)
	task := mustCreate(t, svc, "ship the thing")

	assert.Equal(t, configfile.StatusBacklog, task.Status)
	assert.Equal(t, types.PriorityMedium, task.Priority)
	assert.Equal(t, "LAT-1", task.ShortID)
	assert.Nil(t, task.AssignedTo)
	assert.False(t, task.CreatedAt.IsZero())

	// Readable by ULID and by alias, case-insensitively.
	byID, err := svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, byID.ID)
	byAlias, err := svc.Get("lat-1")
	require.NoError(t, err)
	assert.Equal(t, task.ID, byAlias.ID)

	second := mustCreate(t, svc, "another")
	assert.Equal(t, "LAT-2", second.ShortID)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidInput), "empty title: %v", err)

	_, err = svc.Create(ctx, CreateRequest{Title: "x", Priority: "sev0"}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidInput), "bad priority: %v", err)

	_, err = svc.Create(ctx, CreateRequest{Title: "x", Status: "launched"}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidInput), "unknown status: %v", err)

	_, err = svc.Create(ctx, CreateRequest{Title: "x", Type: "saga"}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidInput), "unknown type: %v", err)
}

func TestCreateRetryIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateRequest{Title: "retry me"}, meta(actorA))
	require.NoError(t, err)

	// Same supplied ID, same fields: success, no duplicate event.
	again, err := svc.Create(ctx, CreateRequest{ID: first.ID, Title: "retry me"}, meta(actorA))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	events, err := svc.Events(first.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Same ID, different fields: conflict.
	_, err = svc.Create(ctx, CreateRequest{ID: first.ID, Title: "different"}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeConflict), "got %v", err)
}

func TestUpdateRecordsPreviousValue(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "old title")

	updated, err := svc.Update(ctx, task.ID, []Patch{
		{Path: "title", Value: "new title"},
		{Path: "custom_fields.estimate", Value: "3d"},
	}, meta(actorA))
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "3d", updated.CustomFields["estimate"])

	events, err := svc.Events(task.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	var data types.FieldUpdatedData
	require.NoError(t, events[1].DecodeData(&data))
	assert.Equal(t, []string{"title"}, data.Path)
	assert.Equal(t, "old title", data.PreviousValue)
}

func TestUpdateRejectsBadPatches(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "locked down")

	_, err := svc.Update(ctx, task.ID, []Patch{{Path: "status", Value: "done"}}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeProtectedField), "got %v", err)

	_, err = svc.Update(ctx, task.ID, []Patch{{Path: "sprint", Value: "7"}}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidField), "got %v", err)

	// A bad patch in a batch rejects the whole batch before any append.
	_, err = svc.Update(ctx, task.ID, []Patch{
		{Path: "title", Value: "should not land"},
		{Path: "id", Value: "task_evil"},
	}, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeProtectedField), "got %v", err)
	events, err := svc.Events(task.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "no partial batch")
}

func TestStatusTransitions(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "workflow")

	res, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.NoError(t, err)
	assert.Equal(t, configfile.StatusInProgress, res.Task.Status)

	// backlog -> done is not an edge.
	other := mustCreate(t, svc, "straight to done")
	_, err = svc.ChangeStatus(ctx, other.ID, configfile.StatusDone, false, "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidTransition), "got %v", err)

	// Unknown statuses are input errors, not transition errors.
	_, err = svc.ChangeStatus(ctx, task.ID, "launched", false, "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidInput), "got %v", err)

	// Force without a reason is rejected; with a reason it lands, marked forced.
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusDone, true, "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeForceRequiresReason), "got %v", err)

	res, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusDone, true, "hotfix already shipped", meta(actorA))
	require.NoError(t, err)
	assert.Equal(t, configfile.StatusDone, res.Task.Status)
	assert.NotNil(t, res.Task.DoneAt)

	events, err := svc.Events(task.ID)
	require.NoError(t, err)
	var data types.StatusChangedData
	require.NoError(t, events[len(events)-1].DecodeData(&data))
	assert.True(t, data.Forced)
	assert.Equal(t, "hotfix already shipped", data.Reason)
}

func TestCompletionPolicyGatesDone(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "needs evidence")

	_, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusReview, false, "", meta(actorA))
	require.NoError(t, err)

	// Unassigned, no review evidence: blocked with details.
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusDone, false, "", meta(actorA))
	require.True(t, types.IsCode(err, types.CodeCompletionBlocked), "got %v", err)
	details := types.AsError(err).Details
	assert.Equal(t, []string{"review"}, details["missing_roles"])
	assert.Equal(t, true, details["missing_assignment"])

	assignee := actorA
	_, err = svc.Assign(ctx, task.ID, &assignee, meta(actorA))
	require.NoError(t, err)
	_, _, err = svc.CommentAdd(ctx, task.ID, "LGTM, covered by tests", "review", meta(human))
	require.NoError(t, err)

	res, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusDone, false, "", meta(actorA))
	require.NoError(t, err)
	assert.Equal(t, configfile.StatusDone, res.Task.Status)

	// needs_human bypasses the gate from anywhere.
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusNeedsHuman, false, "", meta(actorA))
	require.NoError(t, err)
}

func TestDeletingEvidenceReopensGate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "evidence comes and goes")

	_, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusReview, false, "", meta(actorA))
	require.NoError(t, err)
	assignee := actorA
	_, err = svc.Assign(ctx, task.ID, &assignee, meta(actorA))
	require.NoError(t, err)
	_, commentID, err := svc.CommentAdd(ctx, task.ID, "approved", "review", meta(human))
	require.NoError(t, err)

	_, err = svc.CommentDelete(ctx, task.ID, commentID, meta(human))
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusDone, false, "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeCompletionBlocked), "got %v", err)
}

func TestReviewCycleLimit(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "ping pong")

	bounce := func() error {
		if _, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusReview, false, "", meta(actorA)); err != nil {
			return err
		}
		_, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", meta(actorA))
		return err
	}

	_, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, bounce(), "bounce %d", i+1)
	}

	// Fourth bounce out of review exceeds the limit.
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusReview, false, "", meta(actorA))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.True(t, types.IsCode(err, types.CodeReviewCycleExceeded), "got %v", err)

	// Force with a reason still works and does not count as a cycle.
	_, err = svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, true, "review feedback was cosmetic", meta(actorA))
	require.NoError(t, err)
}

func TestCommentLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "talkative")

	_, commentID, err := svc.CommentAdd(ctx, task.ID, "first pass", "", meta(actorA))
	require.NoError(t, err)

	_, err = svc.CommentEdit(ctx, task.ID, commentID, "second pass", "", meta(actorA))
	require.NoError(t, err)
	comments, err := svc.Comments(task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "second pass", comments[0].Body)
	assert.NotNil(t, comments[0].EditedAt)

	snap, err := svc.CommentDelete(ctx, task.ID, commentID, meta(actorA))
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CommentCount)

	_, err = svc.CommentEdit(ctx, task.ID, commentID, "too late", "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeCommentNotFound), "got %v", err)
}

func TestLinkWritesInverseEdge(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "a")
	b := mustCreate(t, svc, "b")

	res, err := svc.Link(ctx, a.ID, types.RelBlocks, b.ID, "", meta(actorA))
	require.NoError(t, err)
	assert.True(t, res.Source.HasRelationship(b.ID, types.RelBlocks))
	assert.True(t, res.Target.HasRelationship(a.ID, types.RelBlockedBy))

	_, err = svc.Link(ctx, a.ID, types.RelBlocks, b.ID, "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeDuplicateLink), "got %v", err)

	_, err = svc.Link(ctx, a.ID, types.RelBlocks, a.ID, "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeSelfLink), "got %v", err)

	res, err = svc.Unlink(ctx, a.ID, types.RelBlocks, b.ID, meta(actorA))
	require.NoError(t, err)
	assert.False(t, res.Source.HasRelationship(b.ID, types.RelBlocks))
	assert.False(t, res.Target.HasRelationship(a.ID, types.RelBlockedBy))

	_, err = svc.Unlink(ctx, a.ID, types.RelBlocks, b.ID, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeLinkNotFound), "got %v", err)
}

func TestEpicStatusIsDerived(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	epic, err := svc.Create(ctx, CreateRequest{Title: "the initiative", Type: types.TypeEpic}, meta(actorA))
	require.NoError(t, err)
	child := mustCreate(t, svc, "one brick")
	_, err = svc.Link(ctx, epic.ID, types.RelParentOf, child.ID, "", meta(actorA))
	require.NoError(t, err)

	got, err := svc.Get(epic.ID)
	require.NoError(t, err)
	assert.Equal(t, configfile.StatusBacklog, got.Status)

	_, err = svc.ChangeStatus(ctx, child.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.NoError(t, err)
	got, err = svc.Get(epic.ID)
	require.NoError(t, err)
	assert.Equal(t, configfile.StatusInProgress, got.Status)

	// Direct writes to an epic's status are rejected.
	_, err = svc.ChangeStatus(ctx, epic.ID, configfile.StatusDone, false, "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeInvalidTransition), "got %v", err)
}

func TestArchiveLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "put me away")
	require.NoError(t, svc.WriteNotes(ctx, task.ID, "# scratch\n"))

	archived, err := svc.Archive(ctx, task.ID, meta(actorA))
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	// Files moved to the archive subtree.
	assert.NoFileExists(t, svc.store.TaskPath(task.ID))
	assert.NoFileExists(t, svc.store.EventLogPath(task.ID))
	assert.FileExists(t, svc.store.ArchivedTaskPath(task.ID))
	assert.FileExists(t, svc.store.ArchivedEventLogPath(task.ID))
	assert.FileExists(t, svc.store.ArchivedNotesPath(task.ID))

	// Archived tasks stay readable, but reject mutation.
	got, err := svc.Get(task.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
	_, _, err = svc.CommentAdd(ctx, task.ID, "nope", "", meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeAlreadyArchived), "got %v", err)
	_, err = svc.Archive(ctx, task.ID, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeAlreadyArchived), "got %v", err)

	restored, err := svc.Unarchive(ctx, task.ID, meta(actorA))
	require.NoError(t, err)
	assert.False(t, restored.Archived)
	assert.FileExists(t, svc.store.TaskPath(task.ID))
	assert.FileExists(t, svc.store.NotesPath(task.ID))
	assert.NoFileExists(t, svc.store.ArchivedTaskPath(task.ID))
	assert.NoFileExists(t, svc.store.ArchivedNotesPath(task.ID))

	// task_unarchived landed in the restored active log.
	events, err := svc.Events(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.EventTaskUnarchived, events[len(events)-1].Type)
	assert.FileExists(t, svc.store.EventLogPath(task.ID))
	notes, err := svc.Notes(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "# scratch\n", notes)

	_, err = svc.Unarchive(ctx, task.ID, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeNotArchived), "got %v", err)
}

func TestCustomEvents(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "extensible")

	_, err := svc.RecordCustomEvent(ctx, task.ID, "x_deploy", []byte(`{"env":"staging"}`), meta(actorA))
	require.NoError(t, err)

	_, err = svc.RecordCustomEvent(ctx, task.ID, "status_changed", nil, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeReservedType), "got %v", err)
	_, err = svc.RecordCustomEvent(ctx, task.ID, "deploy", nil, meta(actorA))
	assert.True(t, types.IsCode(err, types.CodeReservedType), "got %v", err)

	events, err := svc.Events(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.EventType("x_deploy"), events[len(events)-1].Type)
}

func TestGetHealsMissingSnapshot(t *testing.T) {
	svc := newService(t)
	task := mustCreate(t, svc, "crash survivor")
	_, err := svc.ChangeStatus(context.Background(), task.ID, configfile.StatusInProgress, false, "", meta(actorA))
	require.NoError(t, err)

	// Simulate a crash between append and snapshot write.
	require.NoError(t, os.Remove(svc.store.TaskPath(task.ID)))

	got, err := svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, configfile.StatusInProgress, got.Status)
	assert.FileExists(t, svc.store.TaskPath(task.ID))
}

func TestNextAndClaim(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	low := mustCreate(t, svc, "someday")
	urgent, err := svc.Create(ctx, CreateRequest{Title: "now", Priority: types.PriorityCritical}, meta(actorA))
	require.NoError(t, err)

	pick, err := svc.Next(actorA, nil)
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, pick.ID)

	claimed, err := svc.Claim(ctx, nil, meta(actorA))
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, claimed.ID)
	assert.Equal(t, configfile.StatusInProgress, claimed.Status)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, actorA, *claimed.AssignedTo)

	// Resume-first: the same actor gets their in-flight task back.
	pick, err = svc.Next(actorA, nil)
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, pick.ID)

	// A different actor skips the claimed task.
	claimed, err = svc.Claim(ctx, nil, meta(actorB))
	require.NoError(t, err)
	assert.Equal(t, low.ID, claimed.ID)

	_, err = svc.Claim(ctx, nil, meta("agent:third"))
	assert.True(t, types.IsCode(err, types.CodeNothingToClaim), "got %v", err)
}

func TestConcurrentClaimersNeverShareATask(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "only one")

	var wg sync.WaitGroup
	results := make([]*types.Task, 2)
	errs := make([]error, 2)
	actors := []string{actorA, actorB}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Claim(ctx, nil, meta(actors[i]))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			winners++
			assert.Equal(t, task.ID, results[i].ID)
		} else {
			assert.True(t, types.IsCode(errs[i], types.CodeNothingToClaim), "got %v", errs[i])
		}
	}
	assert.Equal(t, 1, winners, "exactly one claimer wins")

	got, err := svc.Get(task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedTo)
	events, err := svc.Events(task.ID)
	require.NoError(t, err)
	assignments := 0
	for _, ev := range events {
		if ev.Type == types.EventAssignmentChanged {
			assignments++
		}
	}
	assert.Equal(t, 1, assignments, "the loser must not have written anything")
}

func TestResolveActorFallbacks(t *testing.T) {
	svc := newService(t)

	got, err := svc.ResolveActor(actorA)
	require.NoError(t, err)
	assert.Equal(t, actorA, got)

	t.Setenv(EnvActor, human)
	got, err = svc.ResolveActor("")
	require.NoError(t, err)
	assert.Equal(t, human, got)

	t.Setenv(EnvActor, "")
	svc.cfg.DefaultActor = actorB
	got, err = svc.ResolveActor("")
	require.NoError(t, err)
	assert.Equal(t, actorB, got)

	svc.cfg.DefaultActor = ""
	_, err = svc.ResolveActor("")
	assert.True(t, types.IsCode(err, types.CodeInvalidInput), "got %v", err)

	_, err = svc.ResolveActor("no-colon")
	assert.True(t, types.IsCode(err, types.CodeInvalidInput), "got %v", err)
}

func TestRetryWithSameEventIDIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		task := mustCreate(t, svc, "status retry")
		m := Meta{Actor: actorA, EventID: svc.gen.EventID()}
		first, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", m)
		require.NoError(t, err)
		again, err := svc.ChangeStatus(ctx, task.ID, configfile.StatusInProgress, false, "", m)
		require.NoError(t, err)
		assert.Equal(t, first.Task.Status, again.Task.Status)
		events, err := svc.Events(task.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("comment", func(t *testing.T) {
		task := mustCreate(t, svc, "comment retry")
		m := Meta{Actor: actorA, EventID: svc.gen.EventID()}
		_, firstID, err := svc.CommentAdd(ctx, task.ID, "same words", "", m)
		require.NoError(t, err)
		_, againID, err := svc.CommentAdd(ctx, task.ID, "same words", "", m)
		require.NoError(t, err)
		assert.Equal(t, firstID, againID, "a retry names the same comment")
		comments, err := svc.Comments(task.ID)
		require.NoError(t, err)
		assert.Len(t, comments, 1)
	})

	t.Run("update", func(t *testing.T) {
		task := mustCreate(t, svc, "update retry")
		m := Meta{Actor: actorA, EventID: svc.gen.EventID()}
		patches := []Patch{
			{Path: "title", Value: "renamed"},
			{Path: "description", Value: "body"},
		}
		_, err := svc.Update(ctx, task.ID, patches, m)
		require.NoError(t, err)
		again, err := svc.Update(ctx, task.ID, patches, m)
		require.NoError(t, err)
		assert.Equal(t, "renamed", again.Title)
		events, err := svc.Events(task.ID)
		require.NoError(t, err)
		assert.Len(t, events, 3, "created + one event per patch, batch not re-applied")
	})

	t.Run("link", func(t *testing.T) {
		a := mustCreate(t, svc, "link retry a")
		b := mustCreate(t, svc, "link retry b")
		m := Meta{Actor: actorA, EventID: svc.gen.EventID()}
		_, err := svc.Link(ctx, a.ID, types.RelBlocks, b.ID, "", m)
		require.NoError(t, err)
		res, err := svc.Link(ctx, a.ID, types.RelBlocks, b.ID, "", m)
		require.NoError(t, err)
		assert.Len(t, res.Source.RelationshipsOut, 1)
		events, err := svc.Events(a.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("attach", func(t *testing.T) {
		task := mustCreate(t, svc, "attach retry")
		m := Meta{Actor: actorA, EventID: svc.gen.EventID()}
		req := AttachRequest{Source: types.SourceURL, Ref: "https://ci.example.com/run/7"}
		first, err := svc.Attach(ctx, task.ID, req, m)
		require.NoError(t, err)
		again, err := svc.Attach(ctx, task.ID, req, m)
		require.NoError(t, err)
		require.NotNil(t, again.Artifact)
		assert.Equal(t, first.Artifact.ID, again.Artifact.ID)
		events, err := svc.Events(task.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("archive", func(t *testing.T) {
		task := mustCreate(t, svc, "archive retry")
		m := Meta{Actor: actorA, EventID: svc.gen.EventID()}
		_, err := svc.Archive(ctx, task.ID, m)
		require.NoError(t, err)
		again, err := svc.Archive(ctx, task.ID, m)
		require.NoError(t, err)
		assert.True(t, again.Archived)
		events, err := svc.Events(task.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}

func TestOffVocabularyRoleAcceptedAndFlagged(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, "needs a security pass")

	_, _, err := svc.CommentAdd(ctx, task.ID, "ran the scanner, clean", "security_review", meta(actorA))
	require.NoError(t, err)
	comments, err := svc.Comments(task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "security_review", comments[0].Role)

	doc := integrity.NewDoctor(svc.Store(), svc.Config(), lockfile.NewManager(svc.Store().LocksDir()))
	rep, err := doc.Run(ctx, false)
	require.NoError(t, err)
	flagged := false
	for _, iss := range rep.Issues {
		if iss.Check == integrity.CheckUnknownRole && iss.TaskID == task.ID {
			flagged = true
		}
	}
	assert.True(t, flagged, "doctor should flag the off-vocabulary role: %+v", rep.Issues)
}
