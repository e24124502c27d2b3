package lifecycle_test

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edavis10/issuekit/internal/lifecycle"
	"github.com/edavis10/issuekit/internal/relation"
	"github.com/edavis10/issuekit/internal/seed"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/storage/sqlite"
	"github.com/edavis10/issuekit/internal/types"
)

// env is a freshly seeded sqlite database with a service over it.
type env struct {
	store      storage.Store
	svc        *lifecycle.Service
	admin      *types.User
	project    *types.Project
	statuses   map[string]int64
	priorities map[string]int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "trk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	result, err := seed.Install(ctx, store, seed.Defaults(), seed.Options{
		ProjectName:       "Test",
		ProjectIdentifier: "test",
		AdminLogin:        "admin",
		AdminName:         "Admin",
		AdminMail:         "admin@example.org",
	})
	require.NoError(t, err)

	e := &env{
		store:      store,
		svc:        lifecycle.New(store),
		admin:      result.Admin,
		project:    result.Project,
		statuses:   map[string]int64{},
		priorities: map[string]int64{},
	}
	statuses, err := store.ListStatuses(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		e.statuses[s.Name] = s.ID
	}
	priorities, err := store.ListPriorities(ctx)
	require.NoError(t, err)
	for _, p := range priorities {
		e.priorities[p.Name] = p.ID
	}
	return e
}

func (e *env) create(t *testing.T, attrs map[string]string) *types.Issue {
	t.Helper()
	issue, err := e.svc.Create(context.Background(), e.admin, e.project.ID, lifecycle.Edit{Attrs: attrs})
	require.NoError(t, err)
	return issue
}

func (e *env) update(t *testing.T, id int64, attrs map[string]string) *types.Issue {
	t.Helper()
	issue, err := e.svc.Update(context.Background(), e.admin, id, lifecycle.Edit{Attrs: attrs})
	require.NoError(t, err)
	return issue
}

func (e *env) reload(t *testing.T, id int64) *types.Issue {
	t.Helper()
	issue, err := e.store.GetIssue(context.Background(), id)
	require.NoError(t, err)
	return issue
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestCreateAppliesDefaults(t *testing.T) {
	e := newEnv(t)

	issue := e.create(t, map[string]string{types.AttrSubject: "First bug"})

	assert.Equal(t, e.statuses["New"], issue.StatusID)
	assert.Equal(t, e.priorities["Normal"], issue.PriorityID)
	assert.Equal(t, e.project.TrackerIDs[0], issue.TrackerID)
	assert.Equal(t, e.admin.ID, issue.AuthorID)
	assert.Equal(t, issue.ID, issue.RootID)
	assert.Equal(t, 1, issue.Lft)
	assert.Equal(t, 2, issue.Rgt)
}

func TestParentAggregatesFromChildren(t *testing.T) {
	e := newEnv(t)

	parent := e.create(t, map[string]string{types.AttrSubject: "Epic"})
	c1 := e.create(t, map[string]string{
		types.AttrSubject:        "Estimated half done",
		types.AttrParentID:       itoa(parent.ID),
		types.AttrEstimatedHours: "2",
		types.AttrStartDate:      "2026-09-01",
		types.AttrDueDate:        "2026-09-03",
	})
	c2 := e.create(t, map[string]string{
		types.AttrSubject:  "Unestimated",
		types.AttrParentID: itoa(parent.ID),
	})

	e.update(t, c1.ID, map[string]string{types.AttrDoneRatio: "50"})
	e.update(t, c2.ID, map[string]string{types.AttrStatusID: itoa(e.statuses["Closed"])})

	got := e.reload(t, parent.ID)
	assert.Equal(t, 1, got.Lft)
	assert.Equal(t, 6, got.Rgt)
	// c1 weighs 2h at 50%, c2 weighs the 2h average at 100%:
	// (2*50 + 2*100) / (2*2) = 75
	assert.Equal(t, 75, got.DoneRatio)
	require.NotNil(t, got.EstimatedHours)
	assert.Equal(t, 2.0, *got.EstimatedHours)
	require.NotNil(t, got.StartDate)
	assert.Equal(t, "2026-09-01", got.StartDate.String())
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2026-09-03", got.DueDate.String())

	// closing a leaf through the Closed status adopts its default ratio
	closed := e.reload(t, c2.ID)
	assert.Equal(t, 100, closed.DoneRatio)

	// the most urgent child drives the parent's priority
	e.update(t, c1.ID, map[string]string{types.AttrPriorityID: itoa(e.priorities["Urgent"])})
	got = e.reload(t, parent.ID)
	assert.Equal(t, e.priorities["Urgent"], got.PriorityID)
}

func TestCreateDropsNonDefaultStatus(t *testing.T) {
	e := newEnv(t)

	issue := e.create(t, map[string]string{
		types.AttrSubject:  "Eager",
		types.AttrStatusID: itoa(e.statuses["In Progress"]),
	})

	assert.Equal(t, e.statuses["New"], issue.StatusID, "a new issue starts in the default status")
}

func TestUpdateJournalsChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issue := e.create(t, map[string]string{types.AttrSubject: "Typo in docs"})
	e.update(t, issue.ID, map[string]string{
		types.AttrSubject:  "Typo in README",
		types.AttrStatusID: itoa(e.statuses["In Progress"]),
	})

	journals, err := e.store.JournalsForIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, journals, 1)
	j := journals[0]
	assert.Equal(t, e.admin.ID, j.UserID)

	byKey := map[string]types.JournalDetail{}
	for _, d := range j.Details {
		byKey[d.PropKey] = d
	}
	subject, ok := byKey[types.AttrSubject]
	require.True(t, ok, "subject change not journaled")
	require.NotNil(t, subject.OldValue)
	assert.Equal(t, "Typo in docs", *subject.OldValue)
	require.NotNil(t, subject.NewValue)
	assert.Equal(t, "Typo in README", *subject.NewValue)

	status, ok := byKey[types.AttrStatusID]
	require.True(t, ok, "status change not journaled")
	assert.Equal(t, types.PropAttribute, status.Property)
	assert.Equal(t, itoa(e.statuses["In Progress"]), *status.NewValue)
}

func TestNoopUpdateLeavesNoJournal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issue := e.create(t, map[string]string{types.AttrSubject: "Stable"})
	e.update(t, issue.ID, map[string]string{types.AttrSubject: "Stable"})

	journals, err := e.store.JournalsForIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, journals)
}

func TestStaleLockVersionRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issue := e.create(t, map[string]string{types.AttrSubject: "Contended"})
	e.update(t, issue.ID, map[string]string{types.AttrSubject: "Renamed once"})

	stale := issue.LockVersion // version before the first update
	_, err := e.svc.Update(ctx, e.admin, issue.ID, lifecycle.Edit{
		Attrs:       map[string]string{types.AttrSubject: "Renamed twice"},
		LockVersion: &stale,
	})
	require.ErrorIs(t, err, storage.ErrStaleObject)

	got := e.reload(t, issue.ID)
	assert.Equal(t, "Renamed once", got.Subject)
}

func TestPrecedesReschedulesSuccessor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.create(t, map[string]string{
		types.AttrSubject:   "Design",
		types.AttrStartDate: "2026-09-08",
		types.AttrDueDate:   "2026-09-10",
	})
	b := e.create(t, map[string]string{
		types.AttrSubject:   "Build",
		types.AttrStartDate: "2026-09-05",
		types.AttrDueDate:   "2026-09-07",
	})

	_, err := e.svc.AddRelation(ctx, e.admin, &types.Relation{
		IssueFromID: a.ID, IssueToID: b.ID, Type: types.TypePrecedes,
	})
	require.NoError(t, err)

	got := e.reload(t, b.ID)
	assert.Equal(t, "2026-09-11", got.StartDate.String())
	assert.Equal(t, "2026-09-13", got.DueDate.String(), "duration must be preserved")

	// pushing the predecessor's due date cascades again
	e.update(t, a.ID, map[string]string{types.AttrDueDate: "2026-09-20"})
	got = e.reload(t, b.ID)
	assert.Equal(t, "2026-09-21", got.StartDate.String())
	assert.Equal(t, "2026-09-23", got.DueDate.String())
}

func TestFollowsStoredAsPrecedes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.create(t, map[string]string{types.AttrSubject: "Earlier"})
	b := e.create(t, map[string]string{types.AttrSubject: "Later"})

	rel, err := e.svc.AddRelation(ctx, e.admin, &types.Relation{
		IssueFromID: b.ID, IssueToID: a.ID, Type: types.TypeFollows, Delay: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TypePrecedes, rel.Type)
	assert.Equal(t, a.ID, rel.IssueFromID)
	assert.Equal(t, b.ID, rel.IssueToID)
	assert.Equal(t, 3, rel.Delay)
}

func TestRelationCycleRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.create(t, map[string]string{types.AttrSubject: "A"})
	b := e.create(t, map[string]string{types.AttrSubject: "B"})
	c := e.create(t, map[string]string{types.AttrSubject: "C"})

	for _, pair := range [][2]int64{{a.ID, b.ID}, {b.ID, c.ID}} {
		_, err := e.svc.AddRelation(ctx, e.admin, &types.Relation{
			IssueFromID: pair[0], IssueToID: pair[1], Type: types.TypePrecedes,
		})
		require.NoError(t, err)
	}

	_, err := e.svc.AddRelation(ctx, e.admin, &types.Relation{
		IssueFromID: c.ID, IssueToID: a.ID, Type: types.TypePrecedes,
	})
	require.ErrorIs(t, err, relation.ErrCircularDependency)
}

func TestDuplicateRelationRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.create(t, map[string]string{types.AttrSubject: "A"})
	b := e.create(t, map[string]string{types.AttrSubject: "B"})

	_, err := e.svc.AddRelation(ctx, e.admin, &types.Relation{
		IssueFromID: a.ID, IssueToID: b.ID, Type: types.TypeRelates,
	})
	require.NoError(t, err)
	_, err = e.svc.AddRelation(ctx, e.admin, &types.Relation{
		IssueFromID: b.ID, IssueToID: a.ID, Type: types.TypeBlocks,
	})
	require.ErrorIs(t, err, relation.ErrDuplicateRelation)
}

func TestClosingClosesDuplicates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	original := e.create(t, map[string]string{types.AttrSubject: "Crash on start"})
	dup := e.create(t, map[string]string{types.AttrSubject: "Crash on start (again)"})

	_, err := e.svc.AddRelation(ctx, e.admin, &types.Relation{
		IssueFromID: dup.ID, IssueToID: original.ID, Type: types.TypeDuplicates,
	})
	require.NoError(t, err)

	e.update(t, original.ID, map[string]string{types.AttrStatusID: itoa(e.statuses["Closed"])})

	got := e.reload(t, dup.ID)
	assert.Equal(t, e.statuses["Closed"], got.StatusID)

	journals, err := e.store.JournalsForIssue(ctx, dup.ID)
	require.NoError(t, err)
	require.Len(t, journals, 1)
	require.Len(t, journals[0].Details, 1)
	assert.Equal(t, types.AttrStatusID, journals[0].Details[0].PropKey)
}

func TestMoveSubtreeToOtherProject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := e.otherProject(t)

	parent := e.create(t, map[string]string{types.AttrSubject: "Portable"})
	child := e.create(t, map[string]string{
		types.AttrSubject:  "Goes along",
		types.AttrParentID: itoa(parent.ID),
	})

	result, err := e.svc.MoveOrCopy(ctx, e.admin, []int64{parent.ID}, lifecycle.MoveOptions{
		TargetProjectID: other.ID,
	})
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	require.Contains(t, result.Done, parent.ID)

	assert.Equal(t, other.ID, e.reload(t, parent.ID).ProjectID)
	assert.Equal(t, other.ID, e.reload(t, child.ID).ProjectID, "subtasks follow a move")
}

func TestMoveRejectedWhenSubtreeTrackerDisabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// The narrow project enables only the first seeded tracker.
	narrow := &types.Project{
		Identifier: "narrow",
		Name:       "Narrow",
		TrackerIDs: e.project.TrackerIDs[:1],
	}
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.InsertProject(ctx, narrow)
	})
	require.NoError(t, err)

	parent := e.create(t, map[string]string{types.AttrSubject: "Portable"})
	child := e.create(t, map[string]string{
		types.AttrSubject:   "Needs its tracker",
		types.AttrParentID:  itoa(parent.ID),
		types.AttrTrackerID: itoa(e.project.TrackerIDs[1]),
	})

	result, err := e.svc.MoveOrCopy(ctx, e.admin, []int64{parent.ID}, lifecycle.MoveOptions{
		TargetProjectID: narrow.ID,
	})
	require.NoError(t, err)
	require.Empty(t, result.Done)
	require.ErrorIs(t, result.Failed[parent.ID], lifecycle.ErrTrackerDisabled)

	// the whole move was rejected: nothing changed project or tracker
	assert.Equal(t, e.project.ID, e.reload(t, parent.ID).ProjectID)
	got := e.reload(t, child.ID)
	assert.Equal(t, e.project.ID, got.ProjectID)
	assert.Equal(t, e.project.TrackerIDs[1], got.TrackerID)
}

func TestCopyStartsInDefaultStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := e.otherProject(t)

	source := e.create(t, map[string]string{types.AttrSubject: "Screened"})

	// Park the source in a status that sorts ahead of the default one.
	triage := &types.Status{Name: "Triage", Position: 0}
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertStatus(ctx, triage); err != nil {
			return err
		}
		row, err := tx.GetIssue(ctx, source.ID)
		if err != nil {
			return err
		}
		row.StatusID = triage.ID
		return tx.UpdateIssue(ctx, row)
	})
	require.NoError(t, err)

	result, err := e.svc.MoveOrCopy(ctx, e.admin, []int64{source.ID}, lifecycle.MoveOptions{
		TargetProjectID: other.ID,
		Copy:            true,
	})
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	copied := result.Done[source.ID]
	require.NotNil(t, copied)
	assert.Equal(t, e.statuses["New"], copied.StatusID)
}

func TestCopyWithSubtasksAndLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := e.otherProject(t)

	parent := e.create(t, map[string]string{types.AttrSubject: "Template"})
	e.create(t, map[string]string{
		types.AttrSubject:  "Step one",
		types.AttrParentID: itoa(parent.ID),
	})

	result, err := e.svc.MoveOrCopy(ctx, e.admin, []int64{parent.ID}, lifecycle.MoveOptions{
		TargetProjectID: other.ID,
		Copy:            true,
		CopySubtasks:    true,
		Link:            true,
	})
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	copied := result.Done[parent.ID]
	require.NotNil(t, copied)
	require.NotEqual(t, parent.ID, copied.ID)
	assert.Equal(t, "Template", copied.Subject)
	assert.Equal(t, other.ID, copied.ProjectID)

	children, err := e.store.ChildIssues(ctx, copied.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Step one", children[0].Subject)

	// the source keeps its subtree
	sourceChildren, err := e.store.ChildIssues(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, sourceChildren, 1)

	rels, err := e.store.RelationsFrom(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, types.TypeCopiedTo, rels[0].Type)
	assert.Equal(t, copied.ID, rels[0].IssueToID)
}

func TestCrossProjectRelationDisabledByDefault(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := e.otherProject(t)

	a := e.create(t, map[string]string{types.AttrSubject: "Here"})
	b, err := e.svc.Create(ctx, e.admin, other.ID, lifecycle.Edit{
		Attrs: map[string]string{types.AttrSubject: "There"},
	})
	require.NoError(t, err)

	_, err = e.svc.AddRelation(ctx, e.admin, &types.Relation{
		IssueFromID: a.ID, IssueToID: b.ID, Type: types.TypeRelates,
	})
	require.ErrorIs(t, err, lifecycle.ErrCrossProjectRelation)
}

func TestPermissionDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	outsider := &types.User{Login: "visitor", Name: "Visitor"}
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.InsertUser(ctx, outsider)
	})
	require.NoError(t, err)

	_, err = e.svc.Create(ctx, outsider, e.project.ID, lifecycle.Edit{
		Attrs: map[string]string{types.AttrSubject: "Not allowed"},
	})
	require.ErrorIs(t, err, lifecycle.ErrPermissionDenied)

	issue := e.create(t, map[string]string{types.AttrSubject: "Owned"})
	_, err = e.svc.Update(ctx, outsider, issue.ID, lifecycle.Edit{
		Attrs: map[string]string{types.AttrSubject: "Hijacked"},
	})
	require.ErrorIs(t, err, lifecycle.ErrPermissionDenied)
}

func TestDeleteSubtreeRecomputesParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	parent := e.create(t, map[string]string{types.AttrSubject: "Shrinking"})
	e.create(t, map[string]string{
		types.AttrSubject:        "Stays",
		types.AttrParentID:       itoa(parent.ID),
		types.AttrEstimatedHours: "2",
	})
	gone := e.create(t, map[string]string{
		types.AttrSubject:        "Goes",
		types.AttrParentID:       itoa(parent.ID),
		types.AttrEstimatedHours: "4",
	})

	require.NoError(t, e.svc.Delete(ctx, e.admin, gone.ID))

	_, err := e.store.GetIssue(ctx, gone.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	got := e.reload(t, parent.ID)
	assert.Equal(t, 1, got.Lft)
	assert.Equal(t, 4, got.Rgt)
	require.NotNil(t, got.EstimatedHours)
	assert.Equal(t, 2.0, *got.EstimatedHours)
}

func TestRemoveAttachmentJournalsFilename(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issue := e.create(t, map[string]string{types.AttrSubject: "With file"})
	attachment := &types.Attachment{IssueID: issue.ID, Filename: "trace.log", AuthorID: e.admin.ID}
	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.InsertAttachment(ctx, attachment)
	})
	require.NoError(t, err)

	require.NoError(t, e.svc.RemoveAttachment(ctx, e.admin, attachment.ID))

	_, err = e.store.GetAttachment(ctx, attachment.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	journals, err := e.store.JournalsForIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, journals, 1)
	require.Len(t, journals[0].Details, 1)
	d := journals[0].Details[0]
	assert.Equal(t, types.PropAttachment, d.Property)
	assert.Equal(t, itoa(attachment.ID), d.PropKey)
	require.NotNil(t, d.OldValue)
	assert.Equal(t, "trace.log", *d.OldValue)
	assert.Nil(t, d.NewValue)
}

func TestValidationRejectsBlankSubject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Create(ctx, e.admin, e.project.ID, lifecycle.Edit{})
	require.Error(t, err)
	var verrs types.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.NotEmpty(t, verrs.On(types.AttrSubject))
}

// otherProject inserts a second project sharing the seeded trackers.
func (e *env) otherProject(t *testing.T) *types.Project {
	t.Helper()
	project := &types.Project{
		Identifier: "other",
		Name:       "Other",
		TrackerIDs: e.project.TrackerIDs,
	}
	err := e.store.RunInTransaction(context.Background(), func(tx storage.Tx) error {
		return tx.InsertProject(context.Background(), project)
	})
	require.NoError(t, err)
	return project
}
