package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/storage/sqlite"
	"github.com/edavis10/issuekit/internal/types"
)

// fixture carries the minimal reference rows an issue insert needs.
type fixture struct {
	store    storage.Store
	project  *types.Project
	tracker  *types.Tracker
	status   *types.Status
	priority *types.Priority
	user     *types.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		tracker:  &types.Tracker{Name: "Bug", Position: 1},
		status:   &types.Status{Name: "New", Position: 1, IsDefault: true},
		priority: &types.Priority{Name: "Normal", Position: 2, IsDefault: true},
		user:     &types.User{Login: "alice", Name: "Alice", Mail: "alice@example.org"},
	}
	err = store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertTracker(ctx, f.tracker); err != nil {
			return err
		}
		if err := tx.InsertStatus(ctx, f.status); err != nil {
			return err
		}
		if err := tx.InsertPriority(ctx, f.priority); err != nil {
			return err
		}
		if err := tx.InsertUser(ctx, f.user); err != nil {
			return err
		}
		f.project = &types.Project{Identifier: "demo", Name: "Demo", TrackerIDs: []int64{f.tracker.ID}}
		return tx.InsertProject(ctx, f.project)
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) insertIssue(t *testing.T, mutate func(*types.Issue)) *types.Issue {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	issue := &types.Issue{
		ProjectID:  f.project.ID,
		TrackerID:  f.tracker.ID,
		StatusID:   f.status.ID,
		PriorityID: f.priority.ID,
		AuthorID:   f.user.ID,
		Subject:    "Round trip",
		CreatedOn:  now,
		UpdatedOn:  now,
	}
	if mutate != nil {
		mutate(issue)
	}
	err := f.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.InsertIssue(ctx, issue)
	})
	require.NoError(t, err)
	return issue
}

func (f *fixture) inTx(t *testing.T, fn func(tx storage.Tx) error) {
	t.Helper()
	require.NoError(t, f.store.RunInTransaction(context.Background(), fn))
}

func TestInsertIssueInitializesRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := types.ParseDate("2026-09-01")
	require.NoError(t, err)
	hours := 3.5
	issue := f.insertIssue(t, func(i *types.Issue) {
		i.Description = "with dates"
		i.StartDate = &start
		i.EstimatedHours = &hours
	})

	require.NotZero(t, issue.ID)
	assert.Equal(t, issue.ID, issue.RootID)
	assert.Equal(t, 1, issue.Lft)
	assert.Equal(t, 2, issue.Rgt)

	got, err := f.store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Round trip", got.Subject)
	assert.Equal(t, "with dates", got.Description)
	require.NotNil(t, got.StartDate)
	assert.Equal(t, "2026-09-01", got.StartDate.String())
	assert.Nil(t, got.DueDate)
	require.NotNil(t, got.EstimatedHours)
	assert.Equal(t, 3.5, *got.EstimatedHours)
	assert.Nil(t, got.AssignedToID)
	assert.Equal(t, 0, got.LockVersion)
}

func TestGetIssueNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.GetIssue(context.Background(), 9999)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateIssueOptimisticLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.insertIssue(t, nil)

	stale := *issue // copy at lock_version 0

	issue.Subject = "First writer"
	f.inTx(t, func(tx storage.Tx) error { return tx.UpdateIssue(ctx, issue) })
	assert.Equal(t, 1, issue.LockVersion)

	stale.Subject = "Second writer"
	err := f.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpdateIssue(ctx, &stale)
	})
	require.ErrorIs(t, err, storage.ErrStaleObject)

	got, err := f.store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "First writer", got.Subject)
	assert.Equal(t, 1, got.LockVersion)
}

func TestUpdateIssueLeavesTreeColumnsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.insertIssue(t, nil)

	// widen the tree out of band, then a scalar update must not shrink it
	f.inTx(t, func(tx storage.Tx) error {
		return tx.ApplyTreeUpdates(ctx, []types.TreeUpdate{
			{ID: issue.ID, RootID: issue.RootID, Lft: 1, Rgt: 4},
		})
	})
	issue.Subject = "Scalar only"
	f.inTx(t, func(tx storage.Tx) error { return tx.UpdateIssue(ctx, issue) })

	got, err := f.store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rgt)
}

func TestCustomValuesReplaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.insertIssue(t, nil)

	f.inTx(t, func(tx storage.Tx) error {
		return tx.SetCustomValues(ctx, issue.ID, map[int64][]string{1: {"a", "b"}, 2: {"x"}})
	})
	f.inTx(t, func(tx storage.Tx) error {
		return tx.SetCustomValues(ctx, issue.ID, map[int64][]string{1: {"c"}})
	})

	got, err := f.store.CustomValues(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got[1])
	assert.Equal(t, []string{"x"}, got[2], "untouched field keeps its value")
}

func TestRelationQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.insertIssue(t, nil)
	b := f.insertIssue(t, nil)
	c := f.insertIssue(t, nil)

	f.inTx(t, func(tx storage.Tx) error {
		if err := tx.InsertRelation(ctx, &types.Relation{
			IssueFromID: a.ID, IssueToID: b.ID, Type: types.TypePrecedes, Delay: 2,
		}); err != nil {
			return err
		}
		return tx.InsertRelation(ctx, &types.Relation{
			IssueFromID: b.ID, IssueToID: c.ID, Type: types.TypeBlocks,
		})
	})

	from, err := f.store.RelationsFrom(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, types.TypeBlocks, from[0].Type)

	to, err := f.store.RelationsTo(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, 2, to[0].Delay)

	of, err := f.store.RelationsOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, of, 2)

	f.inTx(t, func(tx storage.Tx) error { return tx.DeleteRelation(ctx, from[0].ID) })
	_, err = f.store.GetRelation(ctx, from[0].ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJournalsRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.insertIssue(t, nil)

	old := "New"
	now := "In Progress"
	first := &types.Journal{
		IssueID:   issue.ID,
		UserID:    f.user.ID,
		Notes:     "picking this up",
		CreatedOn: time.Now().Add(-time.Hour),
		Details: []types.JournalDetail{
			{Property: types.PropAttribute, PropKey: types.AttrStatusID, OldValue: &old, NewValue: &now},
		},
	}
	second := &types.Journal{
		IssueID:   issue.ID,
		UserID:    f.user.ID,
		Notes:     "done",
		CreatedOn: time.Now(),
	}
	f.inTx(t, func(tx storage.Tx) error {
		if err := tx.InsertJournal(ctx, first); err != nil {
			return err
		}
		return tx.InsertJournal(ctx, second)
	})

	got, err := f.store.JournalsForIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "picking this up", got[0].Notes)
	require.Len(t, got[0].Details, 1)
	d := got[0].Details[0]
	assert.Equal(t, types.AttrStatusID, d.PropKey)
	require.NotNil(t, d.OldValue)
	assert.Equal(t, "New", *d.OldValue)
	assert.Equal(t, "done", got[1].Notes)
	assert.Empty(t, got[1].Details)
}

func TestDeleteIssuesCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.insertIssue(t, nil)
	other := f.insertIssue(t, nil)

	f.inTx(t, func(tx storage.Tx) error {
		if err := tx.InsertRelation(ctx, &types.Relation{
			IssueFromID: issue.ID, IssueToID: other.ID, Type: types.TypeRelates,
		}); err != nil {
			return err
		}
		if err := tx.InsertJournal(ctx, &types.Journal{
			IssueID: issue.ID, UserID: f.user.ID, Notes: "gone soon", CreatedOn: time.Now(),
		}); err != nil {
			return err
		}
		return tx.SetCustomValues(ctx, issue.ID, map[int64][]string{1: {"v"}})
	})

	f.inTx(t, func(tx storage.Tx) error { return tx.DeleteIssues(ctx, []int64{issue.ID}) })

	_, err := f.store.GetIssue(ctx, issue.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	rels, err := f.store.RelationsOf(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)

	journals, err := f.store.JournalsForIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, journals)

	values, err := f.store.CustomValues(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestTransitionRulesRoleFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := &types.Status{Name: "Closed", Position: 2, IsClosed: true}
	manager := &types.Role{Name: "Manager", Position: 1}
	reporter := &types.Role{Name: "Reporter", Position: 2}
	f.inTx(t, func(tx storage.Tx) error {
		for _, step := range []func() error{
			func() error { return tx.InsertStatus(ctx, closed) },
			func() error { return tx.InsertRole(ctx, manager) },
			func() error { return tx.InsertRole(ctx, reporter) },
			func() error {
				return tx.InsertWorkflowRule(ctx, &types.WorkflowRule{
					RoleID: manager.ID, TrackerID: f.tracker.ID,
					OldStatusID: f.status.ID, NewStatusID: closed.ID,
				})
			},
			func() error {
				return tx.InsertWorkflowRule(ctx, &types.WorkflowRule{
					RoleID: reporter.ID, TrackerID: f.tracker.ID,
					OldStatusID: f.status.ID, NewStatusID: closed.ID, Author: true,
				})
			},
		} {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})

	all, err := f.store.TransitionRules(ctx, f.tracker.ID, f.status.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2, "nil role filter selects every role")

	one, err := f.store.TransitionRules(ctx, f.tracker.ID, f.status.ID, []int64{reporter.ID})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.True(t, one[0].Author)

	none, err := f.store.TransitionRules(ctx, f.tracker.ID, f.status.ID, []int64{})
	require.NoError(t, err)
	assert.Empty(t, none, "empty role set matches nothing")
}

func TestRolesForUserThroughGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role := &types.Role{Name: "Developer", Position: 1, Permissions: []types.Permission{types.PermEditIssues}}
	group := &types.Group{Name: "backend"}
	f.inTx(t, func(tx storage.Tx) error {
		if err := tx.InsertRole(ctx, role); err != nil {
			return err
		}
		if err := tx.InsertGroup(ctx, group, []int64{f.user.ID}); err != nil {
			return err
		}
		return tx.AddMember(ctx, group.ID, f.project.ID, []int64{role.ID})
	})

	isGroup, err := f.store.IsGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, isGroup)

	inGroup, err := f.store.UserInGroup(ctx, f.user.ID, group.ID)
	require.NoError(t, err)
	assert.True(t, inGroup)

	roles, err := f.store.RolesForUser(ctx, f.user.ID, f.project.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Developer", roles[0].Name)
	assert.True(t, roles[0].HasPermission(types.PermEditIssues))
}

func TestSettingsOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.inTx(t, func(tx storage.Tx) error { return tx.SetSetting(ctx, "cross_project_relations", "0") })
	f.inTx(t, func(tx storage.Tx) error { return tx.SetSetting(ctx, "cross_project_relations", "1") })

	got, err := f.store.GetSetting(ctx, "cross_project_relations")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	_, err = f.store.GetSetting(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunInTransactionRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.SetSetting(ctx, "ephemeral", "1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = f.store.GetSetting(ctx, "ephemeral")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubtreeAndLeafQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.insertIssue(t, nil)
	child := f.insertIssue(t, nil)
	grandchild := f.insertIssue(t, nil)

	// hand-built tree: root [1,6], child [2,5], grandchild [3,4]
	parent1, parent2 := root.ID, child.ID
	f.inTx(t, func(tx storage.Tx) error {
		return tx.ApplyTreeUpdates(ctx, []types.TreeUpdate{
			{ID: root.ID, RootID: root.ID, Lft: 1, Rgt: 6},
			{ID: child.ID, ParentID: &parent1, RootID: root.ID, Lft: 2, Rgt: 5},
			{ID: grandchild.ID, ParentID: &parent2, RootID: root.ID, Lft: 3, Rgt: 4},
		})
	})

	subtree, err := f.store.SubtreeIssues(ctx, root.ID, 2, 5)
	require.NoError(t, err)
	require.Len(t, subtree, 2)
	assert.Equal(t, child.ID, subtree[0].ID)

	leaves, err := f.store.LeafIssues(ctx, root.ID, 1, 6)
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, grandchild.ID, leaves[0].ID)

	children, err := f.store.ChildIssues(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	nodes, err := f.store.TreeNodes(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}

func TestProjectLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	byIdent, err := f.store.FindProjectByIdentifier(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, f.project.ID, byIdent.ID)
	assert.Equal(t, []int64{f.tracker.ID}, byIdent.TrackerIDs)

	_, err = f.store.FindProjectByIdentifier(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)

	projects, err := f.store.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Demo", projects[0].Name)
}

func TestDefaultLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.store.DefaultStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.status.ID, status.ID)

	priority, err := f.store.DefaultPriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.priority.ID, priority.ID)

	user, err := f.store.GetUserByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
}
