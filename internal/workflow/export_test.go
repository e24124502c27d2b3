package workflow

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/storage/sqlite"
	"github.com/edavis10/issuekit/internal/types"
)

func exportStore(t *testing.T) (storage.Store, *types.Tracker, []*types.Status, *types.Role) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "wf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tracker := &types.Tracker{Name: "Bug", Position: 1}
	open := &types.Status{Name: "New", Position: 1, IsDefault: true}
	closed := &types.Status{Name: "Closed", Position: 2, IsClosed: true}
	role := &types.Role{Name: "Developer", Position: 1}
	err = store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertTracker(ctx, tracker); err != nil {
			return err
		}
		if err := tx.InsertStatus(ctx, open); err != nil {
			return err
		}
		if err := tx.InsertStatus(ctx, closed); err != nil {
			return err
		}
		return tx.InsertRole(ctx, role)
	})
	require.NoError(t, err)
	return store, tracker, []*types.Status{open, closed}, role
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, tracker, statuses, role := exportStore(t)

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.InsertWorkflowRule(ctx, &types.WorkflowRule{
			RoleID: role.ID, TrackerID: tracker.ID,
			OldStatusID: statuses[0].ID, NewStatusID: statuses[1].ID,
			Assignee: true,
		}); err != nil {
			return err
		}
		return tx.InsertFieldRule(ctx, &types.FieldRule{
			RoleID: role.ID, TrackerID: tracker.ID, StatusID: statuses[0].ID,
			Field: types.AttrDueDate, Rule: types.RuleRequired,
		})
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, store, &buf))
	exported := buf.String()
	assert.Contains(t, exported, "role: Developer")
	assert.Contains(t, exported, "from: New")
	assert.Contains(t, exported, "to: Closed")
	assert.Contains(t, exported, "rule: required")

	// importing into a database seeded with the same names reproduces the
	// tables
	fresh, freshTracker, freshStatuses, freshRole := exportStore(t)
	var imported int
	err = fresh.RunInTransaction(ctx, func(tx storage.Tx) error {
		var err error
		imported, err = Import(ctx, tx, buf.Bytes())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	rules, err := fresh.TransitionRules(ctx, freshTracker.ID, freshStatuses[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, freshRole.ID, rules[0].RoleID)
	assert.Equal(t, freshStatuses[1].ID, rules[0].NewStatusID)
	assert.True(t, rules[0].Assignee)

	fieldRules, err := fresh.FieldRules(ctx, freshTracker.ID, freshStatuses[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, fieldRules, 1)
	assert.Equal(t, types.AttrDueDate, fieldRules[0].Field)
	assert.Equal(t, types.RuleRequired, fieldRules[0].Rule)
}

func TestImportRejectsUnknownNames(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := exportStore(t)

	doc := []byte(`transitions:
  - role: Nobody
    tracker: Bug
    from: New
    to: Closed
`)
	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		_, err := Import(ctx, tx, doc)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestImportRejectsUnknownFieldRule(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := exportStore(t)

	doc := []byte(`fields:
  - role: Developer
    tracker: Bug
    status: New
    field: due_date
    rule: hidden
`)
	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		_, err := Import(ctx, tx, doc)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field rule")
}
