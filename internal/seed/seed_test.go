package seed_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edavis10/issuekit/internal/seed"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/storage/sqlite"
	"github.com/edavis10/issuekit/internal/types"
)

func TestDefaultsParse(t *testing.T) {
	f := seed.Defaults()
	assert.Len(t, f.Trackers, 3)
	assert.Len(t, f.Statuses, 5)
	assert.Len(t, f.Priorities, 4)
	assert.Len(t, f.Roles, 3)
	assert.True(t, f.Workflow.OpenTransitions)
	assert.Equal(t, "0", f.Settings["cross_project_relations"])
}

func TestInstall(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer store.Close()

	result, err := seed.Install(ctx, store, seed.Defaults(), seed.Options{
		ProjectName:       "Demo",
		ProjectIdentifier: "demo",
		AdminLogin:        "root",
		AdminName:         "Root",
		AdminMail:         "root@example.org",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Project)
	require.NotNil(t, result.Admin)
	assert.True(t, result.Admin.Admin)

	project, err := store.FindProjectByIdentifier(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, project.TrackerIDs, 3)

	status, err := store.DefaultStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "New", status.Name)

	priority, err := store.DefaultPriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Normal", priority.Name)

	closed := findStatus(t, store, "Closed")
	assert.True(t, closed.IsClosed)
	require.NotNil(t, closed.DefaultDoneRatio)
	assert.Equal(t, 100, *closed.DefaultDoneRatio)

	// the open workflow grants every role every transition: 3 roles times
	// 4 targets away from New, per tracker
	rules, err := store.TransitionRules(ctx, project.TrackerIDs[0], status.ID, nil)
	require.NoError(t, err)
	assert.Len(t, rules, 12)

	// the admin is a member through the first seeded role
	roles, err := store.RolesForUser(ctx, result.Admin.ID, project.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Manager", roles[0].Name)
	assert.True(t, roles[0].HasPermission(types.PermMoveIssues))

	setting, err := store.GetSetting(ctx, "cross_project_relations")
	require.NoError(t, err)
	assert.Equal(t, "0", setting)
}

func findStatus(t *testing.T, store storage.Store, name string) *types.Status {
	t.Helper()
	statuses, err := store.ListStatuses(context.Background())
	require.NoError(t, err)
	for _, s := range statuses {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("status %q not seeded", name)
	return nil
}
