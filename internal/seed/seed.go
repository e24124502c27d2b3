// Package seed installs the reference data a fresh tracker database needs:
// trackers, statuses, priorities, roles with their permissions, an initial
// workflow, an admin account and a first project.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

//go:embed defaults.toml
var defaultsTOML []byte

// Fixture is the parsed shape of a seed file.
type Fixture struct {
	Trackers []struct {
		Name     string `toml:"name"`
		Position int    `toml:"position"`
	} `toml:"trackers"`
	Statuses []struct {
		Name             string `toml:"name"`
		Position         int    `toml:"position"`
		Closed           bool   `toml:"closed"`
		Default          bool   `toml:"default"`
		DefaultDoneRatio *int   `toml:"default_done_ratio"`
	} `toml:"statuses"`
	Priorities []struct {
		Name     string `toml:"name"`
		Position int    `toml:"position"`
		Default  bool   `toml:"default"`
	} `toml:"priorities"`
	Roles []struct {
		Name        string   `toml:"name"`
		Position    int      `toml:"position"`
		Permissions []string `toml:"permissions"`
	} `toml:"roles"`
	Workflow struct {
		// OpenTransitions grants every role every transition between the
		// seeded statuses, per tracker.
		OpenTransitions bool `toml:"open_transitions"`
	} `toml:"workflow"`
	Settings map[string]string `toml:"settings"`
}

// Options name the initial entities created besides the fixture data.
type Options struct {
	ProjectName       string
	ProjectIdentifier string
	AdminLogin        string
	AdminName         string
	AdminMail         string
}

// Result reports what Install created.
type Result struct {
	Project *types.Project
	Admin   *types.User
}

// Parse decodes a TOML fixture.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed fixture: %w", err)
	}
	return &f, nil
}

// Defaults returns the embedded fixture.
func Defaults() *Fixture {
	f, err := Parse(defaultsTOML)
	if err != nil {
		panic(err)
	}
	return f
}

// Install writes the fixture and the initial project and admin account in
// one transaction. The admin holds the first role on the project, though as
// an administrator the membership is informational.
func Install(ctx context.Context, store storage.Store, f *Fixture, opts Options) (*Result, error) {
	result := &Result{}
	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		var trackerIDs []int64
		for _, t := range f.Trackers {
			tracker := &types.Tracker{Name: t.Name, Position: t.Position}
			if err := tx.InsertTracker(ctx, tracker); err != nil {
				return err
			}
			trackerIDs = append(trackerIDs, tracker.ID)
		}

		var statusIDs []int64
		for _, s := range f.Statuses {
			status := &types.Status{
				Name:             s.Name,
				Position:         s.Position,
				IsClosed:         s.Closed,
				IsDefault:        s.Default,
				DefaultDoneRatio: s.DefaultDoneRatio,
			}
			if err := tx.InsertStatus(ctx, status); err != nil {
				return err
			}
			statusIDs = append(statusIDs, status.ID)
		}

		for _, p := range f.Priorities {
			priority := &types.Priority{Name: p.Name, Position: p.Position, IsDefault: p.Default}
			if err := tx.InsertPriority(ctx, priority); err != nil {
				return err
			}
		}

		var roleIDs []int64
		for _, r := range f.Roles {
			role := &types.Role{Name: r.Name, Position: r.Position}
			for _, p := range r.Permissions {
				role.Permissions = append(role.Permissions, types.Permission(p))
			}
			if err := tx.InsertRole(ctx, role); err != nil {
				return err
			}
			roleIDs = append(roleIDs, role.ID)
		}

		if f.Workflow.OpenTransitions {
			if err := openWorkflow(ctx, tx, trackerIDs, statusIDs, roleIDs); err != nil {
				return err
			}
		}

		for name, value := range f.Settings {
			if err := tx.SetSetting(ctx, name, value); err != nil {
				return err
			}
		}

		project := &types.Project{
			Identifier: opts.ProjectIdentifier,
			Name:       opts.ProjectName,
			TrackerIDs: trackerIDs,
		}
		if err := tx.InsertProject(ctx, project); err != nil {
			return err
		}
		result.Project = project

		admin := &types.User{
			Login: opts.AdminLogin,
			Name:  opts.AdminName,
			Mail:  opts.AdminMail,
			Admin: true,
		}
		if err := tx.InsertUser(ctx, admin); err != nil {
			return err
		}
		result.Admin = admin
		if len(roleIDs) > 0 {
			if err := tx.AddMember(ctx, admin.ID, project.ID, roleIDs[:1]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// openWorkflow grants every role every transition between distinct statuses
// on every tracker.
func openWorkflow(ctx context.Context, tx storage.Tx, trackerIDs, statusIDs, roleIDs []int64) error {
	for _, trackerID := range trackerIDs {
		for _, roleID := range roleIDs {
			for _, from := range statusIDs {
				for _, to := range statusIDs {
					if from == to {
						continue
					}
					rule := &types.WorkflowRule{
						RoleID:      roleID,
						TrackerID:   trackerID,
						OldStatusID: from,
						NewStatusID: to,
					}
					if err := tx.InsertWorkflowRule(ctx, rule); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
