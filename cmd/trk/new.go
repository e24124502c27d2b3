package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/lifecycle"
	"github.com/edavis10/issuekit/internal/timeparsing"
	"github.com/edavis10/issuekit/internal/types"
)

var newCmd = &cobra.Command{
	Use:   "new SUBJECT",
	Short: "Create an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, closer, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closer()
		store := app.svc.Store()

		projectArg, _ := cmd.Flags().GetString("project")
		if projectArg == "" {
			return fmt.Errorf("--project is required")
		}
		project, err := resolveProject(ctx, store, projectArg)
		if err != nil {
			return err
		}

		attrs := map[string]string{types.AttrSubject: args[0]}
		if description, _ := cmd.Flags().GetString("description"); description != "" {
			attrs[types.AttrDescription] = description
		}
		if trackerName, _ := cmd.Flags().GetString("tracker"); trackerName != "" {
			tracker, err := resolveTracker(ctx, store, trackerName)
			if err != nil {
				return err
			}
			attrs[types.AttrTrackerID] = strconv.FormatInt(tracker.ID, 10)
		}
		if priorityName, _ := cmd.Flags().GetString("priority"); priorityName != "" {
			priority, err := resolvePriority(ctx, store, priorityName)
			if err != nil {
				return err
			}
			attrs[types.AttrPriorityID] = strconv.FormatInt(priority.ID, 10)
		}
		if assignee, _ := cmd.Flags().GetString("assignee"); assignee != "" {
			u, err := store.GetUserByLogin(ctx, assignee)
			if err != nil {
				return err
			}
			attrs[types.AttrAssignedToID] = strconv.FormatInt(u.ID, 10)
		}
		if parent, _ := cmd.Flags().GetString("parent"); parent != "" {
			id, err := parseIssueID(parent)
			if err != nil {
				return err
			}
			attrs[types.AttrParentID] = strconv.FormatInt(id, 10)
		}
		if err := addDateFlag(cmd, attrs, "start", types.AttrStartDate); err != nil {
			return err
		}
		if err := addDateFlag(cmd, attrs, "due", types.AttrDueDate); err != nil {
			return err
		}
		if estimate, _ := cmd.Flags().GetFloat64("estimate"); estimate > 0 {
			attrs[types.AttrEstimatedHours] = strconv.FormatFloat(estimate, 'f', -1, 64)
		}

		cfFlags, _ := cmd.Flags().GetStringArray("cf")
		custom, err := parseCustomFlags(cfFlags)
		if err != nil {
			return err
		}

		issue, err := app.svc.Create(ctx, app.user, project.ID, lifecycle.Edit{Attrs: attrs, Custom: custom})
		if err != nil {
			return err
		}
		fmt.Printf("Created issue #%d: %s\n", issue.ID, issue.Subject)
		return nil
	},
}

func addDateFlag(cmd *cobra.Command, attrs map[string]string, flag, attr string) error {
	raw, _ := cmd.Flags().GetString(flag)
	if raw == "" {
		return nil
	}
	d, err := timeparsing.ParseDate(raw, time.Now())
	if err != nil {
		return err
	}
	if d != nil {
		attrs[attr] = d.String()
	}
	return nil
}

func init() {
	newCmd.Flags().StringP("project", "p", "", "project id or identifier")
	newCmd.Flags().StringP("description", "d", "", "issue description (markdown)")
	newCmd.Flags().String("tracker", "", "tracker name")
	newCmd.Flags().String("priority", "", "priority name")
	newCmd.Flags().StringP("assignee", "a", "", "assignee login")
	newCmd.Flags().String("parent", "", "parent issue id")
	newCmd.Flags().String("start", "", "start date (YYYY-MM-DD or natural language)")
	newCmd.Flags().String("due", "", "due date (YYYY-MM-DD or natural language)")
	newCmd.Flags().Float64("estimate", 0, "estimated hours")
	newCmd.Flags().StringArray("cf", nil, "custom field value as id=value (repeatable)")
}
