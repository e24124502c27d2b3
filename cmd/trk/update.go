package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/lifecycle"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

var updateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update an issue's attributes, status or parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseIssueID(args[0])
		if err != nil {
			return err
		}
		app, closer, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closer()
		store := app.svc.Store()

		attrs := map[string]string{}
		if cmd.Flags().Changed("subject") {
			subject, _ := cmd.Flags().GetString("subject")
			attrs[types.AttrSubject] = subject
		}
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			attrs[types.AttrDescription] = description
		}
		if statusName, _ := cmd.Flags().GetString("status"); statusName != "" {
			status, err := resolveStatus(ctx, store, statusName)
			if err != nil {
				return err
			}
			attrs[types.AttrStatusID] = strconv.FormatInt(status.ID, 10)
		}
		if priorityName, _ := cmd.Flags().GetString("priority"); priorityName != "" {
			priority, err := resolvePriority(ctx, store, priorityName)
			if err != nil {
				return err
			}
			attrs[types.AttrPriorityID] = strconv.FormatInt(priority.ID, 10)
		}
		if trackerName, _ := cmd.Flags().GetString("tracker"); trackerName != "" {
			tracker, err := resolveTracker(ctx, store, trackerName)
			if err != nil {
				return err
			}
			attrs[types.AttrTrackerID] = strconv.FormatInt(tracker.ID, 10)
		}
		if cmd.Flags().Changed("assignee") {
			assignee, _ := cmd.Flags().GetString("assignee")
			if assignee == "" {
				attrs[types.AttrAssignedToID] = ""
			} else {
				u, err := store.GetUserByLogin(ctx, assignee)
				if err != nil {
					return err
				}
				attrs[types.AttrAssignedToID] = strconv.FormatInt(u.ID, 10)
			}
		}
		if cmd.Flags().Changed("parent") {
			parent, _ := cmd.Flags().GetString("parent")
			if parent == "" {
				attrs[types.AttrParentID] = ""
			} else {
				pid, err := parseIssueID(parent)
				if err != nil {
					return err
				}
				attrs[types.AttrParentID] = strconv.FormatInt(pid, 10)
			}
		}
		if cmd.Flags().Changed("start") {
			if err := addDateFlag(cmd, attrs, "start", types.AttrStartDate); err != nil {
				return err
			}
			if _, ok := attrs[types.AttrStartDate]; !ok {
				attrs[types.AttrStartDate] = ""
			}
		}
		if cmd.Flags().Changed("due") {
			if err := addDateFlag(cmd, attrs, "due", types.AttrDueDate); err != nil {
				return err
			}
			if _, ok := attrs[types.AttrDueDate]; !ok {
				attrs[types.AttrDueDate] = ""
			}
		}
		if cmd.Flags().Changed("done") {
			done, _ := cmd.Flags().GetInt("done")
			attrs[types.AttrDoneRatio] = strconv.Itoa(done)
		}
		if cmd.Flags().Changed("estimate") {
			estimate, _ := cmd.Flags().GetFloat64("estimate")
			if estimate <= 0 {
				attrs[types.AttrEstimatedHours] = ""
			} else {
				attrs[types.AttrEstimatedHours] = strconv.FormatFloat(estimate, 'f', -1, 64)
			}
		}

		cfFlags, _ := cmd.Flags().GetStringArray("cf")
		custom, err := parseCustomFlags(cfFlags)
		if err != nil {
			return err
		}
		notes, _ := cmd.Flags().GetString("notes")

		if len(attrs) == 0 && len(custom) == 0 && notes == "" {
			return errors.New("nothing to change")
		}

		edit := lifecycle.Edit{Attrs: attrs, Custom: custom, Notes: notes}
		if cmd.Flags().Changed("lock-version") {
			lv, _ := cmd.Flags().GetInt("lock-version")
			edit.LockVersion = &lv
		}

		issue, err := app.svc.Update(ctx, app.user, id, edit)
		if err != nil {
			if errors.Is(err, storage.ErrStaleObject) {
				return fmt.Errorf("issue #%d was changed by someone else, reload and retry", id)
			}
			return err
		}
		fmt.Printf("Updated issue #%d (now at version %d)\n", issue.ID, issue.LockVersion)
		return nil
	},
}

func init() {
	updateCmd.Flags().String("subject", "", "new subject")
	updateCmd.Flags().StringP("description", "d", "", "new description")
	updateCmd.Flags().StringP("status", "s", "", "new status name")
	updateCmd.Flags().String("priority", "", "new priority name")
	updateCmd.Flags().String("tracker", "", "new tracker name")
	updateCmd.Flags().StringP("assignee", "a", "", "assignee login (empty to unassign)")
	updateCmd.Flags().String("parent", "", "parent issue id (empty to detach)")
	updateCmd.Flags().String("start", "", "start date (empty to clear)")
	updateCmd.Flags().String("due", "", "due date (empty to clear)")
	updateCmd.Flags().Int("done", 0, "done ratio 0-100")
	updateCmd.Flags().Float64("estimate", 0, "estimated hours (0 to clear)")
	updateCmd.Flags().StringArray("cf", nil, "custom field value as id=value (repeatable)")
	updateCmd.Flags().StringP("notes", "m", "", "journal notes")
	updateCmd.Flags().Int("lock-version", 0, "expected lock version (optimistic concurrency)")
}
