package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/lifecycle"
)

var moveCmd = &cobra.Command{
	Use:   "move ID... --to PROJECT",
	Short: "Move issues to another project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMoveOrCopy(cmd, args, false)
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy ID... --to PROJECT",
	Short: "Copy issues to another project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMoveOrCopy(cmd, args, true)
	},
}

func runMoveOrCopy(cmd *cobra.Command, args []string, asCopy bool) error {
	ctx := cmd.Context()
	ids, err := parseIssueIDs(args)
	if err != nil {
		return err
	}
	app, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()
	store := app.svc.Store()

	target, _ := cmd.Flags().GetString("to")
	if target == "" {
		return fmt.Errorf("--to is required")
	}
	project, err := resolveProject(ctx, store, target)
	if err != nil {
		return err
	}

	opts := lifecycle.MoveOptions{
		TargetProjectID: project.ID,
		Copy:            asCopy,
	}
	if trackerName, _ := cmd.Flags().GetString("tracker"); trackerName != "" {
		tracker, err := resolveTracker(ctx, store, trackerName)
		if err != nil {
			return err
		}
		opts.TrackerID = &tracker.ID
	}
	if asCopy {
		opts.CopySubtasks, _ = cmd.Flags().GetBool("subtasks")
		opts.Link, _ = cmd.Flags().GetBool("link")
	}

	result, err := app.svc.MoveOrCopy(ctx, app.user, ids, opts)
	if err != nil {
		return err
	}

	verb := "Moved"
	if asCopy {
		verb = "Copied"
	}
	for id, issue := range result.Done {
		if asCopy {
			fmt.Printf("%s #%d to #%d in %s\n", verb, id, issue.ID, project.Name)
		} else {
			fmt.Printf("%s #%d to %s\n", verb, id, project.Name)
		}
	}
	for id, ferr := range result.Failed {
		fmt.Printf("Failed #%d: %v\n", id, ferr)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d issues failed", len(result.Failed), len(ids))
	}
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{moveCmd, copyCmd} {
		cmd.Flags().String("to", "", "target project id or identifier")
		cmd.Flags().String("tracker", "", "force this tracker on the target")
	}
	copyCmd.Flags().Bool("subtasks", true, "copy the whole subtree")
	copyCmd.Flags().Bool("link", false, "link each copy to its source (copied_to)")
}
