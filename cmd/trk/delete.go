package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an issue and its subtasks",
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

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			issue, err := app.svc.Store().GetIssue(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Delete issue #%d %q and all its subtasks? [y/N] ", issue.ID, issue.Subject)
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := app.svc.Delete(ctx, app.user, id); err != nil {
			return err
		}
		fmt.Printf("Deleted issue #%d\n", id)
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolP("force", "f", false, "skip confirmation")
}
