package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history ID",
	Short: "Show an issue's change history",
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

		issue, err := store.GetIssue(ctx, id)
		if err != nil {
			return err
		}
		journals, err := store.JournalsForIssue(ctx, id)
		if err != nil {
			return err
		}
		if len(journals) == 0 {
			fmt.Printf("Issue #%d has no recorded changes.\n", id)
			return nil
		}

		refs, err := loadRefs(ctx, store, issue)
		if err != nil {
			return err
		}
		for _, j := range journals {
			loadUserName(ctx, store, refs, j.UserID)
		}
		fmt.Print(ui.RenderHistory(journals, refs))
		return nil
	},
}
