package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an issue with its subtasks and relations",
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
		issue.CustomValues, err = store.CustomValues(ctx, id)
		if err != nil {
			return err
		}

		refs, err := loadRefs(ctx, store, issue)
		if err != nil {
			return err
		}
		fmt.Print(ui.RenderIssue(issue, refs))

		if !issue.Leaf() {
			subtree, err := store.SubtreeIssues(ctx, issue.RootID, issue.Lft, issue.Rgt)
			if err != nil {
				return err
			}
			if len(subtree) > 1 {
				fmt.Println()
				fmt.Println(ui.Header("Subtasks"))
				fmt.Print(ui.RenderTree(subtree, refs))
			}
		}

		relations, err := store.RelationsOf(ctx, id)
		if err != nil {
			return err
		}
		if len(relations) > 0 {
			fmt.Println()
			fmt.Println(ui.Header("Relations"))
			for _, rel := range relations {
				line := fmt.Sprintf("  #%d %s #%d", rel.IssueFromID, rel.Type, rel.IssueToID)
				if rel.Delay != 0 {
					line += fmt.Sprintf(" (delay %dd)", rel.Delay)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}
