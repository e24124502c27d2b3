package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/types"
)

var relateCmd = &cobra.Command{
	Use:   "relate FROM TYPE TO",
	Short: "Add a relation between two issues",
	Long: `Add a relation between two issues.

TYPE is one of: relates, duplicates, blocks, precedes, follows.
A precedes relation schedules TO after FROM; --delay adds slack days.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		from, err := parseIssueID(args[0])
		if err != nil {
			return err
		}
		relType := types.RelationType(args[1])
		if !relType.IsValid() {
			return fmt.Errorf("unknown relation type %q", args[1])
		}
		to, err := parseIssueID(args[2])
		if err != nil {
			return err
		}
		delay, _ := cmd.Flags().GetInt("delay")

		app, closer, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closer()

		rel, err := app.svc.AddRelation(ctx, app.user, &types.Relation{
			IssueFromID: from,
			IssueToID:   to,
			Type:        relType,
			Delay:       delay,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added relation #%d: #%d %s #%d\n", rel.ID, rel.IssueFromID, rel.Type, rel.IssueToID)
		return nil
	},
}

var unrelateCmd = &cobra.Command{
	Use:   "unrelate RELATION_ID",
	Short: "Remove a relation",
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

		if err := app.svc.RemoveRelation(ctx, app.user, id); err != nil {
			return err
		}
		fmt.Printf("Removed relation #%d\n", id)
		return nil
	},
}

func init() {
	relateCmd.Flags().Int("delay", 0, "slack days for precedes relations")
}
