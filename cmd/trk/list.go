package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/types"
	"github.com/edavis10/issuekit/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, closer, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closer()
		store := app.svc.Store()

		projectArg, _ := cmd.Flags().GetString("project")
		var projects []*types.Project
		if projectArg != "" {
			p, err := resolveProject(ctx, store, projectArg)
			if err != nil {
				return err
			}
			projects = append(projects, p)
		} else {
			projects, err = store.ListProjects(ctx)
			if err != nil {
				return err
			}
		}

		showClosed, _ := cmd.Flags().GetBool("closed")
		asTree, _ := cmd.Flags().GetBool("tree")

		for _, project := range projects {
			issues, err := store.ProjectIssues(ctx, project.ID)
			if err != nil {
				return err
			}
			refs, err := loadRefs(ctx, store, issues...)
			if err != nil {
				return err
			}
			if !showClosed {
				issues = openOnly(issues, refs)
			}
			if len(issues) == 0 {
				continue
			}
			if len(projects) > 1 {
				fmt.Println(ui.Header(project.Name))
			}
			if asTree {
				fmt.Print(ui.RenderTree(issues, refs))
			} else {
				fmt.Print(ui.RenderList(issues, refs))
			}
		}
		return nil
	},
}

func openOnly(issues []*types.Issue, refs *ui.Refs) []*types.Issue {
	out := issues[:0]
	for _, issue := range issues {
		if s, ok := refs.Statuses[issue.StatusID]; ok && s.IsClosed {
			continue
		}
		out = append(out, issue)
	}
	return out
}

func init() {
	listCmd.Flags().StringP("project", "p", "", "project id or identifier (default all)")
	listCmd.Flags().Bool("closed", false, "include closed issues")
	listCmd.Flags().Bool("tree", true, "indent subtasks under parents")
}
