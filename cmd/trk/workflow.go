package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Export or import the workflow tables",
}

var workflowExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write the workflow as YAML (stdout by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, closer, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closer()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return workflow.Export(ctx, app.svc.Store(), out)
	},
}

var workflowImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Add workflow rules from a YAML document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		app, closer, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closer()

		var count int
		err = app.svc.Store().RunInTransaction(ctx, func(tx storage.Tx) error {
			count, err = workflow.Import(ctx, tx, data)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d workflow rules\n", count)
		return nil
	},
}

func init() {
	workflowCmd.AddCommand(workflowExportCmd, workflowImportCmd)
}
