package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup BUILDER_ID",
	Short: "Tear down a builder's worktree, branch, bridge, and session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.orch.Cleanup(context.Background(), args[0], force); err != nil {
			return err
		}
		fmt.Printf("cleaned up builder %s\n", args[0])
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("force", false, "Remove the worktree even if it has uncommitted changes")
}
