package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/orchestrator"
)

var utilCmd = &cobra.Command{
	Use:   "util",
	Short: "Open a utility shell terminal, optionally in its own worktree",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		withWorktree, _ := cmd.Flags().GetBool("worktree")

		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		basePort, err := app.requireBasePort()
		if err != nil {
			return err
		}

		util, err := app.orch.SpawnUtil(context.Background(), basePort, orchestrator.SpawnUtilOptions{
			Name:     name,
			Worktree: withWorktree,
		})
		if err != nil {
			return err
		}

		fmt.Printf("opened util %s on port %d\n", util.ID, util.Port)
		return nil
	},
}

func init() {
	utilCmd.Flags().String("name", "", "Human-readable name for this util terminal")
	utilCmd.Flags().Bool("worktree", false, "Back this util terminal with its own worktree")
}
