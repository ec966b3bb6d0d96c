package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/orchestrator"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Spawn a new builder (spec, task, protocol, shell, or worktree mode)",
	Long: `Exactly one of --project, --task, --protocol, --shell, or --worktree
selects the builder mode (§4.5); they differ only in whether a worktree and
branch are created and what initial prompt is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		task, _ := cmd.Flags().GetString("task")
		protocol, _ := cmd.Flags().GetString("protocol")
		shell, _ := cmd.Flags().GetBool("shell")
		worktreeOnly, _ := cmd.Flags().GetBool("worktree")
		filesCSV, _ := cmd.Flags().GetString("files")
		noRole, _ := cmd.Flags().GetBool("no-role")
		name, _ := cmd.Flags().GetString("name")
		trackingIssue, _ := cmd.Flags().GetInt("tracking-issue")

		opts, err := resolveSpawnOptions(project, task, protocol, shell, worktreeOnly)
		if err != nil {
			return err
		}
		opts.Name = name
		opts.NoRole = noRole
		opts.TrackingIssue = trackingIssue
		if filesCSV != "" {
			for _, f := range strings.Split(filesCSV, ",") {
				if f = strings.TrimSpace(f); f != "" {
					opts.Files = append(opts.Files, f)
				}
			}
		}

		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		basePort, err := app.requireBasePort()
		if err != nil {
			return err
		}

		builder, err := app.orch.Spawn(context.Background(), basePort, opts)
		if err != nil {
			return err
		}

		fmt.Printf("spawned builder %s (%s) on port %d\n", builder.ID, builder.Type, builder.Port)
		if builder.WorktreePath != "" {
			fmt.Printf("  worktree: %s (branch %s)\n", builder.WorktreePath, builder.Branch)
		}
		return nil
	},
}

func resolveSpawnOptions(project, task, protocol string, shell, worktreeOnly bool) (orchestrator.SpawnOptions, error) {
	set := 0
	if project != "" {
		set++
	}
	if task != "" {
		set++
	}
	if protocol != "" {
		set++
	}
	if shell {
		set++
	}
	if worktreeOnly {
		set++
	}
	if set != 1 {
		return orchestrator.SpawnOptions{}, fmt.Errorf("exactly one of --project, --task, --protocol, --shell, --worktree is required")
	}

	switch {
	case project != "":
		return orchestrator.SpawnOptions{Mode: orchestrator.SpawnSpec, Name: project}, nil
	case task != "":
		return orchestrator.SpawnOptions{Mode: orchestrator.SpawnTask, TaskText: task}, nil
	case protocol != "":
		return orchestrator.SpawnOptions{Mode: orchestrator.SpawnProtocol, ProtocolName: protocol}, nil
	case shell:
		return orchestrator.SpawnOptions{Mode: orchestrator.SpawnShell}, nil
	default:
		return orchestrator.SpawnOptions{Mode: orchestrator.SpawnWorktree}, nil
	}
}

func init() {
	spawnCmd.Flags().String("project", "", "Spawn a spec builder for this spec/project id")
	spawnCmd.Flags().String("task", "", "Spawn a task builder with this task text")
	spawnCmd.Flags().String("protocol", "", "Spawn a protocol builder running this protocol")
	spawnCmd.Flags().Bool("shell", false, "Spawn a bare shell builder (no worktree)")
	spawnCmd.Flags().Bool("worktree", false, "Spawn a worktree-only builder with no initial task")
	spawnCmd.Flags().String("files", "", "Comma-separated files to seed into the builder's initial prompt")
	spawnCmd.Flags().Bool("no-role", false, "Skip writing .builder-role.md")
	spawnCmd.Flags().String("name", "", "Human-readable builder name")
	spawnCmd.Flags().Int("tracking-issue", 0, "Optional tracking issue number")
}
