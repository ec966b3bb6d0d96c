package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/config"
	"github.com/agentfarm/agentfarm/pkg/dashboard"
	"github.com/agentfarm/agentfarm/pkg/log"
	"github.com/agentfarm/agentfarm/pkg/orchestrator"
	"github.com/agentfarm/agentfarm/pkg/registry"
	"github.com/agentfarm/agentfarm/pkg/storage"
	"github.com/agentfarm/agentfarm/pkg/supervisor"
	"github.com/agentfarm/agentfarm/pkg/worktree"
)

// launchDashboard implements orchestrator.DashboardLauncher by re-exec'ing
// this same binary as a detached child running the hidden dashboard-serve
// command — the Orchestrator itself is short-lived (§4.5); the Dashboard
// Server is the only long-lived coordinator inside a project.
func launchDashboard(ctx context.Context, projectPath string, basePort int) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable path: %w", err)
	}

	logPath := filepath.Join(projectPath, ".agent-farm", "dashboard.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open dashboard log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(self, "__dashboard-serve", "--project", projectPath, "--port", fmt.Sprint(basePort))
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start dashboard server: %w", err)
	}
	pid := cmd.Process.Pid
	// Setsid already detached the child from this process group; release our
	// handle so it isn't reaped as our own child.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release dashboard process handle: %w", err)
	}
	return pid, nil
}

var dashboardServeCmd = &cobra.Command{
	Use:    "__dashboard-serve",
	Short:  "Internal: run the Dashboard Server for one project in the foreground",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath, _ := cmd.Flags().GetString("project")
		basePort, _ := cmd.Flags().GetInt("port")
		allowInsecureRemote, _ := cmd.Flags().GetBool("allow-insecure-remote")
		uiDir, _ := cmd.Flags().GetString("ui-dir")

		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load(home)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("multiplexer"); v != "" {
			cfg.Multiplexer = v
		}
		if v, _ := cmd.Flags().GetString("bridge-bin"); v != "" {
			cfg.BridgeBin = v
		}

		reg, err := registry.Open(cfg.GlobalDBPath)
		if err != nil {
			return err
		}
		defer reg.Close()

		dbPath := filepath.Join(projectPath, ".agent-farm", "state.db")
		store, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		scratchDir := filepath.Join(projectPath, ".agent-farm", "scratch")
		sup := supervisor.New(cfg.Multiplexer, cfg.BridgeBin, scratchDir, log.WithComponent("supervisor"))
		wt := worktree.New(projectPath)
		orch := orchestrator.New(projectPath, store, reg, sup, wt, launchDashboard, cfg.SpawnRetries, log.WithComponent("orchestrator"))

		srv := dashboard.New(dashboard.Config{
			ProjectRoot:  projectPath,
			BasePort:     basePort,
			Store:        store,
			Orchestrator: orch,
			UIDir:        uiDir,
		}, log.WithComponent("dashboard"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return dashboard.Serve(ctx, srv, basePort, allowInsecureRemote)
	},
}

func init() {
	dashboardServeCmd.Flags().String("project", "", "Project root directory")
	dashboardServeCmd.Flags().Int("port", 0, "Dashboard base port")
	dashboardServeCmd.Flags().Bool("allow-insecure-remote", false, "Bind to all interfaces instead of loopback only")
	dashboardServeCmd.Flags().String("ui-dir", "", "Static dashboard UI bundle directory")
	dashboardServeCmd.MarkFlagRequired("project")
	dashboardServeCmd.MarkFlagRequired("port")
}
