package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/config"
	"github.com/agentfarm/agentfarm/pkg/log"
	"github.com/agentfarm/agentfarm/pkg/orchestrator"
	"github.com/agentfarm/agentfarm/pkg/registry"
	"github.com/agentfarm/agentfarm/pkg/storage"
	"github.com/agentfarm/agentfarm/pkg/supervisor"
	"github.com/agentfarm/agentfarm/pkg/worktree"
)

// appContext bundles everything a command needs against one project
// directory: the resolved config, the open per-project store, the open
// host-global registry, and an Orchestrator wired to both. Close must be
// deferred by every command that builds one.
type appContext struct {
	cfg         config.Config
	projectRoot string
	store       *storage.Store
	reg         *registry.Registry
	orch        *orchestrator.Orchestrator
	log         zerolog.Logger
}

func (a *appContext) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.reg != nil {
		a.reg.Close()
	}
}

// newAppContext resolves config, opens both stores, and builds an
// Orchestrator rooted at the current working directory.
func newAppContext(cmd *cobra.Command) (*appContext, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("multiplexer"); v != "" {
		cfg.Multiplexer = v
	}
	if v, _ := cmd.Flags().GetString("bridge-bin"); v != "" {
		cfg.BridgeBin = v
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	reg, err := registry.Open(cfg.GlobalDBPath)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(projectRoot, ".agent-farm", "state.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		reg.Close()
		return nil, fmt.Errorf("create .agent-farm directory: %w", err)
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		reg.Close()
		return nil, err
	}

	scratchDir := filepath.Join(projectRoot, ".agent-farm", "scratch")
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		store.Close()
		reg.Close()
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	sup := supervisor.New(cfg.Multiplexer, cfg.BridgeBin, scratchDir, log.WithComponent("supervisor"))
	wt := worktree.New(projectRoot)
	orch := orchestrator.New(projectRoot, store, reg, sup, wt, launchDashboard, cfg.SpawnRetries, log.WithComponent("orchestrator"))

	return &appContext{
		cfg:         cfg,
		projectRoot: projectRoot,
		store:       store,
		reg:         reg,
		orch:        orch,
		log:         log.WithComponent("cli"),
	}, nil
}

// requireBasePort resolves the already-registered base port for the current
// project; most commands besides start operate against a project that is
// already running and registered.
func (a *appContext) requireBasePort() (int, error) {
	basePort, err := a.reg.Resolve(a.projectRoot)
	if err != nil {
		return 0, err
	}
	if basePort == 0 {
		return 0, fmt.Errorf("no running agent-farm project found in %s (run 'agentfarm start' first)", a.projectRoot)
	}
	return basePort, nil
}
