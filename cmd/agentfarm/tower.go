package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/config"
	"github.com/agentfarm/agentfarm/pkg/log"
	"github.com/agentfarm/agentfarm/pkg/registry"
	"github.com/agentfarm/agentfarm/pkg/tower"
)

// towerCmd runs the Tower Server (§4.7): a host-level endpoint enumerating
// every running Orchestrator instance by querying the Port Registry. It has
// no canonical flag surface in spec.md's command list; it's a thin wrapper
// over the registry, named for the component it exposes.
var towerCmd = &cobra.Command{
	Use:   "tower",
	Short: "Run the host-level Tower Server listing every running project",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load(home)
		if err != nil {
			return err
		}

		reg, err := registry.Open(cfg.GlobalDBPath)
		if err != nil {
			return err
		}
		defer reg.Close()

		srv := tower.New(reg, log.WithComponent("tower"))
		addr := fmt.Sprintf("127.0.0.1:%d", port)

		httpSrv := &http.Server{Addr: addr, Handler: srv}
		errCh := make(chan error, 1)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		fmt.Printf("tower listening at http://%s/\n", addr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
		case err := <-errCh:
			return err
		}
		return httpSrv.Close()
	},
}

func init() {
	towerCmd.Flags().Int("port", 4199, "Port to listen on")
}
