package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the architect and dashboard for this project",
	RunE: func(cmd *cobra.Command, args []string) error {
		killOrphans, _ := cmd.Flags().GetBool("kill-orphans")
		noOpen, _ := cmd.Flags().GetBool("no-open")

		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if !killOrphans {
			killOrphans = app.cfg.KillOrphans
		}

		basePort, err := app.orch.Start(context.Background(), os.Getpid(), killOrphans)
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://localhost:%d/", basePort)
		fmt.Printf("agent-farm dashboard running at %s\n", url)
		if !noOpen {
			if err := openBrowser(url); err != nil {
				app.log.Warn().Err(err).Msg("could not open browser automatically")
			}
		}
		return nil
	},
}

func init() {
	startCmd.Flags().Bool("kill-orphans", false, "Non-interactively terminate orphaned multiplexer sessions found at startup")
	startCmd.Flags().Bool("no-open", false, "Do not open a browser window")
}

func openBrowser(url string) error {
	var name string
	var args []string
	switch runtime.GOOS {
	case "darwin":
		name, args = "open", []string{url}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		name, args = "xdg-open", []string{url}
	}
	return exec.Command(name, args...).Start()
}
