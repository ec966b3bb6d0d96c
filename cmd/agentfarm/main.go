package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[error] %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentfarm",
	Short: "Orchestrate concurrent AI-coding builder processes in isolated worktrees",
	Long: `Agent Farm runs many concurrent AI-coding "builder" processes on a
single workstation, each inside its own terminal multiplexer session and its
own isolated git worktree, exposed through a single browser dashboard.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("multiplexer", "", "Terminal multiplexer binary (overrides config file, default tmux)")
	rootCmd.PersistentFlags().String("bridge-bin", "", "Web-terminal bridge binary (overrides config file, default ttyd)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(utilCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(tunnelCmd)
	rootCmd.AddCommand(towerCmd)
	rootCmd.AddCommand(dashboardServeCmd) // internal: exec'd by start as the long-lived dashboard child
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOut,
	})
}
