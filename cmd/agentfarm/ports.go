package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Inspect or reclaim the host-global Port Registry",
}

var portsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered project and its base port",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		allocations, err := app.orch.PortsList()
		if err != nil {
			return err
		}
		if len(allocations) == 0 {
			fmt.Println("No registered projects")
			return nil
		}

		fmt.Printf("%-8s %-6s %-40s %s\n", "PORT", "EXISTS", "PROJECT", "LAST USED")
		for _, a := range allocations {
			fmt.Printf("%-8d %-6t %-40s %s\n", a.BasePort, a.Exists, a.Path, a.LastUsedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var portsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reclaim registry rows whose project directory no longer exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		removed, remaining, err := app.orch.PortsCleanup()
		if err != nil {
			return err
		}
		for _, path := range removed {
			fmt.Printf("reclaimed: %s\n", path)
		}
		fmt.Printf("%d removed, %d remaining\n", len(removed), remaining)
		return nil
	},
}

func init() {
	portsCmd.AddCommand(portsListCmd)
	portsCmd.AddCommand(portsCleanupCmd)
}
