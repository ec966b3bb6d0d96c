package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the architect, builders, utils, and annotations for this project",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		state, err := app.orch.Status()
		if err != nil {
			return err
		}

		if state.Architect == nil {
			fmt.Println("architect: not running")
		} else {
			fmt.Printf("architect: pid %d, port %d, session %s\n",
				state.Architect.PID, state.Architect.Port, state.Architect.SessionName)
		}

		fmt.Println()
		if len(state.Builders) == 0 {
			fmt.Println("No builders")
		} else {
			fmt.Printf("%-10s %-20s %-8s %-14s %-8s %s\n", "ID", "NAME", "TYPE", "STATUS", "PORT", "BRANCH")
			for _, b := range state.Builders {
				fmt.Printf("%-10s %-20s %-8s %-14s %-8d %s\n",
					b.ID, truncate(b.Name, 20), b.Type, b.Status, b.Port, b.Branch)
			}
		}

		fmt.Println()
		if len(state.Utils) == 0 {
			fmt.Println("No util terminals")
		} else {
			fmt.Printf("%-10s %-20s %s\n", "ID", "NAME", "PORT")
			for _, u := range state.Utils {
				fmt.Printf("%-10s %-20s %d\n", u.ID, truncate(u.Name, 20), u.Port)
			}
		}

		fmt.Println()
		fmt.Printf("%d annotation(s) open\n", len(state.Annotations))
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
