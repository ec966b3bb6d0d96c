package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename BUILDER_ID NAME",
	Short: "Change a builder's human-readable name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.orch.Rename(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("renamed %s to %q\n", args[0], args[1])
		return nil
	},
}
