package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop every builder, util, and the architect for this project",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.orch.Stop(context.Background()); err != nil {
			return err
		}
		fmt.Println("agent-farm stopped (port block retained for stability)")
		return nil
	},
}
