package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/pathsafe"
	"github.com/agentfarm/agentfarm/pkg/types"
)

var openCmd = &cobra.Command{
	Use:   "open FILE",
	Short: "Open a project-relative file in a new annotation viewer tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := pathsafe.Validate(app.projectRoot, args[0]); err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}

		basePort, err := app.requireBasePort()
		if err != nil {
			return err
		}

		annotation, err := app.orch.SpawnAnnotation(context.Background(), basePort, args[0], types.AnnotationParentArchitect, "")
		if err != nil {
			return err
		}

		fmt.Printf("opened %s as annotation %s on port %d\n", args[0], annotation.ID, annotation.Port)
		return nil
	},
}
