package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentfarm/agentfarm/pkg/orchestrator"
)

var sendCmd = &cobra.Command{
	Use:   "send [BUILDER_ID] MESSAGE",
	Short: "Deliver a message into a builder's multiplexer session via paste-buffer",
	Long: `Delivers message via the host multiplexer's paste-buffer mechanism,
never by character-by-character injection, which truncates or corrupts
around 256 bytes (§4.5). Either name one builder or pass --all. With
--file, MESSAGE is a project-relative path whose contents are read and
delivered in place of literal text.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		includeFile, _ := cmd.Flags().GetBool("file")
		interrupt, _ := cmd.Flags().GetBool("interrupt")
		raw, _ := cmd.Flags().GetBool("raw")
		noEnter, _ := cmd.Flags().GetBool("no-enter")

		var target, message string
		switch {
		case all && len(args) == 1:
			message = args[0]
		case !all && len(args) == 2:
			target, message = args[0], args[1]
		default:
			return fmt.Errorf("send requires BUILDER_ID MESSAGE, or MESSAGE with --all")
		}

		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := orchestrator.SendOptions{
			All:       all,
			File:      includeFile,
			Interrupt: interrupt,
			Raw:       raw,
			NoEnter:   noEnter,
		}
		if err := app.orch.Send(context.Background(), target, message, opts); err != nil {
			return err
		}
		fmt.Println("sent")
		return nil
	},
}

func init() {
	sendCmd.Flags().Bool("all", false, "Broadcast to every builder")
	sendCmd.Flags().Bool("file", false, "Treat MESSAGE as a project-relative file path and send its contents")
	sendCmd.Flags().Bool("interrupt", false, "Send an interrupt (Ctrl-C) before the message")
	sendCmd.Flags().Bool("raw", false, "Skip the standard [sender]\\n...\\n message framing")
	sendCmd.Flags().Bool("no-enter", false, "Skip the trailing submit key")
}
