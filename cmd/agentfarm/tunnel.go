package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Print the SSH local-forward command for remote access to this dashboard",
	Long: `Agent Farm binds to loopback only and has no authentication of its
own (§1 Non-goals); remote access is achieved exclusively through an
external encrypted tunnel. This prints the ssh -L command to run from the
remote machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		host, _ := cmd.Flags().GetString("host")

		app, err := newAppContext(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		basePort, err := app.requireBasePort()
		if err != nil {
			return err
		}

		if host == "" {
			host, err = os.Hostname()
			if err != nil {
				return fmt.Errorf("resolve hostname: %w", err)
			}
		}
		userAt := ""
		if user != "" {
			userAt = user + "@"
		}

		fmt.Printf("ssh -N -L %d:localhost:%d %s%s\n", basePort, basePort, userAt, host)
		fmt.Printf("then open http://localhost:%d/ on the remote machine\n", basePort)
		return nil
	},
}

func init() {
	tunnelCmd.Flags().String("user", "", "SSH username")
	tunnelCmd.Flags().String("host", "", "SSH host (defaults to this machine's hostname)")
}
