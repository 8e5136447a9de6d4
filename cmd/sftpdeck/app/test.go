package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test [connection]",
		Short: "Check that a profile can connect and authenticate",
		Long: `Connect to the profile's host, authenticate and open the SFTP subsystem.

Without an argument the default profile is tested. The command exits non-zero
when the test fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := o.connection(nameArg(args))
			if err != nil {
				return err
			}

			d, err := o.dispatcher()
			if err != nil {
				return err
			}

			if !d.TestConnection(cmd.Context(), conn) {
				return fmt.Errorf("connection %q: test failed", conn.Label())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "connection %q: ok\n", conn.Label())
			return nil
		},
	}
}
