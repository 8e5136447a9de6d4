package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <connection> <command...>",
		Short: "Run a command on the remote host and print its output",
		Long: `Run a command over one SSH exec channel and print its standard output verbatim.

The remote exit status is not reported; standard error is discarded.

Examples:
  sftpdeck exec box uptime
  sftpdeck exec box ls -la /srv`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := o.connection(args[0])
			if err != nil {
				return err
			}

			d, err := o.dispatcher()
			if err != nil {
				return err
			}

			out, err := d.Exec(cmd.Context(), conn, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	// Flags after the connection name belong to the remote command.
	cmd.Flags().SetInterspersed(false)

	return cmd
}
