package app

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
)

func newConnectionsCmd(o *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conns"},
		Short:   "List configured connection profiles",
		Long:    `List the connection profiles from the configuration. Passwords and key material are masked.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conns := make([]connection.Connection, 0, len(o.cfg.Connections))
			for _, conn := range o.cfg.Connections {
				conns = append(conns, conn.Redacted())
			}

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(conns)
			case "table":
			default:
				return fmt.Errorf("unknown output format %q (must be table or json)", output)
			}

			if len(conns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No connections configured")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPROTOCOL\tADDRESS\tUSER\tAUTH\tDEFAULT\tREMOTE PATH")
			for _, conn := range conns {
				def := ""
				if conn.Default {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					conn.Name, conn.Protocol, conn.Address(), conn.Username,
					conn.AuthMethod(), def, conn.RemotePath)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	return cmd
}
