package app

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newLsCmd(o *options) *cobra.Command {
	var (
		all    bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "ls <connection> [path]",
		Short: "List a remote directory over SFTP",
		Long: `List a remote directory over SFTP.

The path defaults to the profile's remote_path, then to the login directory.
Entries starting with a dot are hidden unless -a is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unknown output format %q (must be table or json)", output)
			}

			conn, err := o.connection(args[0])
			if err != nil {
				return err
			}

			dir := conn.RemotePath
			if len(args) > 1 {
				dir = args[1]
			}
			if dir == "" {
				dir = "."
			}

			d, err := o.dispatcher()
			if err != nil {
				return err
			}

			files, err := d.List(cmd.Context(), conn, dir, all)
			if err != nil {
				return err
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, f := range files {
				name := f.Filename
				if f.IsDir {
					name += "/"
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
					f.Mode(), f.Owner, f.Group, f.Size,
					f.ModTime().UTC().Format(time.DateTime), name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include entries starting with a dot")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	return cmd
}
