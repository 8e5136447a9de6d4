package app

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newGetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <connection> <remote-file> [local-path]",
		Short: "Download a remote file over SCP",
		Long: `Download a single remote file over SCP.

The local path defaults to the profile's local_path, then to the current
directory. When the local path is a directory the remote file name is kept.
An existing local file is overwritten.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := o.connection(args[0])
			if err != nil {
				return err
			}

			remotePath := args[1]
			localPath := conn.LocalPath
			if len(args) > 2 {
				localPath = args[2]
			}
			localPath = localTarget(localPath, remotePath)

			d, err := o.dispatcher()
			if err != nil {
				return err
			}

			if err := d.Download(cmd.Context(), conn, remotePath, localPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", remotePath, localPath)
			return nil
		},
	}
}

// localTarget resolves where a download of remotePath is written. An empty
// local path means the current directory; directories receive the remote base
// name.
func localTarget(local, remotePath string) string {
	if local == "" {
		local = "."
	}
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return filepath.Join(local, path.Base(remotePath))
	}
	return local
}
