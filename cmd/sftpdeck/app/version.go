package app

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information variables
var (
	version   = "dev"
	buildDate = "unknown"
)

// SetVersionInfo sets the version information from main package
func SetVersionInfo(v, bd string) {
	version = v
	buildDate = bd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sftpdeck version: %s\n", version)
			fmt.Fprintf(out, "Build date: %s\n", buildDate)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		},
	}
}
