// Package main is the entry point for sftpdeck.
package main

import (
	"fmt"
	"os"

	"gitlab.bluewillows.net/root/sftpdeck/cmd/sftpdeck/app"
)

// Version information (set via ldflags).
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	app.SetVersionInfo(Version, BuildDate)

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
