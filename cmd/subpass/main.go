// Package main is the entry point for the subpass CLI.
package main

import (
	"os"

	"github.com/mrz1836/subpass/internal/cli"
)

// Set by -ldflags at release time.
//
//nolint:gochecknoglobals // Link-time build metadata
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	cli.SetBuildInfo(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
