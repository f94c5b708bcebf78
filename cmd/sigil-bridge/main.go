// Package main is the entry point for the sigil-bridge CLI.
package main

import (
	"os"

	"github.com/mrz1836/sigil-bridge/internal/cli"
)

// Set with -ldflags "-X main.version=..." at build time.
//
//nolint:gochecknoglobals // build metadata injected at link time
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	if err := cli.Execute(cli.BuildInfo{Version: version, Commit: commit, Date: date}); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
