// Package main provides the geyser-gateway CLI entrypoint.
//
// Usage:
//
//	geyser-gateway <command> [options]
//
// Exit codes for `run`:
//   - 0: clean shutdown
//   - 2: bad configuration
//   - 3: fatal transport failure after exhausting startup attempts
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ample-labs/geyser-gateway/cli/cmd"
	"github.com/ample-labs/geyser-gateway/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "geyser-gateway",
		Usage:          "Relays a Solana validator's Geyser event feed over QUIC",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes set via cli.Exit(), so the run
// command's exit-code contract survives urfave/cli's own error handling.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
