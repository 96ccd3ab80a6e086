// Package main provides the agent-worker entry point.
//
// agent-worker is spawned by a parent agent for one unit of work:
//
//	agent-worker spawnclient <pipe-in> <pipe-out>
//
// It exits with the job's status, or 1 if anything fails. Failures are
// written to stdout for the parent and to a trace file under diag_dir.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/randomizedcoder/agent-worker/internal/bootstrap"
	"github.com/randomizedcoder/agent-worker/internal/config"
	"github.com/randomizedcoder/agent-worker/internal/fault"
	"github.com/randomizedcoder/agent-worker/internal/host"
	"github.com/randomizedcoder/agent-worker/internal/logging"
	"github.com/randomizedcoder/agent-worker/internal/terminal"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err != nil {
		// No trace sink exists yet; the raw channel is the parent's only view.
		msg := fmt.Sprintf("Configuration error: %v", err)
		terminal.New(stdout).WriteError(msg)
		fmt.Fprintln(stderr, msg)
		return fault.ExitFailure
	}

	// Records from code without a trace handle go to stderr.
	logging.SetDefault(logging.NewLogger(stderr, cfg.LogFormat, cfg.LogLevel))

	return bootstrap.Run(context.Background(), args, bootstrap.Options{
		Host: host.New(host.Options{Config: cfg, Stdout: stdout, Stderr: stderr}),
	})
}
