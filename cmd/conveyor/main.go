// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/service"
	"github.com/conveyor-foundation/conveyor/lib/version"
)

// defaultSocket is where conveyord listens unless overridden by
// --socket or CONVEYOR_SOCKET.
const defaultSocket = "/run/conveyor/control.sock"

// callTimeout bounds a single control request end to end.
const callTimeout = 60 * time.Second

func main() {
	root := &cli.Command{
		Name:    "conveyor",
		Summary: "operator CLI for the Conveyor pipeline engine",
		Description: "conveyor drives a running conveyord: trigger and inspect pipeline\n" +
			"runs, decide approval gates, roll back deployments, and query\n" +
			"pipeline metrics. Definitions are validated locally.",
		Subcommands: []*cli.Command{
			validateCommand(),
			triggerCommand(),
			cancelCommand(),
			approveCommand(),
			rejectCommand(),
			showRunCommand(),
			listRunsCommand(),
			rollbackCommand(),
			releaseCommand(),
			metricsCommand(),
			statusCommand(),
			versionCommand(),
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print version information",
		Run: func([]string) error {
			fmt.Printf("conveyor %s\n", version.Info())
			return nil
		},
	}
}

// socketFlag registers the shared --socket flag and returns its
// destination. CONVEYOR_SOCKET overrides the built-in default.
func socketFlag(fs *pflag.FlagSet) *string {
	fallback := defaultSocket
	if env := os.Getenv("CONVEYOR_SOCKET"); env != "" {
		fallback = env
	}
	return fs.String("socket", fallback, "conveyord control socket path")
}

// call sends one control request with the standard timeout.
func call(socketPath, action string, fields map[string]any, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return service.NewClient(socketPath).Call(ctx, action, fields, result)
}
