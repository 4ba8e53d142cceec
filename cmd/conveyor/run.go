// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

func triggerCommand() *cli.Command {
	var (
		socket   *string
		pipeline string
		ref      string
		actor    string
		asJSON   bool
	)
	return &cli.Command{
		Name:    "trigger",
		Summary: "trigger a pipeline run",
		Usage:   "conveyor trigger --pipeline <id> [--ref <ref>] [--actor <name>]",
		Examples: []cli.Example{
			{Description: "run the web pipeline against main", Command: "conveyor trigger --pipeline web --ref main"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("trigger", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.StringVar(&pipeline, "pipeline", "", "pipeline ID (required)")
			fs.StringVar(&ref, "ref", "", "branch or tag to run against")
			fs.StringVar(&actor, "actor", currentUser(), "actor recorded on the trigger")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func([]string) error {
			if pipeline == "" {
				return fmt.Errorf("--pipeline is required")
			}
			var snapshot schema.RunSnapshot
			err := call(*socket, "trigger", map[string]any{
				"pipeline": pipeline,
				"actor":    actor,
				"ref":      ref,
			}, &snapshot)
			if err != nil {
				return err
			}
			return emitRun(&snapshot, asJSON)
		},
	}
}

func cancelCommand() *cli.Command {
	var (
		socket *string
		asJSON bool
	)
	return &cli.Command{
		Name:    "cancel",
		Summary: "cancel an active run",
		Usage:   "conveyor cancel <run-id>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("cancel", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one run ID is required")
			}
			var snapshot schema.RunSnapshot
			if err := call(*socket, "cancel", map[string]any{"run_id": args[0]}, &snapshot); err != nil {
				return err
			}
			return emitRun(&snapshot, asJSON)
		},
	}
}

func showRunCommand() *cli.Command {
	var (
		socket *string
		asJSON bool
	)
	return &cli.Command{
		Name:    "show-run",
		Summary: "show a run's full state",
		Usage:   "conveyor show-run <run-id>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("show-run", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one run ID is required")
			}
			var snapshot schema.RunSnapshot
			if err := call(*socket, "show-run", map[string]any{"run_id": args[0]}, &snapshot); err != nil {
				return err
			}
			return emitRun(&snapshot, asJSON)
		},
	}
}

func listRunsCommand() *cli.Command {
	var (
		socket   *string
		pipeline string
		asJSON   bool
	)
	return &cli.Command{
		Name:    "runs",
		Summary: "list active runs",
		Usage:   "conveyor runs [--pipeline <id>]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("runs", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.StringVar(&pipeline, "pipeline", "", "filter by pipeline ID")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func([]string) error {
			var response struct {
				Runs []schema.RunSnapshot `cbor:"runs"`
			}
			if err := call(*socket, "list-runs", map[string]any{"pipeline": pipeline}, &response); err != nil {
				return err
			}
			if asJSON || !cli.StdoutIsTerminal() {
				return cli.WriteJSON(response.Runs)
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "RUN\tPIPELINE\tSTATUS\tTRIGGER\tREF\tQUEUED")
			for _, snapshot := range response.Runs {
				run := snapshot.Run
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.PipelineID, run.Status,
					run.Trigger.Type, run.Trigger.Ref,
					run.Timing.QueuedAt.Format(time.RFC3339),
				)
			}
			return tw.Flush()
		},
	}
}

func statusCommand() *cli.Command {
	var socket *string
	return &cli.Command{
		Name:    "status",
		Summary: "show daemon status",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
			socket = socketFlag(fs)
			return fs
		},
		Run: func([]string) error {
			var status struct {
				UptimeSeconds float64 `cbor:"uptime_seconds"`
				Pipelines     int     `cbor:"pipelines"`
				ActiveRuns    int     `cbor:"active_runs"`
			}
			if err := call(*socket, "status", nil, &status); err != nil {
				return err
			}
			uptime := time.Duration(status.UptimeSeconds * float64(time.Second)).Round(time.Second)
			fmt.Printf("uptime: %s\npipelines: %d\nactive runs: %d\n",
				uptime, status.Pipelines, status.ActiveRuns)
			return nil
		},
	}
}

// emitRun renders a run snapshot: JSON when requested or piped, a
// stage table on a terminal.
func emitRun(snapshot *schema.RunSnapshot, asJSON bool) error {
	if asJSON || !cli.StdoutIsTerminal() {
		return cli.WriteJSON(snapshot)
	}

	run := snapshot.Run
	fmt.Printf("%s  %s  #%d  %s\n", run.ID, run.PipelineID, run.Number, run.Status)
	fmt.Printf("trigger: %s", run.Trigger.Type)
	if run.Trigger.Ref != "" {
		fmt.Printf(" (%s)", run.Trigger.Ref)
	}
	if run.Trigger.Actor != "" {
		fmt.Printf(" by %s", run.Trigger.Actor)
	}
	fmt.Println()
	if duration := run.Timing.Duration(); duration > 0 {
		fmt.Printf("duration: %s\n", duration.Round(time.Millisecond))
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tJOBS")
	for _, stage := range snapshot.Stages {
		done := 0
		for _, job := range stage.Jobs {
			if job.Job.Status.Terminal() {
				done++
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\n", stage.Stage.Name, stage.Stage.Status, done, len(stage.Jobs))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, record := range run.Errors {
		location := record.Stage
		if record.Job != "" {
			location += "/" + record.Job
		}
		fmt.Printf("error: %s: %s\n", location, record.Message)
	}
	return nil
}

// currentUser is the default --actor value.
func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
