// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

func rollbackCommand() *cli.Command {
	var (
		socket *string
		actor  string
		reason string
		asJSON bool
	)
	return &cli.Command{
		Name:    "rollback",
		Summary: "roll back a completed deployment",
		Usage:   "conveyor rollback <deployment-id> --reason <text>",
		Examples: []cli.Example{
			{Description: "revert production to the prior version", Command: "conveyor rollback dep-run-web-42/deploy --reason 'elevated error rate'"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("rollback", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.StringVar(&actor, "actor", currentUser(), "who is rolling back")
			fs.StringVar(&reason, "reason", "", "why the deployment is being reverted")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one deployment ID is required")
			}
			var deployment schema.Deployment
			err := call(*socket, "rollback", map[string]any{
				"deployment_id": args[0],
				"actor":         actor,
				"reason":        reason,
			}, &deployment)
			if err != nil {
				return err
			}
			if asJSON || !cli.StdoutIsTerminal() {
				return cli.WriteJSON(deployment)
			}
			fmt.Printf("%s  %s  %s\n", deployment.ID, deployment.Environment, deployment.Status)
			fmt.Printf("reverted to: %s (was %s)\n", deployment.Rollback.PriorVersion, deployment.Version)
			return nil
		},
	}
}

func releaseCommand() *cli.Command {
	return &cli.Command{
		Name:    "release",
		Summary: "manage release aggregates",
		Usage:   "conveyor release <create|attach|advance|show> ...",
		Subcommands: []*cli.Command{
			releaseCreateCommand(),
			releaseAttachCommand(),
			releaseAdvanceCommand(),
			releaseShowCommand(),
		},
	}
}

func releaseCreateCommand() *cli.Command {
	var (
		socket    *string
		tag       string
		commit    string
		changelog string
	)
	return &cli.Command{
		Name:    "create",
		Summary: "create a draft release for a version",
		Usage:   "conveyor release create <version> [--tag <tag>] [--commit <sha>]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.StringVar(&tag, "tag", "", "VCS tag for the release")
			fs.StringVar(&commit, "commit", "", "commit the release was cut from")
			fs.StringVar(&changelog, "changelog", "", "release notes")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one version is required")
			}
			var release schema.Release
			err := call(*socket, "create-release", map[string]any{
				"version":   args[0],
				"tag":       tag,
				"commit":    commit,
				"changelog": changelog,
			}, &release)
			if err != nil {
				return err
			}
			return emitRelease(release, false)
		},
	}
}

func releaseAttachCommand() *cli.Command {
	var socket *string
	return &cli.Command{
		Name:    "attach",
		Summary: "bind a deployment to a release",
		Usage:   "conveyor release attach <release-id> <deployment-id>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("attach", pflag.ContinueOnError)
			socket = socketFlag(fs)
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("a release ID and a deployment ID are required")
			}
			var release schema.Release
			err := call(*socket, "attach-deployment", map[string]any{
				"release_id":    args[0],
				"deployment_id": args[1],
			}, &release)
			if err != nil {
				return err
			}
			return emitRelease(release, false)
		},
	}
}

func releaseAdvanceCommand() *cli.Command {
	var socket *string
	return &cli.Command{
		Name:    "advance",
		Summary: "move a release to its next lifecycle status",
		Usage:   "conveyor release advance <release-id> <status>",
		Examples: []cli.Example{
			{Description: "publish a pending release", Command: "conveyor release advance rel-3 released"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("advance", pflag.ContinueOnError)
			socket = socketFlag(fs)
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("a release ID and a target status are required")
			}
			var release schema.Release
			err := call(*socket, "advance-release", map[string]any{
				"release_id": args[0],
				"status":     args[1],
			}, &release)
			if err != nil {
				return err
			}
			return emitRelease(release, false)
		},
	}
}

func releaseShowCommand() *cli.Command {
	var (
		socket *string
		asJSON bool
	)
	return &cli.Command{
		Name:    "show",
		Summary: "show a release",
		Usage:   "conveyor release show <release-id>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one release ID is required")
			}
			var release schema.Release
			err := call(*socket, "show-release", map[string]any{
				"release_id": args[0],
			}, &release)
			if err != nil {
				return err
			}
			return emitRelease(release, asJSON)
		},
	}
}

func emitRelease(release schema.Release, asJSON bool) error {
	if asJSON || !cli.StdoutIsTerminal() {
		return cli.WriteJSON(release)
	}
	fmt.Printf("%s  %s  %s\n", release.ID, release.Version, release.Status)
	for _, rd := range release.Deployments {
		fmt.Printf("  %s: %s\n", rd.Environment, rd.DeploymentID)
	}
	return nil
}
