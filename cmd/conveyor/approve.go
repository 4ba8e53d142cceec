// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

func approveCommand() *cli.Command {
	var (
		socket   *string
		approver string
		comment  string
		asJSON   bool
	)
	return &cli.Command{
		Name:    "approve",
		Summary: "approve a waiting stage",
		Usage:   "conveyor approve <run-id> <stage>",
		Examples: []cli.Example{
			{Description: "approve the production gate", Command: "conveyor approve run-web-42 production-gate"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("approve", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.StringVar(&approver, "approver", currentUser(), "who is approving")
			fs.StringVar(&comment, "comment", "", "approval comment")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: conveyor approve <run-id> <stage>")
			}
			var snapshot schema.RunSnapshot
			err := call(*socket, "approve", map[string]any{
				"run_id":   args[0],
				"stage":    args[1],
				"approver": approver,
				"comment":  comment,
			}, &snapshot)
			if err != nil {
				return err
			}
			return emitRun(&snapshot, asJSON)
		},
	}
}

func rejectCommand() *cli.Command {
	var (
		socket   *string
		approver string
		reason   string
		asJSON   bool
	)
	return &cli.Command{
		Name:    "reject",
		Summary: "reject a waiting stage",
		Usage:   "conveyor reject <run-id> <stage> --reason <text>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("reject", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.StringVar(&approver, "approver", currentUser(), "who is rejecting")
			fs.StringVar(&reason, "reason", "", "rejection reason")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: conveyor reject <run-id> <stage>")
			}
			var snapshot schema.RunSnapshot
			err := call(*socket, "reject", map[string]any{
				"run_id":   args[0],
				"stage":    args[1],
				"approver": approver,
				"comment":  reason,
			}, &snapshot)
			if err != nil {
				return err
			}
			return emitRun(&snapshot, asJSON)
		},
	}
}
