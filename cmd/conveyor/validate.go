// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/pipelinedef"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "validate pipeline definition files",
		Usage:   "conveyor validate <file> [<file>...]",
		Examples: []cli.Example{
			{Description: "validate one definition", Command: "conveyor validate pipelines/web.yaml"},
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one definition file is required")
			}
			failed := 0
			for _, path := range args {
				def, err := pipelinedef.ReadFile(path)
				if err != nil {
					fmt.Printf("%s: %v\n", path, err)
					failed++
					continue
				}
				issues := pipelinedef.Validate(def)
				if len(issues) == 0 {
					fmt.Printf("%s: ok (pipeline %s, %d stages)\n", path, def.ID, len(def.Stages))
					continue
				}
				failed++
				fmt.Printf("%s: %d issues\n", path, len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files invalid", failed, len(args))
			}
			return nil
		},
	}
}
