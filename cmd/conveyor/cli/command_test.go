// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	t.Parallel()
	var ran []string
	root := &Command{
		Name: "conveyor",
		Subcommands: []*Command{
			{Name: "trigger", Run: func(args []string) error {
				ran = append(ran, "trigger")
				return nil
			}},
			{Name: "cancel", Run: func(args []string) error {
				ran = append(ran, "cancel")
				return nil
			}},
		},
	}
	if err := root.Execute([]string{"trigger"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ran) != 1 || ran[0] != "trigger" {
		t.Fatalf("ran = %v, want [trigger]", ran)
	}
}

func TestExecuteSuggestsOnTypo(t *testing.T) {
	t.Parallel()
	root := &Command{
		Name: "conveyor",
		Subcommands: []*Command{
			{Name: "trigger", Run: func([]string) error { return nil }},
			{Name: "metrics", Run: func([]string) error { return nil }},
		},
	}
	err := root.Execute([]string{"triger"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "trigger"`) {
		t.Fatalf("error = %v, want trigger suggestion", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	t.Parallel()
	var pipeline string
	var rest []string
	command := &Command{
		Name: "trigger",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("trigger", pflag.ContinueOnError)
			fs.StringVar(&pipeline, "pipeline", "", "pipeline ID")
			return fs
		},
		Run: func(args []string) error {
			rest = args
			return nil
		},
	}
	if err := command.Execute([]string{"--pipeline", "web", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pipeline != "web" {
		t.Fatalf("pipeline = %q, want web", pipeline)
	}
	if len(rest) != 1 || rest[0] != "extra" {
		t.Fatalf("positional args = %v, want [extra]", rest)
	}
}

func TestExecuteUnknownFlagSuggestion(t *testing.T) {
	t.Parallel()
	command := &Command{
		Name: "trigger",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("trigger", pflag.ContinueOnError)
			fs.String("pipeline", "", "pipeline ID")
			return fs
		},
		Run: func([]string) error { return nil },
	}
	err := command.Execute([]string{"--pipline=web"})
	if err == nil || !strings.Contains(err.Error(), "--pipeline") {
		t.Fatalf("error = %v, want --pipeline suggestion", err)
	}
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"trigger", "trigger", 0},
		{"triger", "trigger", 1},
		{"cancl", "cancel", 1},
		{"metrics", "trigger", 6},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
