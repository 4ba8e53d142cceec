// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
)

func metricsCommand() *cli.Command {
	var (
		socket   *string
		pipeline string
		since    string
		until    string
		asJSON   bool
	)
	return &cli.Command{
		Name:    "metrics",
		Summary: "aggregate statistics over archived runs",
		Usage:   "conveyor metrics --pipeline <id> [--since <rfc3339>] [--until <rfc3339>]",
		Examples: []cli.Example{
			{Description: "last 24 hours of the web pipeline", Command: "conveyor metrics --pipeline web"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("metrics", pflag.ContinueOnError)
			socket = socketFlag(fs)
			fs.StringVar(&pipeline, "pipeline", "", "pipeline ID (required)")
			fs.StringVar(&since, "since", "", "window start, RFC 3339 (default: 24h ago)")
			fs.StringVar(&until, "until", "", "window end, RFC 3339 (default: now)")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func([]string) error {
			if pipeline == "" {
				return fmt.Errorf("--pipeline is required")
			}
			var result struct {
				PipelineID       string  `cbor:"pipeline_id"`
				Since            string  `cbor:"since"`
				Until            string  `cbor:"until"`
				TotalRuns        int     `cbor:"total_runs"`
				Succeeded        int     `cbor:"succeeded"`
				Failed           int     `cbor:"failed"`
				Cancelled        int     `cbor:"cancelled"`
				SuccessRate      float64 `cbor:"success_rate"`
				MeanDurationMS   int64   `cbor:"mean_duration_ms"`
				MedianDurationMS int64   `cbor:"median_duration_ms"`
				P95DurationMS    int64   `cbor:"p95_duration_ms"`
				MeanWaitMS       int64   `cbor:"mean_wait_ms"`
			}
			err := call(*socket, "metrics", map[string]any{
				"pipeline": pipeline,
				"since":    since,
				"until":    until,
			}, &result)
			if err != nil {
				return err
			}
			if asJSON || !cli.StdoutIsTerminal() {
				return cli.WriteJSON(result)
			}

			fmt.Printf("%s  %s .. %s\n", result.PipelineID, result.Since, result.Until)
			fmt.Printf("runs: %d (%d succeeded, %d failed, %d cancelled)\n",
				result.TotalRuns, result.Succeeded, result.Failed, result.Cancelled)
			if result.TotalRuns == 0 {
				return nil
			}
			fmt.Printf("success rate: %.1f%%\n", result.SuccessRate*100)
			fmt.Printf("duration: mean %s, median %s, p95 %s\n",
				ms(result.MeanDurationMS), ms(result.MedianDurationMS), ms(result.P95DurationMS))
			fmt.Printf("mean wait: %s\n", ms(result.MeanWaitMS))
			return nil
		},
	}
}

func ms(value int64) time.Duration {
	return time.Duration(value) * time.Millisecond
}
