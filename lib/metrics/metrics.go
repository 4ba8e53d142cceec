// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics aggregates per-pipeline statistics from the run
// archive.
//
// All figures are computed over archived (terminal) runs only; active
// runs are invisible to metrics until they complete. Percentiles use
// the nearest-rank method over durations sorted ascending, so P95 of
// five runs is the longest of the five.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/runlog"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// PipelineMetrics summarizes a pipeline's archived runs over a time
// window. A window with no runs yields the zero value with only
// PipelineID and the window bounds set.
type PipelineMetrics struct {
	PipelineID string    `json:"pipeline_id"`
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until,omitzero"`

	TotalRuns int `json:"total_runs"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	// SuccessRate is Succeeded / TotalRuns, 0 when the window is
	// empty.
	SuccessRate float64 `json:"success_rate"`

	MeanDuration   time.Duration `json:"mean_duration"`
	MedianDuration time.Duration `json:"median_duration"`
	P95Duration    time.Duration `json:"p95_duration"`

	// MeanWait averages queue-to-start latency. Runs that never
	// started contribute zero wait.
	MeanWait time.Duration `json:"mean_wait"`
}

// Aggregator computes pipeline metrics from a run archive.
type Aggregator struct {
	archive *runlog.Archive
}

// NewAggregator creates an Aggregator reading from archive.
func NewAggregator(archive *runlog.Archive) *Aggregator {
	return &Aggregator{archive: archive}
}

// Compute aggregates metrics for one pipeline over [since, until). A
// zero until means no upper bound.
func (a *Aggregator) Compute(ctx context.Context, pipelineID string, since, until time.Time) (PipelineMetrics, error) {
	summaries, err := a.archive.Query(ctx, pipelineID, since, until)
	if err != nil {
		return PipelineMetrics{}, fmt.Errorf("metrics: %w", err)
	}
	return Aggregate(pipelineID, since, until, summaries), nil
}

// Aggregate computes metrics from an already-fetched set of run
// summaries. Exposed separately so callers holding summaries (and
// tests) do not need an archive.
func Aggregate(pipelineID string, since, until time.Time, summaries []runlog.Summary) PipelineMetrics {
	m := PipelineMetrics{
		PipelineID: pipelineID,
		Since:      since,
		Until:      until,
		TotalRuns:  len(summaries),
	}
	if len(summaries) == 0 {
		return m
	}

	// Duration statistics cover only runs that actually executed;
	// wait statistics cover every matched run, counting never-started
	// runs as zero wait.
	durations := make([]time.Duration, 0, len(summaries))
	var durationSum, waitSum time.Duration
	for _, s := range summaries {
		switch s.Status {
		case schema.StatusSuccess:
			m.Succeeded++
		case schema.StatusFailed:
			m.Failed++
		case schema.StatusCancelled:
			m.Cancelled++
		}
		if s.Started {
			durations = append(durations, s.Duration)
			durationSum += s.Duration
			waitSum += s.Wait
		}
	}

	m.SuccessRate = float64(m.Succeeded) / float64(m.TotalRuns)
	m.MeanWait = waitSum / time.Duration(m.TotalRuns)

	if len(durations) == 0 {
		return m
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	count := len(durations)
	m.MeanDuration = durationSum / time.Duration(count)
	m.MedianDuration = durations[rank(count, 0.50)]
	m.P95Duration = durations[rank(count, 0.95)]
	return m
}

// rank returns the index into a sorted slice of length count for the
// given percentile, clamped to the last element.
func rank(count int, percentile float64) int {
	index := int(float64(count) * percentile)
	if index >= count {
		index = count - 1
	}
	return index
}
