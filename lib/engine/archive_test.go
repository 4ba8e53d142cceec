// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/runlog"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// waitForArchived polls the archive for a run; archiving happens off
// the transition path, so completion is not immediately visible.
func waitForArchived(t *testing.T, archive *runlog.Archive, runID string) *schema.RunSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, err := archive.Get(context.Background(), runID)
		if err == nil {
			return snapshot
		}
		if !errors.Is(err, runlog.ErrNotFound) {
			t.Fatalf("archive.Get(%s): %v", runID, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached the archive", runID)
	return nil
}

func TestTerminalRunsReachArchive(t *testing.T) {
	t.Parallel()
	archive, err := runlog.Open(runlog.Config{
		Path:     filepath.Join(t.TempDir(), "runs.db"),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() { archive.Close() })

	store := NewMemoryDefinitionStore()
	if err := store.Put(threeStageDef("web")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	invoker := &recordingInvoker{failJobs: map[string]error{}}
	fc := clock.Fake(engineEpoch)
	engine, err := New(Config{
		Definitions: store,
		Invoker:     invoker,
		Clock:       fc,
		Archive:     archive,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := engine.TriggerRun(context.Background(), "web", "ana", "main"); err != nil {
		t.Fatalf("TriggerRun: %v", err)
	}
	for i := 0; i < 3; i++ {
		dispatches := invoker.take()
		if len(dispatches) != 1 {
			t.Fatalf("round %d: %d dispatches, want 1", i, len(dispatches))
		}
		fc.Advance(time.Minute)
		for _, step := range dispatches[0].Steps {
			if err := engine.ReportStepResult(context.Background(), step.ID, schema.StatusSuccess, 0, ""); err != nil {
				t.Fatalf("ReportStepResult: %v", err)
			}
		}
	}

	archived := waitForArchived(t, archive, "run-web-1")
	if archived.Run.Status != schema.StatusSuccess {
		t.Fatalf("archived status = %s, want success", archived.Run.Status)
	}
	if len(archived.Stages) != 3 {
		t.Fatalf("archived stages = %d, want 3", len(archived.Stages))
	}

	stats, err := engine.Metrics(context.Background(), "web", engineEpoch.Add(-time.Hour), engineEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if stats.TotalRuns != 1 || stats.Succeeded != 1 {
		t.Fatalf("metrics = %+v, want one succeeded run", stats)
	}
	if stats.SuccessRate != 1.0 {
		t.Fatalf("success rate = %v, want 1.0", stats.SuccessRate)
	}
	if stats.MeanDuration != 3*time.Minute {
		t.Fatalf("mean duration = %v, want 3m", stats.MeanDuration)
	}
}

func TestMetricsWithoutArchive(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t)
	if _, err := te.engine.Metrics(context.Background(), "web", time.Time{}, time.Time{}); err == nil {
		t.Fatal("Metrics without an archive succeeded")
	}
}
