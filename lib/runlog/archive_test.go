// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

var archiveEpoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "runlog.db"),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := archive.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return archive
}

// terminalSnapshot builds a completed run with the given identity and
// timing offsets from archiveEpoch.
func terminalSnapshot(id, pipelineID string, number int64, status schema.Status, queueOffset, wait, duration time.Duration) *schema.RunSnapshot {
	queued := archiveEpoch.Add(queueOffset)
	started := queued.Add(wait)
	completed := started.Add(duration)
	return &schema.RunSnapshot{
		Run: schema.Run{
			ID:         id,
			PipelineID: pipelineID,
			Number:     number,
			Status:     status,
			Trigger:    schema.TriggerDescriptor{Type: schema.TriggerPush, Ref: "refs/heads/main"},
			Timing: schema.Timing{
				QueuedAt:    queued,
				StartedAt:   &started,
				CompletedAt: &completed,
			},
		},
		Stages: []schema.StageSnapshot{
			{Stage: schema.StageRun{ID: id + "-stage-1", RunID: id, Name: "build", Status: status}},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	t.Parallel()

	archive := openTestArchive(t)
	ctx := context.Background()

	snapshot := terminalSnapshot("run-1", "web", 1, schema.StatusSuccess, 0, 2*time.Second, 90*time.Second)
	if err := archive.Record(ctx, snapshot); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := archive.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Run.ID != "run-1" || got.Run.PipelineID != "web" || got.Run.Number != 1 {
		t.Errorf("identity = %s/%s/%d, want run-1/web/1", got.Run.ID, got.Run.PipelineID, got.Run.Number)
	}
	if got.Run.Status != schema.StatusSuccess {
		t.Errorf("status = %s, want success", got.Run.Status)
	}
	if len(got.Stages) != 1 || got.Stages[0].Stage.Name != "build" {
		t.Errorf("stages not round-tripped: %+v", got.Stages)
	}
	if !got.Run.Timing.QueuedAt.Equal(snapshot.Run.Timing.QueuedAt) {
		t.Errorf("queued at = %v, want %v", got.Run.Timing.QueuedAt, snapshot.Run.Timing.QueuedAt)
	}
}

func TestRecordRejectsActiveRun(t *testing.T) {
	t.Parallel()

	archive := openTestArchive(t)
	snapshot := terminalSnapshot("run-2", "web", 2, schema.StatusSuccess, 0, time.Second, time.Minute)
	snapshot.Run.Status = schema.StatusRunning
	if err := archive.Record(context.Background(), snapshot); err == nil {
		t.Fatal("expected error recording non-terminal run")
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	t.Parallel()

	archive := openTestArchive(t)
	ctx := context.Background()

	snapshot := terminalSnapshot("run-3", "web", 3, schema.StatusFailed, 0, time.Second, time.Minute)
	if err := archive.Record(ctx, snapshot); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := archive.Record(ctx, snapshot); err != nil {
		t.Fatalf("second Record: %v", err)
	}

	summaries, err := archive.Query(ctx, "web", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d rows after duplicate record, want 1", len(summaries))
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	archive := openTestArchive(t)
	if _, err := archive.Get(context.Background(), "run-absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestQueryWindowAndOrder(t *testing.T) {
	t.Parallel()

	archive := openTestArchive(t)
	ctx := context.Background()

	for i, status := range []schema.Status{
		schema.StatusSuccess,
		schema.StatusFailed,
		schema.StatusCancelled,
		schema.StatusSuccess,
	} {
		snapshot := terminalSnapshot(
			"run-q-"+string(rune('a'+i)), "api", int64(i+1), status,
			time.Duration(i)*time.Hour, time.Second, time.Minute,
		)
		if err := archive.Record(ctx, snapshot); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	// A run for another pipeline must not appear.
	other := terminalSnapshot("run-other", "web", 1, schema.StatusSuccess, 0, time.Second, time.Minute)
	if err := archive.Record(ctx, other); err != nil {
		t.Fatalf("Record other: %v", err)
	}

	// Window covering the middle two runs: [epoch+1h, epoch+3h).
	summaries, err := archive.Query(ctx, "api", archiveEpoch.Add(time.Hour), archiveEpoch.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d runs in window, want 2", len(summaries))
	}
	if summaries[0].Status != schema.StatusFailed || summaries[1].Status != schema.StatusCancelled {
		t.Errorf("window contents = %s, %s; want failed, cancelled", summaries[0].Status, summaries[1].Status)
	}
	if !summaries[0].QueuedAt.Before(summaries[1].QueuedAt) {
		t.Error("summaries not ordered by queue time")
	}

	// Zero until means unbounded.
	all, err := archive.Query(ctx, "api", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unbounded Query: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d runs unbounded, want 4", len(all))
	}
	if all[0].Duration != time.Minute || all[0].Wait != time.Second {
		t.Errorf("derived timing = %v/%v, want 1m/1s", all[0].Duration, all[0].Wait)
	}
}
