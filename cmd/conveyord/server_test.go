// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/artifact"
	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/deploy"
	"github.com/conveyor-foundation/conveyor/lib/engine"
	"github.com/conveyor-foundation/conveyor/lib/eventbus"
	"github.com/conveyor-foundation/conveyor/lib/logstore"
	"github.com/conveyor-foundation/conveyor/lib/schema"
	"github.com/conveyor-foundation/conveyor/lib/service"
	"github.com/conveyor-foundation/conveyor/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// startDaemon wires a full daemon on a temp socket, with the passive
// invoker so tests drive job completion through report actions.
func startDaemon(t *testing.T, definitions ...*schema.PipelineDefinition) *service.Client {
	t.Helper()

	store := engine.NewMemoryDefinitionStore()
	for _, def := range definitions {
		if err := store.Put(def); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	stateDir := t.TempDir()
	logs, err := logstore.NewStore(filepath.Join(stateDir, "logs"))
	if err != nil {
		t.Fatalf("logstore.NewStore: %v", err)
	}
	artifacts, err := artifact.NewStore(filepath.Join(stateDir, "artifacts"))
	if err != nil {
		t.Fatalf("artifact.NewStore: %v", err)
	}

	clk := clock.Real()
	bus := eventbus.New(nil)
	t.Cleanup(bus.Close)

	tracker, err := deploy.NewTracker(deploy.Config{Clock: clk, Bus: bus})
	if err != nil {
		t.Fatalf("deploy.NewTracker: %v", err)
	}

	eng, err := engine.New(engine.Config{
		Definitions: store,
		Invoker:     &passiveInvoker{logger: discardLogger()},
		Clock:       clk,
		Bus:         bus,
		Tracker:     tracker,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	daemon := &daemonServer{
		engine:      eng,
		tracker:     tracker,
		definitions: store,
		logs:        logs,
		artifacts:   artifacts,
		clock:       clk,
		startedAt:   clk.Now(),
		logger:      discardLogger(),
	}

	socketPath := filepath.Join(testutil.SocketDir(t), "conveyord.sock")
	server := service.NewSocketServer(socketPath, nil)
	daemon.registerActions(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "daemon shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "daemon listening")
	return service.NewClient(socketPath)
}

func testPipeline() *schema.PipelineDefinition {
	return &schema.PipelineDefinition{
		ID: "web",
		Stages: []schema.StageDefinition{
			{Name: "build", Order: 1, Jobs: []schema.JobDefinition{{
				Name:  "compile",
				Steps: []schema.StepDefinition{{Name: "make", Run: "make all"}},
			}}},
		},
	}
}

func TestDaemonRunLifecycle(t *testing.T) {
	t.Parallel()
	client := startDaemon(t, testPipeline())
	ctx := context.Background()

	var snapshot schema.RunSnapshot
	err := client.Call(ctx, "trigger", map[string]any{
		"pipeline": "web",
		"actor":    "ana",
		"ref":      "main",
	}, &snapshot)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if snapshot.Run.ID != "run-web-1" || snapshot.Run.Status != schema.StatusRunning {
		t.Fatalf("triggered run = %s/%s", snapshot.Run.ID, snapshot.Run.Status)
	}

	// Store the step's log, then report it finished.
	stepID := snapshot.Stages[0].Jobs[0].Steps[0].ID
	err = client.Call(ctx, "store-log", map[string]any{
		"ref":     "build-1",
		"content": []byte("compiling...\ndone\n"),
	}, nil)
	if err != nil {
		t.Fatalf("store-log: %v", err)
	}
	err = client.Call(ctx, "report-step", map[string]any{
		"step_run_id": stepID,
		"exit_code":   0,
		"log_ref":     "build-1",
	}, nil)
	if err != nil {
		t.Fatalf("report-step: %v", err)
	}

	var final schema.RunSnapshot
	if err := client.Call(ctx, "show-run", map[string]any{"run_id": "run-web-1"}, &final); err != nil {
		t.Fatalf("show-run: %v", err)
	}
	if final.Run.Status != schema.StatusSuccess {
		t.Fatalf("final status = %s, want success", final.Run.Status)
	}
	if len(final.Run.LogRefs) != 1 || final.Run.LogRefs[0] != "build-1" {
		t.Fatalf("log refs = %v, want [build-1]", final.Run.LogRefs)
	}

	var logResponse struct {
		Content []byte `cbor:"content"`
	}
	if err := client.Call(ctx, "get-log", map[string]any{"ref": "build-1"}, &logResponse); err != nil {
		t.Fatalf("get-log: %v", err)
	}
	if string(logResponse.Content) != "compiling...\ndone\n" {
		t.Fatalf("log content = %q", logResponse.Content)
	}
}

func TestDaemonStatusAndPipelines(t *testing.T) {
	t.Parallel()
	client := startDaemon(t, testPipeline())
	ctx := context.Background()

	var status statusResponse
	if err := client.Call(ctx, "status", nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Pipelines != 1 {
		t.Fatalf("pipelines = %d, want 1", status.Pipelines)
	}

	var pipelines struct {
		Pipelines []string `cbor:"pipelines"`
	}
	if err := client.Call(ctx, "pipelines", nil, &pipelines); err != nil {
		t.Fatalf("pipelines: %v", err)
	}
	if len(pipelines.Pipelines) != 1 || pipelines.Pipelines[0] != "web" {
		t.Fatalf("pipelines = %v, want [web]", pipelines.Pipelines)
	}
}

func TestDaemonStoreArtifact(t *testing.T) {
	t.Parallel()
	client := startDaemon(t, testPipeline())
	ctx := context.Background()

	var snapshot schema.RunSnapshot
	err := client.Call(ctx, "trigger", map[string]any{"pipeline": "web", "actor": "ana", "ref": "main"}, &snapshot)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	var record schema.Artifact
	err = client.Call(ctx, "store-artifact", map[string]any{
		"run_id":  snapshot.Run.ID,
		"name":    "web.tar",
		"content": []byte("binary payload"),
	}, &record)
	if err != nil {
		t.Fatalf("store-artifact: %v", err)
	}
	if record.Name != "web.tar" || record.Ref == "" {
		t.Fatalf("artifact record = %+v", record)
	}

	var shown schema.RunSnapshot
	if err := client.Call(ctx, "show-run", map[string]any{"run_id": snapshot.Run.ID}, &shown); err != nil {
		t.Fatalf("show-run: %v", err)
	}
	if len(shown.Run.Artifacts) != 1 || shown.Run.Artifacts[0].Ref != record.Ref {
		t.Fatalf("run artifacts = %+v, want the stored record", shown.Run.Artifacts)
	}
}

func TestDaemonErrorMapping(t *testing.T) {
	t.Parallel()
	client := startDaemon(t, testPipeline())
	ctx := context.Background()

	err := client.Call(ctx, "trigger", map[string]any{"pipeline": "ghost"}, nil)
	if err == nil {
		t.Fatal("trigger of unknown pipeline succeeded")
	}
	err = client.Call(ctx, "cancel", map[string]any{"run_id": "run-web-99"}, nil)
	if err == nil {
		t.Fatal("cancel of unknown run succeeded")
	}
}

func TestDaemonReleaseLifecycle(t *testing.T) {
	t.Parallel()
	client := startDaemon(t, testPipeline())
	ctx := context.Background()

	var release schema.Release
	err := client.Call(ctx, "create-release", map[string]any{
		"version": "2.4.0",
		"tag":     "v2.4.0",
	}, &release)
	if err != nil {
		t.Fatalf("create-release: %v", err)
	}
	if release.Status != schema.ReleaseDraft {
		t.Fatalf("new release status = %s, want draft", release.Status)
	}

	for _, target := range []schema.ReleaseStatus{schema.ReleasePending, schema.ReleaseReleased} {
		err = client.Call(ctx, "advance-release", map[string]any{
			"release_id": release.ID,
			"status":     string(target),
		}, &release)
		if err != nil {
			t.Fatalf("advance-release to %s: %v", target, err)
		}
		if release.Status != target {
			t.Fatalf("release status = %s, want %s", release.Status, target)
		}
	}

	// Skipping a lifecycle step is rejected.
	err = client.Call(ctx, "advance-release", map[string]any{
		"release_id": release.ID,
		"status":     string(schema.ReleaseDraft),
	}, nil)
	if err == nil {
		t.Fatal("backward release transition succeeded")
	}

	var shown schema.Release
	if err := client.Call(ctx, "show-release", map[string]any{"release_id": release.ID}, &shown); err != nil {
		t.Fatalf("show-release: %v", err)
	}
	if shown.Tag != "v2.4.0" {
		t.Fatalf("shown tag = %q, want v2.4.0", shown.Tag)
	}
}
