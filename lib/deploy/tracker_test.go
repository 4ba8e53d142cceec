// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"errors"
	"testing"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/eventbus"
	"github.com/conveyor-foundation/conveyor/lib/schema"
	"github.com/conveyor-foundation/conveyor/lib/testutil"
)

var deployEpoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, bus *eventbus.Bus) (*Tracker, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(deployEpoch)
	tracker, err := NewTracker(Config{
		Clock: fake,
		Bus:   bus,
		Strategies: map[string]schema.Strategy{
			"canary-env": schema.StrategyCanary,
		},
	})
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tracker, fake
}

func deployStage(id, environment string) *schema.StageRun {
	return &schema.StageRun{
		ID:          id,
		RunID:       "run-1",
		Name:        "deploy-" + environment,
		Type:        schema.StageDeploy,
		Environment: environment,
		Status:      schema.StatusRunning,
	}
}

func testRun(commit string) *schema.Run {
	return &schema.Run{
		ID:         "run-1",
		PipelineID: "web",
		Number:     7,
		Status:     schema.StatusRunning,
		Trigger:    schema.TriggerDescriptor{Type: schema.TriggerPush, Ref: "refs/heads/main", Commit: commit},
	}
}

func TestOnStageEnteredCreatesDeployment(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(nil)
	defer bus.Close()
	sub := bus.Subscribe(4)
	tracker, _ := newTestTracker(t, bus)

	deployment := tracker.OnStageEntered(testRun("abc123"), deployStage("run-1-stage-3", "production"))
	if deployment == nil {
		t.Fatal("expected deployment for deploy stage")
	}
	if deployment.Environment != "production" || deployment.Version != "abc123" {
		t.Errorf("deployment = %s@%s, want production@abc123", deployment.Environment, deployment.Version)
	}
	if deployment.Status != schema.DeploymentInProgress {
		t.Errorf("status = %s, want in_progress", deployment.Status)
	}
	if deployment.Rollback.Available {
		t.Error("first deployment to an environment should not be rollback-available")
	}
	if deployment.Strategy != schema.StrategyRolling {
		t.Errorf("strategy = %s, want rolling default", deployment.Strategy)
	}

	event := testutil.RequireReceive(t, sub.C, 5*time.Second, "waiting for deployment.created")
	if event.Kind != schema.EventDeployCreated || event.Deployment == nil {
		t.Fatalf("event = %+v, want deployment.created with snapshot", event)
	}

	// Non-deploy stages are ignored.
	build := deployStage("run-1-stage-1", "production")
	build.Type = schema.StageBuild
	if tracker.OnStageEntered(testRun("abc123"), build) != nil {
		t.Error("build stage should not create a deployment")
	}
}

func TestPreviousVersionEnablesRollback(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(t, nil)

	first := tracker.OnStageEntered(testRun("v1"), deployStage("sr-1", "staging"))
	tracker.OnStageCompleted("sr-1", schema.StatusSuccess)

	second := tracker.OnStageEntered(testRun("v2"), deployStage("sr-2", "staging"))
	if second.PreviousVersion != "v1" || !second.Rollback.Available {
		t.Fatalf("second deployment = prev %q available %v, want v1/true", second.PreviousVersion, second.Rollback.Available)
	}

	// A failed deploy does not become the environment's live version.
	tracker.OnStageCompleted("sr-2", schema.StatusFailed)
	third := tracker.OnStageEntered(testRun("v3"), deployStage("sr-3", "staging"))
	if third.PreviousVersion != "v1" {
		t.Errorf("after failed deploy, previous = %q, want v1", third.PreviousVersion)
	}

	settled, err := tracker.Get(first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if settled.Status != schema.DeploymentSuccess {
		t.Errorf("first deployment status = %s, want success", settled.Status)
	}
}

func TestHealthAggregation(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(t, nil)
	deployment := tracker.OnStageEntered(testRun("v1"), deployStage("sr-1", "production"))

	if _, err := tracker.UpsertService(deployment.ID, schema.DeployedService{
		Name: "api", DesiredReplicas: 3, ReadyReplicas: 3,
	}); err != nil {
		t.Fatalf("UpsertService: %v", err)
	}

	// All checks healthy.
	got, err := tracker.RecordHealthCheck(deployment.ID, schema.HealthCheck{
		Service: "api", Endpoint: "/healthz", Healthy: true,
	})
	if err != nil {
		t.Fatalf("RecordHealthCheck: %v", err)
	}
	if health := serviceHealth(t, got, "api"); health != schema.ServiceHealthy {
		t.Errorf("health = %s, want healthy", health)
	}

	// One failing check with ready replicas: degraded.
	got, err = tracker.RecordHealthCheck(deployment.ID, schema.HealthCheck{
		Service: "api", Endpoint: "/ready", Healthy: false, Detail: "timeout",
	})
	if err != nil {
		t.Fatalf("RecordHealthCheck: %v", err)
	}
	if health := serviceHealth(t, got, "api"); health != schema.ServiceDegraded {
		t.Errorf("health = %s, want degraded", health)
	}

	// Replacing the failing check restores healthy.
	got, err = tracker.RecordHealthCheck(deployment.ID, schema.HealthCheck{
		Service: "api", Endpoint: "/ready", Healthy: true,
	})
	if err != nil {
		t.Fatalf("RecordHealthCheck: %v", err)
	}
	if health := serviceHealth(t, got, "api"); health != schema.ServiceHealthy {
		t.Errorf("health = %s, want healthy after recovery", health)
	}
	if len(got.Checks) != 2 {
		t.Errorf("checks = %d, want 2 (replacement, not append)", len(got.Checks))
	}

	// No ready replicas: unhealthy.
	if _, err := tracker.UpsertService(deployment.ID, schema.DeployedService{
		Name: "api", DesiredReplicas: 3, ReadyReplicas: 0,
	}); err != nil {
		t.Fatalf("UpsertService: %v", err)
	}
	got, err = tracker.RecordHealthCheck(deployment.ID, schema.HealthCheck{
		Service: "api", Endpoint: "/ready", Healthy: false,
	})
	if err != nil {
		t.Fatalf("RecordHealthCheck: %v", err)
	}
	if health := serviceHealth(t, got, "api"); health != schema.ServiceUnhealthy {
		t.Errorf("health = %s, want unhealthy with zero ready replicas", health)
	}
}

func serviceHealth(t *testing.T, deployment *schema.Deployment, name string) schema.ServiceHealth {
	t.Helper()
	for _, service := range deployment.Services {
		if service.Name == name {
			return service.Health
		}
	}
	t.Fatalf("service %s not found in deployment", name)
	return ""
}

func TestRollback(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(nil)
	defer bus.Close()
	sub := bus.Subscribe(8)
	tracker, fake := newTestTracker(t, bus)

	tracker.OnStageEntered(testRun("v1"), deployStage("sr-1", "production"))
	tracker.OnStageCompleted("sr-1", schema.StatusSuccess)
	second := tracker.OnStageEntered(testRun("v2"), deployStage("sr-2", "production"))

	// Drain the two created events.
	testutil.RequireReceive(t, sub.C, 5*time.Second, "first created event")
	testutil.RequireReceive(t, sub.C, 5*time.Second, "second created event")

	// Still in progress: not rollbackable.
	if _, err := tracker.Rollback(second.ID, "ops", "bad deploy"); !errors.Is(err, ErrRollbackUnavailable) {
		t.Fatalf("rollback of in-progress deployment = %v, want ErrRollbackUnavailable", err)
	}

	tracker.OnStageCompleted("sr-2", schema.StatusSuccess)
	fake.Advance(time.Minute)

	rolled, err := tracker.Rollback(second.ID, "ops", "bad deploy")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rolled.Status != schema.DeploymentRolledBack {
		t.Errorf("status = %s, want rolled_back", rolled.Status)
	}
	if rolled.Rollback.Actor != "ops" || rolled.Rollback.Reason != "bad deploy" || rolled.Rollback.Time == nil {
		t.Errorf("rollback descriptor not stamped: %+v", rolled.Rollback)
	}

	event := testutil.RequireReceive(t, sub.C, 5*time.Second, "waiting for deployment.rolled_back")
	if event.Kind != schema.EventDeployRolledBack {
		t.Fatalf("event kind = %s, want deployment.rolled_back", event.Kind)
	}

	// Second rollback is refused and the record is unchanged.
	if _, err := tracker.Rollback(second.ID, "ops", "again"); !errors.Is(err, ErrRollbackUnavailable) {
		t.Fatalf("double rollback = %v, want ErrRollbackUnavailable", err)
	}

	// The environment's live version reverted, so the next deployment
	// sees v1 as previous.
	next := tracker.OnStageEntered(testRun("v3"), deployStage("sr-3", "production"))
	if next.PreviousVersion != "v1" {
		t.Errorf("after rollback, previous = %q, want v1", next.PreviousVersion)
	}
}

func TestRollbackUnavailableWithoutPriorVersion(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(t, nil)
	deployment := tracker.OnStageEntered(testRun("v1"), deployStage("sr-1", "production"))
	tracker.OnStageCompleted("sr-1", schema.StatusSuccess)

	if _, err := tracker.Rollback(deployment.ID, "ops", "revert"); !errors.Is(err, ErrRollbackUnavailable) {
		t.Fatalf("error = %v, want ErrRollbackUnavailable", err)
	}
	unchanged, err := tracker.Get(deployment.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if unchanged.Status != schema.DeploymentSuccess || unchanged.Rollback.Actor != "" {
		t.Errorf("failed rollback mutated deployment: %+v", unchanged)
	}
}

func TestCanaryTraffic(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(t, nil)
	deployment := tracker.OnStageEntered(testRun("v1"), deployStage("sr-1", "canary-env"))
	if deployment.Strategy != schema.StrategyCanary || deployment.Traffic == nil {
		t.Fatalf("canary-env deployment = %s traffic %v, want canary with traffic state", deployment.Strategy, deployment.Traffic)
	}

	for range 4 {
		var err error
		deployment, err = tracker.AdvanceTraffic(deployment.ID)
		if err != nil {
			t.Fatalf("AdvanceTraffic: %v", err)
		}
	}
	if deployment.Traffic.CurrentPercent != 80 {
		t.Errorf("current = %d%%, want 80%%", deployment.Traffic.CurrentPercent)
	}

	// Completion snaps traffic to the target.
	tracker.OnStageCompleted("sr-1", schema.StatusSuccess)
	settled, err := tracker.Get(deployment.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if settled.Traffic.CurrentPercent != 100 {
		t.Errorf("current = %d%%, want 100%% after completion", settled.Traffic.CurrentPercent)
	}
	if _, err := tracker.AdvanceTraffic(deployment.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("AdvanceTraffic on settled deployment = %v, want ErrInvalidState", err)
	}
}

func TestReleaseLifecycle(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(t, nil)
	deployment := tracker.OnStageEntered(testRun("v1"), deployStage("sr-1", "production"))
	tracker.OnStageCompleted("sr-1", schema.StatusSuccess)

	release, err := tracker.CreateRelease("1.4.0", "v1.4.0", "abc123", "bug fixes")
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if release.Status != schema.ReleaseDraft {
		t.Errorf("status = %s, want draft", release.Status)
	}

	release, err = tracker.AttachDeployment(release.ID, deployment.ID)
	if err != nil {
		t.Fatalf("AttachDeployment: %v", err)
	}
	if len(release.Deployments) != 1 || release.Deployments[0].Environment != "production" {
		t.Errorf("deployments = %+v, want one production entry", release.Deployments)
	}

	// Only the strictly-forward chain is legal.
	if _, err := tracker.AdvanceRelease(release.ID, schema.ReleaseReleased); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("skipping pending = %v, want ErrInvalidState", err)
	}
	for _, target := range []schema.ReleaseStatus{
		schema.ReleasePending,
		schema.ReleaseReleased,
		schema.ReleaseArchived,
	} {
		release, err = tracker.AdvanceRelease(release.ID, target)
		if err != nil {
			t.Fatalf("AdvanceRelease(%s): %v", target, err)
		}
	}
	if _, err := tracker.AdvanceRelease(release.ID, schema.ReleaseDraft); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("advancing archived release = %v, want ErrInvalidState", err)
	}
}

func TestUnknownDeployment(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(t, nil)
	if _, err := tracker.Get("dep-absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
	if _, err := tracker.RecordHealthCheck("dep-absent", schema.HealthCheck{Service: "api", Endpoint: "/healthz"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RecordHealthCheck = %v, want ErrNotFound", err)
	}
	if _, err := tracker.Rollback("dep-absent", "ops", "reason"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rollback = %v, want ErrNotFound", err)
	}
}
