// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/eventbus"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

var (
	// ErrNotFound is returned for unknown deployment or release IDs.
	ErrNotFound = errors.New("not found")

	// ErrRollbackUnavailable is returned when a deployment has no
	// prior version to revert to, is still in progress, or was
	// already rolled back.
	ErrRollbackUnavailable = errors.New("rollback unavailable")

	// ErrInvalidState is returned for operations illegal in the
	// entity's current status, such as advancing an archived release.
	ErrInvalidState = errors.New("invalid state")
)

// Config holds the tracker's collaborators and policy.
type Config struct {
	// Clock stamps creation, update, health-check, and rollback
	// times. Required.
	Clock clock.Clock

	// Bus receives deployment.created and deployment.rolled_back
	// events. Optional.
	Bus *eventbus.Bus

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// Strategies maps environment names to rollout strategies.
	// Environments not listed use DefaultStrategy.
	Strategies map[string]schema.Strategy

	// DefaultStrategy is used for environments without an explicit
	// strategy. Defaults to rolling.
	DefaultStrategy schema.Strategy
}

// Tracker owns all deployment and release records for one engine
// process. Safe for concurrent use.
type Tracker struct {
	clock           clock.Clock
	bus             *eventbus.Bus
	logger          *slog.Logger
	strategies      map[string]schema.Strategy
	defaultStrategy schema.Strategy

	mu          sync.Mutex
	deployments map[string]*schema.Deployment
	releases    map[string]*schema.Release

	// byStageRun resolves the stage run that produced a deployment,
	// so stage completion can settle the record.
	byStageRun map[string]string

	// lastVersion tracks the version currently live in each
	// environment. It seeds PreviousVersion and rollback
	// availability for the next deployment there.
	lastVersion map[string]string

	releaseCounter int64
}

// NewTracker creates a Tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("deploy: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	defaultStrategy := cfg.DefaultStrategy
	if defaultStrategy == "" {
		defaultStrategy = schema.StrategyRolling
	}
	return &Tracker{
		clock:           cfg.Clock,
		bus:             cfg.Bus,
		logger:          logger,
		strategies:      cfg.Strategies,
		defaultStrategy: defaultStrategy,
		deployments:     make(map[string]*schema.Deployment),
		releases:        make(map[string]*schema.Release),
		byStageRun:      make(map[string]string),
		lastVersion:     make(map[string]string),
	}, nil
}

// OnStageEntered creates a deployment record when a deploy-type stage
// starts running. Non-deploy stages are ignored and return nil. The
// deployed version is the run's commit (falling back to its ref), and
// rollback availability is seeded from whatever version was last
// deployed to the same environment.
func (t *Tracker) OnStageEntered(run *schema.Run, stage *schema.StageRun) *schema.Deployment {
	if stage.Type != schema.StageDeploy {
		return nil
	}

	version := run.Trigger.Commit
	if version == "" {
		version = run.Trigger.Ref
	}
	if version == "" {
		version = fmt.Sprintf("%s#%d", run.PipelineID, run.Number)
	}

	t.mu.Lock()
	previous := t.lastVersion[stage.Environment]
	strategy := t.strategies[stage.Environment]
	if strategy == "" {
		strategy = t.defaultStrategy
	}

	deployment := &schema.Deployment{
		ID:              "dep-" + stage.ID,
		RunID:           run.ID,
		StageRunID:      stage.ID,
		Environment:     stage.Environment,
		Strategy:        strategy,
		Version:         version,
		PreviousVersion: previous,
		Rollback: schema.RollbackDescriptor{
			Available:    previous != "",
			PriorVersion: previous,
		},
		Status:    schema.DeploymentInProgress,
		CreatedAt: t.clock.Now(),
		UpdatedAt: t.clock.Now(),
	}
	if strategy == schema.StrategyCanary || strategy == schema.StrategyABTest {
		deployment.Traffic = &schema.TrafficShift{
			CurrentPercent:   0,
			TargetPercent:    100,
			IncrementPercent: 20,
		}
	}
	t.deployments[deployment.ID] = deployment
	t.byStageRun[stage.ID] = deployment.ID
	published := snapshot(deployment)
	t.mu.Unlock()

	t.logger.Info("deployment created",
		"deployment_id", deployment.ID,
		"run_id", run.ID,
		"environment", stage.Environment,
		"version", version,
		"strategy", strategy,
	)
	t.publish(schema.EventDeployCreated, published)
	return published
}

// OnStageCompleted settles the deployment for a finished deploy
// stage: stage success marks the deployment successful and records
// its version as live in the environment; any other terminal stage
// status marks it failed. Stages without a deployment are ignored.
func (t *Tracker) OnStageCompleted(stageRunID string, stageStatus schema.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deploymentID, ok := t.byStageRun[stageRunID]
	if !ok {
		return
	}
	deployment := t.deployments[deploymentID]
	if deployment.Status.Terminal() {
		return
	}

	if stageStatus == schema.StatusSuccess {
		deployment.Status = schema.DeploymentSuccess
		t.lastVersion[deployment.Environment] = deployment.Version
		if deployment.Traffic != nil {
			deployment.Traffic.CurrentPercent = deployment.Traffic.TargetPercent
		}
	} else {
		deployment.Status = schema.DeploymentFailed
	}
	deployment.UpdatedAt = t.clock.Now()

	t.logger.Info("deployment settled",
		"deployment_id", deployment.ID,
		"status", deployment.Status,
	)
}

// UpsertService records (or updates) a deployed service's replica
// counts. Aggregate health is recomputed from previously recorded
// checks.
func (t *Tracker) UpsertService(deploymentID string, service schema.DeployedService) (*schema.Deployment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deployment, ok := t.deployments[deploymentID]
	if !ok {
		return nil, fmt.Errorf("%w: deployment %s", ErrNotFound, deploymentID)
	}

	replaced := false
	for i := range deployment.Services {
		if deployment.Services[i].Name == service.Name {
			service.Health = deployment.Services[i].Health
			deployment.Services[i] = service
			replaced = true
			break
		}
	}
	if !replaced {
		service.Health = schema.ServiceHealthUnknown
		deployment.Services = append(deployment.Services, service)
	}
	t.recomputeHealth(deployment, service.Name)
	deployment.UpdatedAt = t.clock.Now()
	return snapshot(deployment), nil
}

// RecordHealthCheck records one endpoint probe and recomputes the
// aggregate health of the probed service. Checks arriving after the
// deployment reached a terminal status are recorded but do not change
// the status.
func (t *Tracker) RecordHealthCheck(deploymentID string, check schema.HealthCheck) (*schema.Deployment, error) {
	if check.Service == "" || check.Endpoint == "" {
		return nil, fmt.Errorf("health check requires service and endpoint")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	deployment, ok := t.deployments[deploymentID]
	if !ok {
		return nil, fmt.Errorf("%w: deployment %s", ErrNotFound, deploymentID)
	}

	if check.CheckedAt.IsZero() {
		check.CheckedAt = t.clock.Now()
	}

	// Later checks for the same service+endpoint replace earlier
	// ones.
	replaced := false
	for i := range deployment.Checks {
		if deployment.Checks[i].Service == check.Service && deployment.Checks[i].Endpoint == check.Endpoint {
			deployment.Checks[i] = check
			replaced = true
			break
		}
	}
	if !replaced {
		deployment.Checks = append(deployment.Checks, check)
	}

	t.recomputeHealth(deployment, check.Service)
	deployment.UpdatedAt = t.clock.Now()
	return snapshot(deployment), nil
}

// recomputeHealth derives the aggregate health of one service from
// its recorded checks: healthy iff every check is healthy, degraded
// if some fail but ready replicas remain, unhealthy otherwise.
// Services with no checks stay unknown. Caller holds t.mu.
func (t *Tracker) recomputeHealth(deployment *schema.Deployment, serviceName string) {
	var healthy, unhealthy int
	for _, check := range deployment.Checks {
		if check.Service != serviceName {
			continue
		}
		if check.Healthy {
			healthy++
		} else {
			unhealthy++
		}
	}

	for i := range deployment.Services {
		service := &deployment.Services[i]
		if service.Name != serviceName {
			continue
		}
		switch {
		case healthy == 0 && unhealthy == 0:
			service.Health = schema.ServiceHealthUnknown
		case unhealthy == 0:
			service.Health = schema.ServiceHealthy
		case service.ReadyReplicas > 0:
			service.Health = schema.ServiceDegraded
		default:
			service.Health = schema.ServiceUnhealthy
		}
		return
	}

	// Checks for a service nobody registered: create the record so
	// the report is not lost.
	if healthy+unhealthy > 0 {
		health := schema.ServiceUnhealthy
		if unhealthy == 0 {
			health = schema.ServiceHealthy
		}
		deployment.Services = append(deployment.Services, schema.DeployedService{
			Name:   serviceName,
			Health: health,
		})
	}
}

// AdvanceTraffic moves a progressive rollout's traffic by its
// configured increment, clamped to the target. Fails for deployments
// without traffic-shift state.
func (t *Tracker) AdvanceTraffic(deploymentID string) (*schema.Deployment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deployment, ok := t.deployments[deploymentID]
	if !ok {
		return nil, fmt.Errorf("%w: deployment %s", ErrNotFound, deploymentID)
	}
	if deployment.Traffic == nil {
		return nil, fmt.Errorf("%w: deployment %s has no traffic shift", ErrInvalidState, deploymentID)
	}
	if deployment.Status.Terminal() {
		return nil, fmt.Errorf("%w: deployment %s is %s", ErrInvalidState, deploymentID, deployment.Status)
	}

	traffic := deployment.Traffic
	traffic.CurrentPercent += traffic.IncrementPercent
	if traffic.CurrentPercent > traffic.TargetPercent {
		traffic.CurrentPercent = traffic.TargetPercent
	}
	deployment.UpdatedAt = t.clock.Now()
	return snapshot(deployment), nil
}

// Rollback reverts a deployment record to its prior version. Legal
// only when a prior version exists and the deployment is in a
// terminal, non-rolled-back state. Rollback changes the record and
// the environment's tracked live version; it never triggers a new
// run.
func (t *Tracker) Rollback(deploymentID, actor, reason string) (*schema.Deployment, error) {
	t.mu.Lock()

	deployment, ok := t.deployments[deploymentID]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: deployment %s", ErrNotFound, deploymentID)
	}
	if !deployment.Rollback.Available {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: deployment %s has no prior version", ErrRollbackUnavailable, deploymentID)
	}
	if deployment.Status == schema.DeploymentRolledBack {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: deployment %s already rolled back", ErrRollbackUnavailable, deploymentID)
	}
	if !deployment.Status.Terminal() {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: deployment %s is still %s", ErrRollbackUnavailable, deploymentID, deployment.Status)
	}

	now := t.clock.Now()
	deployment.Status = schema.DeploymentRolledBack
	deployment.Rollback.Actor = actor
	deployment.Rollback.Reason = reason
	deployment.Rollback.Time = &now
	deployment.UpdatedAt = now
	t.lastVersion[deployment.Environment] = deployment.Rollback.PriorVersion
	published := snapshot(deployment)
	t.mu.Unlock()

	t.logger.Info("deployment rolled back",
		"deployment_id", deploymentID,
		"actor", actor,
		"reason", reason,
		"prior_version", published.Rollback.PriorVersion,
	)
	t.publish(schema.EventDeployRolledBack, published)
	return published, nil
}

// Get returns a copy of the deployment record.
func (t *Tracker) Get(deploymentID string) (*schema.Deployment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	deployment, ok := t.deployments[deploymentID]
	if !ok {
		return nil, fmt.Errorf("%w: deployment %s", ErrNotFound, deploymentID)
	}
	return snapshot(deployment), nil
}

// ListForRun returns copies of all deployments created by one run.
func (t *Tracker) ListForRun(runID string) []*schema.Deployment {
	t.mu.Lock()
	defer t.mu.Unlock()
	var result []*schema.Deployment
	for _, deployment := range t.deployments {
		if deployment.RunID == runID {
			result = append(result, snapshot(deployment))
		}
	}
	return result
}

func (t *Tracker) publish(kind schema.LifecycleKind, deployment *schema.Deployment) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(schema.LifecycleEvent{
		Kind:       kind,
		RunID:      deployment.RunID,
		Time:       t.clock.Now(),
		Deployment: deployment,
	})
}

// snapshot deep-copies a deployment so callers and bus subscribers
// never alias tracker-owned state.
func snapshot(deployment *schema.Deployment) *schema.Deployment {
	copied := *deployment
	copied.Services = append([]schema.DeployedService(nil), deployment.Services...)
	copied.Checks = append([]schema.HealthCheck(nil), deployment.Checks...)
	if deployment.Traffic != nil {
		traffic := *deployment.Traffic
		copied.Traffic = &traffic
	}
	if deployment.Rollback.Time != nil {
		rollbackTime := *deployment.Rollback.Time
		copied.Rollback.Time = &rollbackTime
	}
	return &copied
}
