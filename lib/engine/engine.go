// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/deploy"
	"github.com/conveyor-foundation/conveyor/lib/eventbus"
	"github.com/conveyor-foundation/conveyor/lib/metrics"
	"github.com/conveyor-foundation/conveyor/lib/pipelinedef"
	"github.com/conveyor-foundation/conveyor/lib/runlog"
	"github.com/conveyor-foundation/conveyor/lib/schema"
	"github.com/conveyor-foundation/conveyor/lib/trigger"
)

// Config holds the engine's collaborators. Definitions, Invoker, and
// Clock are required; the rest are optional.
type Config struct {
	// Definitions resolves pipeline IDs.
	Definitions DefinitionStore

	// Invoker starts jobs on execution infrastructure.
	Invoker RunnerInvoker

	// Clock drives all timestamps and timeout timers.
	Clock clock.Clock

	// Bus receives lifecycle events. Optional.
	Bus *eventbus.Bus

	// Tracker records deployments for deploy stages. Optional.
	Tracker *deploy.Tracker

	// Archive persists terminal runs and backs metrics. Optional;
	// without it terminal runs stay in memory only and Metrics fails.
	Archive *runlog.Archive

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Engine drives pipeline runs. Safe for concurrent use by many
// callers; see the package documentation for the locking model.
type Engine struct {
	definitions DefinitionStore
	invoker     RunnerInvoker
	clock       clock.Clock
	bus         *eventbus.Bus
	tracker     *deploy.Tracker
	archive     *runlog.Archive
	aggregator  *metrics.Aggregator
	logger      *slog.Logger

	// registry guards the maps below, never individual run state.
	// It must not be held while acquiring a run's mutex; the reverse
	// order is allowed.
	registry registryState
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Definitions == nil {
		return nil, fmt.Errorf("engine: Definitions is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("engine: Invoker is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("engine: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	engine := &Engine{
		definitions: cfg.Definitions,
		invoker:     cfg.Invoker,
		clock:       cfg.Clock,
		bus:         cfg.Bus,
		tracker:     cfg.Tracker,
		archive:     cfg.Archive,
		logger:      logger,
	}
	if cfg.Archive != nil {
		engine.aggregator = metrics.NewAggregator(cfg.Archive)
	}
	engine.registry.init()
	return engine, nil
}

// TriggerRun starts a run manually. The trigger is recorded with type
// manual and the given actor and ref. Fails with ErrNotFound for an
// unknown pipeline, ErrDefinitionInvalid for a definition that does
// not validate, and ErrQueueFull when the pipeline's queue limit is
// reached.
func (e *Engine) TriggerRun(ctx context.Context, pipelineID, actor, ref string) (*schema.RunSnapshot, error) {
	def, err := e.definitions.GetDefinition(pipelineID)
	if err != nil {
		return nil, err
	}
	descriptor := schema.TriggerDescriptor{
		Type:  schema.TriggerManual,
		Actor: actor,
		Ref:   ref,
	}
	return e.startRun(ctx, def, descriptor)
}

// HandleEvent evaluates a pipeline's trigger rules against an inbound
// event and starts at most one run. Multiple matching rules are
// deduplicated into a single run recording the first match. Fails
// with ErrNoTriggerMatch when no enabled rule matches.
func (e *Engine) HandleEvent(ctx context.Context, pipelineID string, event schema.Event) (*schema.RunSnapshot, error) {
	def, err := e.definitions.GetDefinition(pipelineID)
	if err != nil {
		return nil, err
	}
	matches := trigger.Evaluate(def, event)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: pipeline %s, event %s on %s", ErrNoTriggerMatch, pipelineID, event.Type, event.Ref)
	}
	descriptor := schema.TriggerDescriptor{
		Type:   event.Type,
		Actor:  event.Actor,
		Ref:    event.Ref,
		Commit: event.Commit,
		RuleID: matches[0].ID,
	}
	return e.startRun(ctx, def, descriptor)
}

// startRun validates, builds, registers, and starts a run. Auto-cancel
// victims are cancelled after the new run is registered (so the new
// number is already reserved) but before it starts executing.
func (e *Engine) startRun(ctx context.Context, def *schema.PipelineDefinition, descriptor schema.TriggerDescriptor) (*schema.RunSnapshot, error) {
	if issues := pipelinedef.Validate(def); len(issues) > 0 {
		return nil, fmt.Errorf("%w: pipeline %s: %s", ErrDefinitionInvalid, def.ID, strings.Join(issues, "; "))
	}

	now := e.clock.Now()
	rs, victims, err := e.registry.register(e, def, descriptor, now)
	if err != nil {
		return nil, err
	}

	for _, victim := range victims {
		reason := fmt.Sprintf("superseded by run #%d for %s", rs.run.Number, descriptor.Ref)
		if err := e.cancelRun(victim, reason); err != nil {
			// Lost the race against the victim finishing on its own;
			// that satisfies auto-cancel just as well.
			e.logger.Debug("auto-cancel skipped", "run_id", victim.run.ID, "error", err)
		}
	}

	var fx effects
	rs.mu.Lock()
	e.publishLocked(rs, schema.EventRunTriggered, "")
	e.armRunTimerLocked(rs)
	e.advanceLocked(rs, &fx)
	snapshot := snapshotLocked(rs)
	rs.mu.Unlock()

	e.logger.Info("run triggered",
		"run_id", rs.run.ID,
		"pipeline_id", def.ID,
		"number", rs.run.Number,
		"trigger", descriptor.Type,
		"ref", descriptor.Ref,
	)
	e.applyEffects(ctx, rs, &fx)
	return snapshot, nil
}

// CancelRun cancels a pending or running run: the run and every
// non-terminal unit below it are forced to cancelled, already-terminal
// units are left untouched. Fails with ErrInvalidState for terminal
// runs.
func (e *Engine) CancelRun(ctx context.Context, runID string) error {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return err
	}
	if err := e.cancelRun(rs, ""); err != nil {
		return err
	}
	e.logger.Info("run cancelled", "run_id", runID)
	return nil
}

func (e *Engine) cancelRun(rs *runState, reason string) error {
	var fx effects
	rs.mu.Lock()
	if rs.run.Status.Terminal() {
		rs.mu.Unlock()
		return fmt.Errorf("%w: run %s is already %s", ErrInvalidState, rs.run.ID, rs.run.Status)
	}
	e.cancelLocked(rs, reason, &fx)
	rs.mu.Unlock()
	e.applyEffects(context.Background(), rs, &fx)
	return nil
}

// ApproveStage records an approval decision on a waiting stage and
// lets the run proceed. The stage may be addressed by name or by
// stage run ID.
func (e *Engine) ApproveStage(ctx context.Context, runID, stageRef, approver, comment string) error {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return err
	}

	var fx effects
	rs.mu.Lock()
	stage := rs.findStage(stageRef)
	if stage == nil {
		rs.mu.Unlock()
		return fmt.Errorf("%w: stage %s in run %s", ErrNotFound, stageRef, runID)
	}
	if stage.Status != schema.StatusWaiting {
		rs.mu.Unlock()
		return fmt.Errorf("%w: stage %s is %s", ErrNotAwaitingApproval, stage.Name, stage.Status)
	}
	if !stage.Approval.Allows(approver) {
		rs.mu.Unlock()
		return fmt.Errorf("%w: %s may not decide stage %s", ErrApproverNotAllowed, approver, stage.Name)
	}

	stage.Approval.Decision = &schema.ApprovalDecision{
		Approved: true,
		Approver: approver,
		Comment:  comment,
		Time:     e.clock.Now(),
	}
	rs.stopTimer(stage.ID)
	e.publishLocked(rs, schema.EventStageApproved, stage.Name)
	e.afterApprovalLocked(rs, stage, &fx)
	rs.mu.Unlock()

	e.logger.Info("stage approved",
		"run_id", runID,
		"stage", stage.Name,
		"approver", approver,
	)
	e.applyEffects(ctx, rs, &fx)
	return nil
}

// RejectStage records a rejection on a waiting stage. The stage fails
// and the run proceeds only into stages conditioned on failure.
func (e *Engine) RejectStage(ctx context.Context, runID, stageRef, approver, reason string) error {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return err
	}

	var fx effects
	rs.mu.Lock()
	stage := rs.findStage(stageRef)
	if stage == nil {
		rs.mu.Unlock()
		return fmt.Errorf("%w: stage %s in run %s", ErrNotFound, stageRef, runID)
	}
	if stage.Status != schema.StatusWaiting {
		rs.mu.Unlock()
		return fmt.Errorf("%w: stage %s is %s", ErrNotAwaitingApproval, stage.Name, stage.Status)
	}
	if !stage.Approval.Allows(approver) {
		rs.mu.Unlock()
		return fmt.Errorf("%w: %s may not decide stage %s", ErrApproverNotAllowed, approver, stage.Name)
	}

	stage.Approval.Decision = &schema.ApprovalDecision{
		Approved: false,
		Approver: approver,
		Comment:  reason,
		Time:     e.clock.Now(),
	}
	rs.stopTimer(stage.ID)
	rs.appendError(stage.Name, "", fmt.Sprintf("rejected by %s: %s", approver, reason), e.clock.Now())
	e.publishLocked(rs, schema.EventStageRejected, stage.Name)
	e.completeStageLocked(rs, stage, schema.StatusFailed, &fx)
	rs.mu.Unlock()

	e.logger.Info("stage rejected",
		"run_id", runID,
		"stage", stage.Name,
		"approver", approver,
		"reason", reason,
	)
	e.applyEffects(ctx, rs, &fx)
	return nil
}

// ReportStepResult records a step's terminal result from the runner.
// An empty status is derived from the exit code. Late reports against
// terminal steps or runs are accepted for logging but change no
// status.
func (e *Engine) ReportStepResult(ctx context.Context, stepRunID string, status schema.Status, exitCode int, logRef string) error {
	rs, err := e.registry.lookupStep(stepRunID)
	if err != nil {
		return err
	}

	if status == "" {
		status = schema.StatusSuccess
		if exitCode != 0 {
			status = schema.StatusFailed
		}
	}
	if !status.Terminal() {
		return fmt.Errorf("%w: step report must carry a terminal status, got %s", ErrInvalidState, status)
	}

	var fx effects
	rs.mu.Lock()
	step := rs.steps[stepRunID]
	now := e.clock.Now()

	if step.Status.Terminal() || rs.run.Status.Terminal() {
		// Late report: record the log reference, never revert status.
		if logRef != "" {
			rs.run.LogRefs = append(rs.run.LogRefs, logRef)
		}
		rs.mu.Unlock()
		return nil
	}

	step.ExitCode = exitCode
	step.LogRef = logRef
	if logRef != "" {
		rs.run.LogRefs = append(rs.run.LogRefs, logRef)
	}

	job := rs.jobs[step.JobRunID]
	if status == schema.StatusFailed {
		stage := rs.stageByID(job.StageRunID)
		rs.appendError(stage.Name, job.Name,
			fmt.Sprintf("step %s failed (exit %d)", step.Name, exitCode), now)
	}

	e.stepFinishedLocked(rs, step, status, &fx)
	rs.mu.Unlock()

	e.applyEffects(ctx, rs, &fx)
	return nil
}

// ReportJobResult records a job's terminal result from the runner,
// for runners that report at job granularity. Remaining non-terminal
// steps are marked skipped. Late reports are accepted but change no
// status.
func (e *Engine) ReportJobResult(ctx context.Context, jobRunID string, status schema.Status) error {
	rs, err := e.registry.lookupJob(jobRunID)
	if err != nil {
		return err
	}
	if !status.Terminal() {
		return fmt.Errorf("%w: job report must carry a terminal status, got %s", ErrInvalidState, status)
	}

	var fx effects
	rs.mu.Lock()
	job := rs.jobs[jobRunID]
	if job.Status.Terminal() || rs.run.Status.Terminal() {
		rs.mu.Unlock()
		return nil
	}
	if status == schema.StatusFailed {
		stage := rs.stageByID(job.StageRunID)
		rs.appendError(stage.Name, job.Name, "job failed", e.clock.Now())
	}
	e.jobFinishedLocked(rs, job, status, &fx)
	rs.mu.Unlock()

	e.applyEffects(ctx, rs, &fx)
	return nil
}

// ReportArtifact records a produced artifact on a run. Artifact
// records are append-only and accepted even after the run is
// terminal.
func (e *Engine) ReportArtifact(ctx context.Context, runID string, artifact schema.Artifact) error {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return err
	}
	if artifact.Ref == "" {
		return fmt.Errorf("artifact requires a ref")
	}
	rs.mu.Lock()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = e.clock.Now()
	}
	rs.run.Artifacts = append(rs.run.Artifacts, artifact)
	rs.mu.Unlock()
	return nil
}

// GetRun returns the current snapshot of a run, consulting the
// archive for runs no longer in memory.
func (e *Engine) GetRun(ctx context.Context, runID string) (*schema.RunSnapshot, error) {
	if rs, err := e.registry.lookupRun(runID); err == nil {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		return snapshotLocked(rs), nil
	}
	if e.archive != nil {
		snapshot, err := e.archive.Get(ctx, runID)
		if err == nil {
			return snapshot, nil
		}
	}
	return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
}

// ListActiveRuns returns snapshots of all in-memory runs, optionally
// filtered by pipeline. Ordered by run number per pipeline.
func (e *Engine) ListActiveRuns(pipelineID string) []*schema.RunSnapshot {
	states := e.registry.activeStates(pipelineID)
	snapshots := make([]*schema.RunSnapshot, 0, len(states))
	for _, rs := range states {
		rs.mu.Lock()
		snapshots = append(snapshots, snapshotLocked(rs))
		rs.mu.Unlock()
	}
	return snapshots
}

// Metrics aggregates pipeline statistics over archived runs queued in
// [since, until). Requires an archive.
func (e *Engine) Metrics(ctx context.Context, pipelineID string, since, until time.Time) (metrics.PipelineMetrics, error) {
	if e.aggregator == nil {
		return metrics.PipelineMetrics{}, fmt.Errorf("engine: metrics require a run archive")
	}
	return e.aggregator.Compute(ctx, pipelineID, since, until)
}

// applyEffects performs the external work a transition produced,
// after the run's mutex is released: job dispatches, archiving, and
// registry cleanup.
func (e *Engine) applyEffects(ctx context.Context, rs *runState, fx *effects) {
	if fx.terminal {
		e.registry.noteTerminal(rs)
	}
	if fx.archiveSnapshot != nil && e.archive != nil {
		// Archive writes are I/O; never do them on the transition
		// path.
		go func(snapshot *schema.RunSnapshot) {
			if err := e.archive.Record(context.Background(), snapshot); err != nil {
				e.logger.Error("archiving run failed",
					"run_id", snapshot.Run.ID,
					"error", err,
				)
			}
		}(fx.archiveSnapshot)
	}
	for _, dispatch := range fx.dispatches {
		if err := e.invoker.Dispatch(ctx, dispatch); err != nil {
			e.logger.Error("job dispatch failed",
				"run_id", dispatch.RunID,
				"job_run_id", dispatch.Job.ID,
				"error", err,
			)
			// The job never started; record it as failed.
			if reportErr := e.ReportJobResult(ctx, dispatch.Job.ID, schema.StatusFailed); reportErr != nil {
				e.logger.Error("recording dispatch failure failed",
					"job_run_id", dispatch.Job.ID,
					"error", reportErr,
				)
			}
		}
	}
}

// publishLocked emits a lifecycle event carrying the current run
// snapshot. Called with rs.mu held so events for one run are
// published in transition order; the bus never blocks.
func (e *Engine) publishLocked(rs *runState, kind schema.LifecycleKind, stageName string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(schema.LifecycleEvent{
		Kind:       kind,
		PipelineID: rs.run.PipelineID,
		RunID:      rs.run.ID,
		Time:       e.clock.Now(),
		Stage:      stageName,
		Run:        snapshotLocked(rs),
	})
}
