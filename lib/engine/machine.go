// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// runState is the arena for one run: the run record plus every stage,
// job, and step record keyed by ID. All fields are guarded by mu;
// transitions hold it for their whole duration, so a run's state is
// always observed at a transition boundary.
type runState struct {
	mu sync.Mutex

	def *schema.PipelineDefinition
	run *schema.Run

	stages    []*schema.StageRun
	jobs      map[string]*schema.JobRun
	steps     map[string]*schema.StepRun
	stageJobs map[string][]*schema.JobRun
	jobSteps  map[string][]*schema.StepRun

	// nextStage indexes the first stage not yet started or skipped;
	// active holds the indexes of started, non-terminal stages.
	nextStage int
	active    map[int]struct{}

	// effective is the outcome driving condition checks: the terminal
	// status of the most recent non-skipped stage, seeded success so
	// the first stage is eligible.
	effective schema.Status

	// pendingDispatch queues jobs of started stages awaiting a
	// concurrency slot; dispatching counts jobs handed to the runner
	// and not yet terminal.
	pendingDispatch []*schema.JobRun
	dispatching     int

	// timers are pending timeout timers keyed by unit ID (the run's
	// own ID for the run timeout).
	timers map[string]*clock.Timer
}

// effects accumulates the external work a transition produced, to be
// performed after rs.mu is released.
type effects struct {
	dispatches      []JobDispatch
	archiveSnapshot *schema.RunSnapshot
	terminal        bool
}

func (rs *runState) findStage(ref string) *schema.StageRun {
	for _, stage := range rs.stages {
		if stage.ID == ref || stage.Name == ref {
			return stage
		}
	}
	return nil
}

func (rs *runState) stageByID(id string) *schema.StageRun {
	for _, stage := range rs.stages {
		if stage.ID == id {
			return stage
		}
	}
	return nil
}

func (rs *runState) stageIndex(stage *schema.StageRun) int {
	for i, candidate := range rs.stages {
		if candidate == stage {
			return i
		}
	}
	return -1
}

func (rs *runState) appendError(stage, job, message string, now time.Time) {
	rs.run.Errors = append(rs.run.Errors, schema.ErrorRecord{
		Stage:   stage,
		Job:     job,
		Message: message,
		Time:    now,
	})
}

func (rs *runState) stopTimer(key string) {
	if timer, ok := rs.timers[key]; ok {
		timer.Stop()
		delete(rs.timers, key)
	}
}

func (rs *runState) stopAllTimers() {
	for key, timer := range rs.timers {
		timer.Stop()
		delete(rs.timers, key)
	}
}

// conditionMet evaluates a stage's start condition against the
// effective outcome of its predecessors. An empty condition means
// on_success. Manual gating is handled through the approval state,
// not here.
func conditionMet(condition schema.Condition, effective schema.Status) bool {
	switch condition {
	case schema.ConditionAlways, schema.ConditionManual:
		return true
	case schema.ConditionOnFailure:
		return effective == schema.StatusFailed
	default: // on_success, or unset
		return effective == schema.StatusSuccess
	}
}

// advanceLocked is the scheduler: it starts, skips, and gates stages
// until it hits one that must wait, then fills free dispatch slots
// and finishes the run when nothing remains.
func (e *Engine) advanceLocked(rs *runState, fx *effects) {
	if rs.run.Status.Terminal() {
		return
	}

	for rs.nextStage < len(rs.stages) {
		stage := rs.stages[rs.nextStage]

		// A stage may start alongside running predecessors only when
		// marked parallel; approval gates always wait for the running
		// group to settle so the decision sees settled state.
		if len(rs.active) > 0 && (!stage.Parallel || stage.Approval != nil) {
			break
		}

		if !conditionMet(stage.Condition, rs.effective) {
			e.skipStageLocked(rs, stage)
			rs.nextStage++
			continue
		}

		if stage.Approval != nil && stage.Approval.Decision == nil {
			e.enterWaitingLocked(rs, stage)
			rs.active[rs.nextStage] = struct{}{}
			rs.nextStage++
			break
		}

		e.startStageLocked(rs, stage, rs.nextStage, fx)
		rs.nextStage++
	}

	e.fillDispatchLocked(rs, fx)

	if rs.nextStage >= len(rs.stages) && len(rs.active) == 0 && !rs.run.Status.Terminal() {
		status := schema.StatusSuccess
		for _, stage := range rs.stages {
			if stage.Status != schema.StatusSuccess && stage.Status != schema.StatusSkipped {
				status = schema.StatusFailed
				break
			}
		}
		e.finishRunLocked(rs, status, fx)
	}
}

// skipStageLocked marks a stage the run never reached, and its
// children, skipped. Skipped stages do not update the effective
// outcome.
func (e *Engine) skipStageLocked(rs *runState, stage *schema.StageRun) {
	stage.Status = schema.StatusSkipped
	for _, job := range rs.stageJobs[stage.ID] {
		job.Status = schema.StatusSkipped
		for _, step := range rs.jobSteps[job.ID] {
			step.Status = schema.StatusSkipped
		}
	}
	e.logger.Debug("stage skipped",
		"run_id", rs.run.ID,
		"stage", stage.Name,
		"condition", stage.Condition,
		"effective", rs.effective,
	)
}

// enterWaitingLocked holds an approval-gated stage in waiting and
// arms its decision timeout.
func (e *Engine) enterWaitingLocked(rs *runState, stage *schema.StageRun) {
	stage.Status = schema.StatusWaiting
	e.publishLocked(rs, schema.EventStageWaiting, stage.Name)

	if timeout := parseTimeout(stage.Approval.Timeout); timeout > 0 {
		stageID := stage.ID
		runID := rs.run.ID
		rs.timers[stageID] = e.clock.AfterFunc(timeout, func() {
			e.onApprovalTimeout(runID, stageID, timeout)
		})
	}
	e.logger.Info("stage awaiting approval",
		"run_id", rs.run.ID,
		"stage", stage.Name,
		"approvers", stage.Approval.Approvers,
	)
}

// afterApprovalLocked resumes an approved stage: stages with jobs run
// them, empty gates complete immediately.
func (e *Engine) afterApprovalLocked(rs *runState, stage *schema.StageRun, fx *effects) {
	if len(rs.stageJobs[stage.ID]) == 0 {
		e.completeStageLocked(rs, stage, schema.StatusSuccess, fx)
		return
	}

	now := e.clock.Now()
	stage.Status = schema.StatusRunning
	stage.Timing.StartedAt = &now
	e.markRunRunningLocked(rs, now)

	runID := rs.run.ID
	stageID := stage.ID
	if timeout := parseTimeout(stage.Timeout); timeout > 0 {
		rs.timers[stageID] = e.clock.AfterFunc(timeout, func() {
			e.onStageTimeout(runID, stageID, timeout)
		})
	}
	rs.pendingDispatch = append(rs.pendingDispatch, rs.stageJobs[stage.ID]...)
	e.fillDispatchLocked(rs, fx)
}

// startStageLocked moves an eligible stage to running: stamps timing,
// arms its timeout, creates the deployment record for deploy stages,
// and queues its jobs. Stages without jobs complete immediately.
func (e *Engine) startStageLocked(rs *runState, stage *schema.StageRun, index int, fx *effects) {
	now := e.clock.Now()
	stage.Status = schema.StatusRunning
	stage.Timing.StartedAt = &now
	rs.active[index] = struct{}{}
	e.markRunRunningLocked(rs, now)

	if e.tracker != nil {
		e.tracker.OnStageEntered(rs.run, stage)
	}

	if len(rs.stageJobs[stage.ID]) == 0 {
		e.completeStageLocked(rs, stage, schema.StatusSuccess, fx)
		return
	}

	stageID := stage.ID
	runID := rs.run.ID
	if timeout := parseTimeout(stage.Timeout); timeout > 0 {
		rs.timers[stageID] = e.clock.AfterFunc(timeout, func() {
			e.onStageTimeout(runID, stageID, timeout)
		})
	}
	rs.pendingDispatch = append(rs.pendingDispatch, rs.stageJobs[stage.ID]...)
}

func (e *Engine) markRunRunningLocked(rs *runState, now time.Time) {
	if rs.run.Status != schema.StatusPending {
		return
	}
	rs.run.Status = schema.StatusRunning
	rs.run.Timing.StartedAt = &now
	e.publishLocked(rs, schema.EventRunStarted, "")
}

// fillDispatchLocked hands queued jobs to the runner up to the
// pipeline's concurrency cap. Dispatched jobs and their steps move to
// running together; the runner reports their individual outcomes.
func (e *Engine) fillDispatchLocked(rs *runState, fx *effects) {
	limit := rs.def.Settings.Concurrency
	for len(rs.pendingDispatch) > 0 && (limit == 0 || rs.dispatching < limit) {
		job := rs.pendingDispatch[0]
		rs.pendingDispatch = rs.pendingDispatch[1:]
		if job.Status != schema.StatusPending {
			continue
		}

		now := e.clock.Now()
		job.Status = schema.StatusRunning
		job.Timing.StartedAt = &now
		rs.dispatching++

		runID := rs.run.ID
		jobID := job.ID
		if timeout := parseTimeout(job.Timeout); timeout > 0 {
			rs.timers[jobID] = e.clock.AfterFunc(timeout, func() {
				e.onJobTimeout(runID, jobID, timeout)
			})
		}

		stage := rs.stageByID(job.StageRunID)
		steps := make([]schema.StepRun, 0, len(rs.jobSteps[job.ID]))
		for _, step := range rs.jobSteps[job.ID] {
			step.Status = schema.StatusRunning
			step.Timing.StartedAt = &now
			stepID := step.ID
			if timeout := parseTimeout(step.Timeout); timeout > 0 {
				rs.timers[stepID] = e.clock.AfterFunc(timeout, func() {
					e.onStepTimeout(runID, stepID, timeout)
				})
			}
			steps = append(steps, *step)
		}

		fx.dispatches = append(fx.dispatches, JobDispatch{
			PipelineID: rs.run.PipelineID,
			RunID:      rs.run.ID,
			StageName:  stage.Name,
			Job:        *job,
			Steps:      steps,
			Variables:  stageVariables(rs.def, stage),
		})
	}
}

// stepFinishedLocked settles one step and cascades: a blocking
// failure fails the job immediately; otherwise the job completes when
// its last step settles.
func (e *Engine) stepFinishedLocked(rs *runState, step *schema.StepRun, status schema.Status, fx *effects) {
	now := e.clock.Now()
	step.Status = status
	step.Timing.CompletedAt = &now
	rs.stopTimer(step.ID)

	job := rs.jobs[step.JobRunID]
	if job.Status.Terminal() {
		return
	}

	if status == schema.StatusFailed && !step.ContinueOnError {
		e.jobFinishedLocked(rs, job, schema.StatusFailed, fx)
		return
	}

	for _, sibling := range rs.jobSteps[job.ID] {
		if !sibling.Status.Terminal() {
			return
		}
	}
	// All steps terminal; failures that reach here were
	// continue-on-error and do not fail the job.
	e.jobFinishedLocked(rs, job, schema.StatusSuccess, fx)
}

// jobFinishedLocked settles one job, skips its unsettled steps, frees
// the dispatch slot, and completes the stage when its last job
// settles.
func (e *Engine) jobFinishedLocked(rs *runState, job *schema.JobRun, status schema.Status, fx *effects) {
	now := e.clock.Now()
	job.Status = status
	job.Timing.CompletedAt = &now
	rs.stopTimer(job.ID)
	if job.Timing.StartedAt != nil {
		rs.dispatching--
	}

	for _, step := range rs.jobSteps[job.ID] {
		if !step.Status.Terminal() {
			step.Status = schema.StatusSkipped
			rs.stopTimer(step.ID)
		}
	}

	stage := rs.stageByID(job.StageRunID)
	if stage.Status.Terminal() {
		return
	}
	for _, sibling := range rs.stageJobs[stage.ID] {
		if !sibling.Status.Terminal() {
			e.fillDispatchLocked(rs, fx)
			return
		}
	}

	stageStatus := schema.StatusSuccess
	for _, sibling := range rs.stageJobs[stage.ID] {
		if sibling.Status == schema.StatusFailed && !sibling.AllowFailure {
			stageStatus = schema.StatusFailed
			break
		}
		if sibling.Status == schema.StatusCancelled {
			stageStatus = schema.StatusFailed
			break
		}
	}
	e.completeStageLocked(rs, stage, stageStatus, fx)
}

// completeStageLocked settles a stage, updates the effective outcome,
// notifies the deployment tracker, and advances the scheduler.
func (e *Engine) completeStageLocked(rs *runState, stage *schema.StageRun, status schema.Status, fx *effects) {
	now := e.clock.Now()
	stage.Status = status
	stage.Timing.CompletedAt = &now
	rs.stopTimer(stage.ID)
	if index := rs.stageIndex(stage); index >= 0 {
		delete(rs.active, index)
	}
	if status != schema.StatusSkipped {
		rs.effective = status
	}
	if e.tracker != nil {
		e.tracker.OnStageCompleted(stage.ID, status)
	}

	e.logger.Info("stage completed",
		"run_id", rs.run.ID,
		"stage", stage.Name,
		"status", status,
	)
	e.advanceLocked(rs, fx)
}

// finishRunLocked settles the run, publishes the terminal event, and
// schedules archiving.
func (e *Engine) finishRunLocked(rs *runState, status schema.Status, fx *effects) {
	now := e.clock.Now()
	rs.run.Status = status
	rs.run.Timing.CompletedAt = &now
	rs.stopAllTimers()
	rs.pendingDispatch = nil

	kind := schema.EventRunCompleted
	if status == schema.StatusCancelled {
		kind = schema.EventRunCancelled
	}
	e.publishLocked(rs, kind, "")

	fx.archiveSnapshot = snapshotLocked(rs)
	fx.terminal = true

	e.logger.Info("run completed",
		"run_id", rs.run.ID,
		"pipeline_id", rs.run.PipelineID,
		"status", status,
		"duration", rs.run.Timing.Duration(),
	)
}

// cancelLocked is the cancellation cascade: every non-terminal unit
// in the tree is forced to cancelled, terminal units are untouched,
// and the run settles cancelled.
func (e *Engine) cancelLocked(rs *runState, reason string, fx *effects) {
	now := e.clock.Now()
	if reason != "" {
		rs.appendError("", "", reason, now)
	}

	for _, stage := range rs.stages {
		if stage.Status.Terminal() {
			continue
		}
		started := stage.Status != schema.StatusPending
		stage.Status = schema.StatusCancelled
		if started {
			stage.Timing.CompletedAt = &now
		}
		if e.tracker != nil && started {
			e.tracker.OnStageCompleted(stage.ID, schema.StatusCancelled)
		}
		for _, job := range rs.stageJobs[stage.ID] {
			if job.Status.Terminal() {
				continue
			}
			if job.Timing.StartedAt != nil {
				job.Timing.CompletedAt = &now
			}
			job.Status = schema.StatusCancelled
			for _, step := range rs.jobSteps[job.ID] {
				if step.Status.Terminal() {
					continue
				}
				if step.Timing.StartedAt != nil {
					step.Timing.CompletedAt = &now
				}
				step.Status = schema.StatusCancelled
			}
		}
	}

	rs.active = make(map[int]struct{})
	rs.nextStage = len(rs.stages)
	e.finishRunLocked(rs, schema.StatusCancelled, fx)
}

// Timeout callbacks. Each re-checks under the run's mutex: the unit
// may have settled between the timer firing and the lock being
// acquired.

func (e *Engine) onRunTimeout(runID string, timeout time.Duration) {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return
	}
	var fx effects
	rs.mu.Lock()
	if rs.run.Status.Terminal() {
		rs.mu.Unlock()
		return
	}
	now := e.clock.Now()
	rs.appendError("", "", fmt.Sprintf("run timed out after %s", timeout), now)
	for _, stage := range rs.stages {
		if stage.Status.Terminal() {
			continue
		}
		stage.Status = schema.StatusCancelled
		stage.Timing.CompletedAt = &now
		if e.tracker != nil {
			e.tracker.OnStageCompleted(stage.ID, schema.StatusCancelled)
		}
		for _, job := range rs.stageJobs[stage.ID] {
			if !job.Status.Terminal() {
				job.Status = schema.StatusCancelled
				for _, step := range rs.jobSteps[job.ID] {
					if !step.Status.Terminal() {
						step.Status = schema.StatusCancelled
					}
				}
			}
		}
	}
	rs.active = make(map[int]struct{})
	rs.nextStage = len(rs.stages)
	e.finishRunLocked(rs, schema.StatusFailed, &fx)
	rs.mu.Unlock()
	e.applyEffects(context.Background(), rs, &fx)
}

func (e *Engine) onStageTimeout(runID, stageID string, timeout time.Duration) {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return
	}
	var fx effects
	rs.mu.Lock()
	stage := rs.stageByID(stageID)
	if stage == nil || stage.Status.Terminal() || rs.run.Status.Terminal() {
		rs.mu.Unlock()
		return
	}
	now := e.clock.Now()
	rs.appendError(stage.Name, "", fmt.Sprintf("stage timed out after %s", timeout), now)
	for _, job := range rs.stageJobs[stage.ID] {
		if !job.Status.Terminal() {
			if job.Timing.StartedAt != nil {
				job.Timing.CompletedAt = &now
				rs.dispatching--
			}
			job.Status = schema.StatusCancelled
			rs.stopTimer(job.ID)
			for _, step := range rs.jobSteps[job.ID] {
				if !step.Status.Terminal() {
					step.Status = schema.StatusCancelled
					rs.stopTimer(step.ID)
				}
			}
		}
	}
	e.completeStageLocked(rs, stage, schema.StatusFailed, &fx)
	rs.mu.Unlock()
	e.applyEffects(context.Background(), rs, &fx)
}

func (e *Engine) onJobTimeout(runID, jobID string, timeout time.Duration) {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return
	}
	var fx effects
	rs.mu.Lock()
	job := rs.jobs[jobID]
	if job == nil || job.Status.Terminal() || rs.run.Status.Terminal() {
		rs.mu.Unlock()
		return
	}
	stage := rs.stageByID(job.StageRunID)
	rs.appendError(stage.Name, job.Name, fmt.Sprintf("job timed out after %s", timeout), e.clock.Now())
	e.jobFinishedLocked(rs, job, schema.StatusFailed, &fx)
	rs.mu.Unlock()
	e.applyEffects(context.Background(), rs, &fx)
}

func (e *Engine) onStepTimeout(runID, stepID string, timeout time.Duration) {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return
	}
	var fx effects
	rs.mu.Lock()
	step := rs.steps[stepID]
	if step == nil || step.Status.Terminal() || rs.run.Status.Terminal() {
		rs.mu.Unlock()
		return
	}
	job := rs.jobs[step.JobRunID]
	stage := rs.stageByID(job.StageRunID)
	rs.appendError(stage.Name, job.Name, fmt.Sprintf("step %s timed out after %s", step.Name, timeout), e.clock.Now())
	e.stepFinishedLocked(rs, step, schema.StatusFailed, &fx)
	rs.mu.Unlock()
	e.applyEffects(context.Background(), rs, &fx)
}

func (e *Engine) onApprovalTimeout(runID, stageID string, timeout time.Duration) {
	rs, err := e.registry.lookupRun(runID)
	if err != nil {
		return
	}
	var fx effects
	rs.mu.Lock()
	stage := rs.stageByID(stageID)
	if stage == nil || stage.Status != schema.StatusWaiting || rs.run.Status.Terminal() {
		rs.mu.Unlock()
		return
	}
	rs.appendError(stage.Name, "", fmt.Sprintf("approval timed out after %s", timeout), e.clock.Now())
	e.publishLocked(rs, schema.EventStageRejected, stage.Name)
	e.completeStageLocked(rs, stage, schema.StatusFailed, &fx)
	rs.mu.Unlock()
	e.applyEffects(context.Background(), rs, &fx)
}

// armRunTimerLocked arms the whole-run timeout from the pipeline
// settings.
func (e *Engine) armRunTimerLocked(rs *runState) {
	timeout := parseTimeout(rs.def.Settings.Timeout)
	if timeout <= 0 {
		return
	}
	runID := rs.run.ID
	rs.timers[runID] = e.clock.AfterFunc(timeout, func() {
		e.onRunTimeout(runID, timeout)
	})
}

// parseTimeout parses a definition timeout string. Validation already
// flagged malformed values, so parse failures degrade to "no
// timeout".
func parseTimeout(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// snapshotLocked assembles a deep-copied RunSnapshot from the arena.
func snapshotLocked(rs *runState) *schema.RunSnapshot {
	snapshot := &schema.RunSnapshot{Run: *rs.run}
	snapshot.Run.StageIDs = append([]string(nil), rs.run.StageIDs...)
	snapshot.Run.Artifacts = append([]schema.Artifact(nil), rs.run.Artifacts...)
	snapshot.Run.Errors = append([]schema.ErrorRecord(nil), rs.run.Errors...)
	snapshot.Run.LogRefs = append([]string(nil), rs.run.LogRefs...)

	for _, stage := range rs.stages {
		stageSnapshot := schema.StageSnapshot{Stage: *stage}
		stageSnapshot.Stage.JobIDs = append([]string(nil), stage.JobIDs...)
		if stage.Approval != nil {
			approval := *stage.Approval
			approval.Approvers = append([]string(nil), stage.Approval.Approvers...)
			if stage.Approval.Decision != nil {
				decision := *stage.Approval.Decision
				approval.Decision = &decision
			}
			stageSnapshot.Stage.Approval = &approval
		}
		for _, job := range rs.stageJobs[stage.ID] {
			jobSnapshot := schema.JobSnapshot{Job: *job}
			jobSnapshot.Job.StepIDs = append([]string(nil), job.StepIDs...)
			for _, step := range rs.jobSteps[job.ID] {
				jobSnapshot.Steps = append(jobSnapshot.Steps, *step)
			}
			stageSnapshot.Jobs = append(stageSnapshot.Jobs, jobSnapshot)
		}
		snapshot.Stages = append(snapshot.Stages, stageSnapshot)
	}
	return snapshot
}
