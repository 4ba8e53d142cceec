// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// Timing is the shared timestamp record for every run tree level.
// QueuedAt is always known (units are created queued); the pointer
// fields distinguish "not yet" from a zero time.
type Timing struct {
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the started→completed span, or zero if either
// timestamp is missing.
func (t Timing) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// Wait returns the queued→started span, or zero if the unit never
// started.
func (t Timing) Wait() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return t.StartedAt.Sub(t.QueuedAt)
}

// ErrorRecord is one accumulated failure on a run. Error records are
// append-only: they may be added after the run is terminal (late
// runner reports), but existing records never change.
type ErrorRecord struct {
	Stage   string    `json:"stage,omitempty"`
	Job     string    `json:"job,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Artifact is a produced output recorded on a run. The Ref is a
// content-addressed reference (see lib/artifact).
type Artifact struct {
	Name      string    `json:"name"`
	Ref       string    `json:"ref"`
	Size      int64     `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one execution instance of a pipeline definition. Stage runs
// are referenced by ID (arena layout); use RunSnapshot for the
// assembled tree.
type Run struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipeline_id"`

	// Number increases monotonically per pipeline and is never
	// reused, even across cancelled runs.
	Number int64 `json:"number"`

	Status  Status            `json:"status"`
	Trigger TriggerDescriptor `json:"trigger"`

	// StageIDs are the stage run IDs in execution order.
	StageIDs []string `json:"stage_ids"`

	Artifacts []Artifact    `json:"artifacts,omitempty"`
	Timing    Timing        `json:"timing"`
	Errors    []ErrorRecord `json:"errors,omitempty"`
	LogRefs   []string      `json:"log_refs,omitempty"`
}

// StageRun is one stage's execution state within a run. It carries a
// copy of the definition fields the state machine needs so transitions
// never consult the definition store.
type StageRun struct {
	ID    string    `json:"id"`
	RunID string    `json:"run_id"`
	Name  string    `json:"name"`
	Type  StageType `json:"type,omitempty"`
	Order int       `json:"order"`

	Condition   Condition      `json:"condition,omitempty"`
	Approval    *ApprovalState `json:"approval,omitempty"`
	Environment string         `json:"environment,omitempty"`
	Timeout     string         `json:"timeout,omitempty"`
	Parallel    bool           `json:"parallel,omitempty"`

	// JobIDs are the job run IDs belonging to this stage.
	JobIDs []string `json:"job_ids"`

	Status Status `json:"status"`
	Timing Timing `json:"timing"`
}

// ApprovalState tracks an approval gate on a stage run.
type ApprovalState struct {
	// Approvers restricts who may decide. Empty means anyone.
	Approvers []string `json:"approvers,omitempty"`

	// Timeout bounds the wait for a decision.
	Timeout string `json:"timeout,omitempty"`

	// Decision is recorded when someone approves or rejects.
	Decision *ApprovalDecision `json:"decision,omitempty"`
}

// Allows reports whether the named actor may decide this gate.
func (a *ApprovalState) Allows(actor string) bool {
	if len(a.Approvers) == 0 {
		return true
	}
	for _, approver := range a.Approvers {
		if approver == actor {
			return true
		}
	}
	return false
}

// ApprovalDecision is an explicit approve or reject action.
type ApprovalDecision struct {
	// Approved is true for approve, false for reject.
	Approved bool `json:"approved"`

	Approver string    `json:"approver"`
	Comment  string    `json:"comment,omitempty"`
	Time     time.Time `json:"time"`
}

// JobRun is one job's execution state within a stage run.
type JobRun struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	StageRunID string `json:"stage_run_id"`
	Name       string `json:"name"`

	AllowFailure bool   `json:"allow_failure,omitempty"`
	Timeout      string `json:"timeout,omitempty"`

	// StepIDs are the step run IDs in definition order.
	StepIDs []string `json:"step_ids"`

	Status Status `json:"status"`
	Timing Timing `json:"timing"`
}

// StepRun is the atomic execution record reported by the runner.
type StepRun struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	JobRunID string `json:"job_run_id"`
	Name     string `json:"name"`

	Run             string            `json:"run,omitempty"`
	Action          string            `json:"action,omitempty"`
	With            map[string]string `json:"with,omitempty"`
	ContinueOnError bool              `json:"continue_on_error,omitempty"`
	Timeout         string            `json:"timeout,omitempty"`

	Status   Status `json:"status"`
	ExitCode int    `json:"exit_code,omitempty"`
	LogRef   string `json:"log_ref,omitempty"`
	Timing   Timing `json:"timing"`
}

// RunSnapshot is the assembled run tree: the arena records resolved
// into nested values. Snapshots are what events carry, the CLI
// prints, and the run archive stores.
type RunSnapshot struct {
	Run    Run             `json:"run"`
	Stages []StageSnapshot `json:"stages"`
}

// StageSnapshot is a stage run with its jobs resolved.
type StageSnapshot struct {
	Stage StageRun      `json:"stage"`
	Jobs  []JobSnapshot `json:"jobs"`
}

// JobSnapshot is a job run with its steps resolved.
type JobSnapshot struct {
	Job   JobRun    `json:"job"`
	Steps []StepRun `json:"steps"`
}

// Stage returns the snapshot of the named stage, or nil.
func (s *RunSnapshot) Stage(name string) *StageSnapshot {
	for i := range s.Stages {
		if s.Stages[i].Stage.Name == name {
			return &s.Stages[i]
		}
	}
	return nil
}
