// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// StageType classifies what a stage does. The engine only gives
// special treatment to deploy stages (deployment tracking) and
// approval stages (implicit manual condition); the rest are labels
// surfaced to subscribers and the CLI.
type StageType string

const (
	StageBuild    StageType = "build"
	StageTest     StageType = "test"
	StageSecurity StageType = "security"
	StageDeploy   StageType = "deploy"
	StageNotify   StageType = "notify"
	StageApproval StageType = "approval"
	StageCustom   StageType = "custom"
)

// Condition gates when a stage is eligible to start relative to its
// in-order predecessor.
type Condition string

const (
	// ConditionAlways starts the stage regardless of the previous
	// stage's outcome.
	ConditionAlways Condition = "always"

	// ConditionOnSuccess requires the previous stage to be success.
	ConditionOnSuccess Condition = "on_success"

	// ConditionOnFailure requires the previous stage to be failed.
	ConditionOnFailure Condition = "on_failure"

	// ConditionManual holds the stage in waiting until an explicit
	// approve or reject action.
	ConditionManual Condition = "manual"
)

// PipelineDefinition is the declarative description of a pipeline:
// ordered stages, trigger rules, variables, and settings. The engine
// treats definitions as immutable inputs versioned by opaque ID — it
// never diffs or edits them.
type PipelineDefinition struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name,omitempty" yaml:"name,omitempty"`
	Stages    []StageDefinition `json:"stages,omitempty" yaml:"stages,omitempty"`
	Triggers  []TriggerRule     `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Variables []Variable        `json:"variables,omitempty" yaml:"variables,omitempty"`
	Settings  Settings          `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Stage returns the stage definition with the given name, or nil.
func (d *PipelineDefinition) Stage(name string) *StageDefinition {
	for i := range d.Stages {
		if d.Stages[i].Name == name {
			return &d.Stages[i]
		}
	}
	return nil
}

// Settings are per-pipeline execution policies. All fields are
// optional; zero values mean "no limit" (Concurrency, QueueLimit),
// "no timeout" (Timeout), or "disabled" (AutoCancel).
type Settings struct {
	// Timeout bounds the whole run's wall time, as a Go duration
	// string ("90m"). Empty means unlimited.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Retries is surfaced to external actors as a re-trigger policy
	// hint. The engine never retries automatically.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`

	// Concurrency caps simultaneous job dispatches within one run.
	// Zero means unbounded.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// QueueLimit caps runs in pending state per pipeline. A trigger
	// that would exceed it fails with QueueFull. Zero means unbounded.
	QueueLimit int `json:"queue_limit,omitempty" yaml:"queue_limit,omitempty"`

	// AutoCancel cancels a still-active older run for the same ref
	// when a new run is triggered.
	AutoCancel bool `json:"auto_cancel,omitempty" yaml:"auto_cancel,omitempty"`

	// RequireStages makes the run builder reject definitions with
	// zero stages instead of producing no-op runs.
	RequireStages bool `json:"require_stages,omitempty" yaml:"require_stages,omitempty"`
}

// StageDefinition is one stage: an ordered group of jobs with an
// execution condition and optional approval gate.
type StageDefinition struct {
	Name  string          `json:"name" yaml:"name"`
	Type  StageType       `json:"type,omitempty" yaml:"type,omitempty"`
	Order int             `json:"order" yaml:"order"`
	Jobs  []JobDefinition `json:"jobs,omitempty" yaml:"jobs,omitempty"`

	// Condition gates the stage's start. Empty means on_success for
	// every stage but the first, always for the first.
	Condition Condition `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Approval, when set, holds the stage in waiting until an
	// explicit decision. Stages of type approval without this field
	// still gate (with no approver restriction and no timeout).
	Approval *ApprovalRequirement `json:"approval,omitempty" yaml:"approval,omitempty"`

	// Environment is the deployment target for deploy stages.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`

	// Timeout bounds the stage's wall time from its running start.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Parallel lets this stage start concurrently with its in-order
	// predecessor once that predecessor was eligible to start.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// ApprovalRequirement configures a manual approval gate.
type ApprovalRequirement struct {
	// Approvers restricts who may decide. Empty means anyone.
	Approvers []string `json:"approvers,omitempty" yaml:"approvers,omitempty"`

	// Timeout bounds how long the stage may wait for a decision.
	// Empty means indefinitely.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// JobDefinition is a unit of execution inside a stage, dispatched as
// a whole to the runner.
type JobDefinition struct {
	Name  string           `json:"name" yaml:"name"`
	Steps []StepDefinition `json:"steps,omitempty" yaml:"steps,omitempty"`

	// AllowFailure marks the job non-blocking: its failure is
	// recorded but does not fail the stage.
	AllowFailure bool `json:"allow_failure,omitempty" yaml:"allow_failure,omitempty"`

	// Timeout bounds the job's wall time from its running start.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// StepDefinition is the atomic unit the runner executes: a shell
// command or a named action (checkout, upload, download, or a
// custom action name).
type StepDefinition struct {
	Name string `json:"name" yaml:"name"`

	// Run is a shell command. Mutually exclusive with Action.
	Run string `json:"run,omitempty" yaml:"run,omitempty"`

	// Action is a named action. Mutually exclusive with Run.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// With carries action parameters (paths, destinations).
	With map[string]string `json:"with,omitempty" yaml:"with,omitempty"`

	// ContinueOnError records a non-zero exit as failed without
	// failing the parent job.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`

	// Timeout bounds the step's wall time. Empty uses the runner's
	// default.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Variable is a named value available to runner execution. Secret
// values are redacted from snapshots and logs by the collaborators
// that render them; the engine carries them opaquely.
type Variable struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Secret bool   `json:"secret,omitempty" yaml:"secret,omitempty"`

	// Scope limits the variable to a stage or environment name.
	// Empty means pipeline-wide.
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`
}
