// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// JobDispatch is the unit of work handed to the runner: one job run
// with its steps and the variables in scope. The structs are copies;
// the runner never aliases engine state.
type JobDispatch struct {
	PipelineID string           `json:"pipeline_id"`
	RunID      string           `json:"run_id"`
	StageName  string           `json:"stage_name"`
	Job        schema.JobRun    `json:"job"`
	Steps      []schema.StepRun `json:"steps"`

	// Variables are resolved for the job's stage scope: pipeline-wide
	// variables plus those scoped to the stage or its environment.
	// Secret values are included; redaction is the runner's concern.
	Variables map[string]string `json:"variables,omitempty"`
}

// RunnerInvoker starts jobs on external execution infrastructure.
// Dispatch must not block on execution: it issues the start and
// returns, and the runner later reports results through the engine's
// ReportStepResult and ReportJobResult. Dispatch must not call back
// into the engine synchronously.
//
// A Dispatch error means the job never started; the engine records
// the job as failed.
type RunnerInvoker interface {
	Dispatch(ctx context.Context, dispatch JobDispatch) error
}
