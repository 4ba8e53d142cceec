// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sort"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// buildRun produces the full run tree for one definition and trigger:
// a run record plus stage/job/step run records mirroring the
// definition, all pending with empty timing. Stages are laid out in
// ascending order regardless of their position in the definition.
//
// Returns an error wrapping ErrDefinitionInvalid for duplicate stage
// orders, or for zero stages when the pipeline requires at least one.
func buildRun(def *schema.PipelineDefinition, trigger schema.TriggerDescriptor, runID string, number int64) (*runState, error) {
	if len(def.Stages) == 0 && def.Settings.RequireStages {
		return nil, fmt.Errorf("%w: pipeline %s has zero stages but requires at least one", ErrDefinitionInvalid, def.ID)
	}

	ordered := make([]*schema.StageDefinition, 0, len(def.Stages))
	seenOrders := make(map[int]string, len(def.Stages))
	for i := range def.Stages {
		stage := &def.Stages[i]
		if prior, dup := seenOrders[stage.Order]; dup {
			return nil, fmt.Errorf("%w: pipeline %s stages %q and %q share order %d",
				ErrDefinitionInvalid, def.ID, prior, stage.Name, stage.Order)
		}
		seenOrders[stage.Order] = stage.Name
		ordered = append(ordered, stage)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	rs := &runState{
		def: def,
		run: &schema.Run{
			ID:         runID,
			PipelineID: def.ID,
			Number:     number,
			Status:     schema.StatusPending,
			Trigger:    trigger,
		},
		jobs:      make(map[string]*schema.JobRun),
		steps:     make(map[string]*schema.StepRun),
		stageJobs: make(map[string][]*schema.JobRun),
		jobSteps:  make(map[string][]*schema.StepRun),
		active:    make(map[int]struct{}),
		effective: schema.StatusSuccess,
	}

	for _, stageDef := range ordered {
		stage := &schema.StageRun{
			ID:          fmt.Sprintf("%s/%s", runID, stageDef.Name),
			RunID:       runID,
			Name:        stageDef.Name,
			Type:        stageDef.Type,
			Order:       stageDef.Order,
			Condition:   stageDef.Condition,
			Environment: stageDef.Environment,
			Timeout:     stageDef.Timeout,
			Parallel:    stageDef.Parallel,
			Status:      schema.StatusPending,
		}
		if stageDef.Approval != nil {
			stage.Approval = &schema.ApprovalState{
				Approvers: append([]string(nil), stageDef.Approval.Approvers...),
				Timeout:   stageDef.Approval.Timeout,
			}
		} else if stageDef.Type == schema.StageApproval || stageDef.Condition == schema.ConditionManual {
			// Approval-typed and manual stages gate even without an
			// explicit approval block: anyone may decide, no timeout.
			stage.Approval = &schema.ApprovalState{}
		}

		for _, jobDef := range stageDef.Jobs {
			job := &schema.JobRun{
				ID:           fmt.Sprintf("%s/%s", stage.ID, jobDef.Name),
				RunID:        runID,
				StageRunID:   stage.ID,
				Name:         jobDef.Name,
				AllowFailure: jobDef.AllowFailure,
				Timeout:      jobDef.Timeout,
				Status:       schema.StatusPending,
			}
			for stepIndex, stepDef := range jobDef.Steps {
				step := &schema.StepRun{
					ID:              fmt.Sprintf("%s/step-%d", job.ID, stepIndex+1),
					RunID:           runID,
					JobRunID:        job.ID,
					Name:            stepDef.Name,
					Run:             stepDef.Run,
					Action:          stepDef.Action,
					With:            stepDef.With,
					ContinueOnError: stepDef.ContinueOnError,
					Timeout:         stepDef.Timeout,
					Status:          schema.StatusPending,
				}
				job.StepIDs = append(job.StepIDs, step.ID)
				rs.steps[step.ID] = step
				rs.jobSteps[job.ID] = append(rs.jobSteps[job.ID], step)
			}
			stage.JobIDs = append(stage.JobIDs, job.ID)
			rs.jobs[job.ID] = job
			rs.stageJobs[stage.ID] = append(rs.stageJobs[stage.ID], job)
		}

		rs.run.StageIDs = append(rs.run.StageIDs, stage.ID)
		rs.stages = append(rs.stages, stage)
	}

	return rs, nil
}

// stageVariables resolves the variables in scope for one stage:
// pipeline-wide variables plus those scoped to the stage's name or
// environment. Narrower scopes win name collisions.
func stageVariables(def *schema.PipelineDefinition, stage *schema.StageRun) map[string]string {
	if len(def.Variables) == 0 {
		return nil
	}
	resolved := make(map[string]string)
	for _, variable := range def.Variables {
		if variable.Scope == "" {
			resolved[variable.Name] = variable.Value
		}
	}
	for _, variable := range def.Variables {
		if variable.Scope == stage.Name || (stage.Environment != "" && variable.Scope == stage.Environment) {
			resolved[variable.Name] = variable.Value
		}
	}
	return resolved
}
