// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import (
	"fmt"
	"regexp"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/cron"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// variableNamePattern matches valid variable names: start with a
// letter or underscore, followed by letters, digits, or underscores.
var variableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a PipelineDefinition for structural issues. Returns
// a list of human-readable issue descriptions; an empty list means
// the definition is valid.
//
// Structural checks include:
//   - The definition must have a non-empty ID
//   - Stage orders must be unique (they define the execution sequence)
//   - Stage and job names must be non-empty and unique within their parent
//   - Each step must set exactly one of run or action
//   - Conditions must be one of always, on_success, on_failure, manual
//   - on_failure and parallel are meaningless on the first stage
//   - Every timeout (pipeline, stage, approval, job, step) must be
//     parseable by time.ParseDuration
//   - Trigger rules must have a known type; schedule rules need a
//     valid cron expression, other rules must not set one
//   - Variable names must be valid identifiers
//
// A definition with zero stages is valid unless settings.require_stages
// is set — it produces runs that complete immediately.
func Validate(definition *schema.PipelineDefinition) []string {
	var issues []string

	if definition.ID == "" {
		issues = append(issues, "pipeline id is required")
	}

	if len(definition.Stages) == 0 && definition.Settings.RequireStages {
		issues = append(issues, "pipeline has no stages (settings.require_stages is set)")
	}

	issues = append(issues, validateTimeout(definition.Settings.Timeout, "settings.timeout")...)

	// Stage orders define the execution sequence; duplicates would
	// make it ambiguous.
	ordersSeen := make(map[int]string, len(definition.Stages))
	namesSeen := make(map[string]int, len(definition.Stages))

	for index, stage := range definition.Stages {
		prefix := fmt.Sprintf("stages[%d]", index)
		if stage.Name != "" {
			if firstIndex, exists := namesSeen[stage.Name]; exists {
				issues = append(issues, fmt.Sprintf(
					"%s %q: duplicate stage name (first used at stages[%d])",
					prefix, stage.Name, firstIndex,
				))
			} else {
				namesSeen[stage.Name] = index
			}
		}
		if other, exists := ordersSeen[stage.Order]; exists {
			issues = append(issues, fmt.Sprintf(
				"%s %q: duplicate order %d (also used by stage %q)",
				prefix, stage.Name, stage.Order, other,
			))
		} else {
			ordersSeen[stage.Order] = stage.Name
		}

		issues = append(issues, validateStage(stage, prefix, index == 0)...)
	}

	for index, rule := range definition.Triggers {
		prefix := fmt.Sprintf("triggers[%d]", index)
		issues = append(issues, validateTrigger(rule, prefix)...)
	}

	for index, variable := range definition.Variables {
		prefix := fmt.Sprintf("variables[%d]", index)
		if !variableNamePattern.MatchString(variable.Name) {
			issues = append(issues, fmt.Sprintf(
				"%s: variable name %q must be a valid identifier ([A-Za-z_][A-Za-z0-9_]*)",
				prefix, variable.Name,
			))
		}
	}

	return issues
}

// validateStage checks one stage definition. first is true for the
// stage at index 0, whose relative conditions have no predecessor to
// refer to.
func validateStage(stage schema.StageDefinition, prefix string, first bool) []string {
	var issues []string

	if stage.Name == "" {
		issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
	} else {
		prefix = fmt.Sprintf("%s %q", prefix, stage.Name)
	}

	switch stage.Type {
	case "", schema.StageBuild, schema.StageTest, schema.StageSecurity,
		schema.StageDeploy, schema.StageNotify, schema.StageApproval, schema.StageCustom:
	default:
		issues = append(issues, fmt.Sprintf("%s: unknown stage type %q", prefix, stage.Type))
	}

	switch stage.Condition {
	case "", schema.ConditionAlways, schema.ConditionOnSuccess,
		schema.ConditionOnFailure, schema.ConditionManual:
	default:
		issues = append(issues, fmt.Sprintf("%s: unknown condition %q", prefix, stage.Condition))
	}

	if first {
		if stage.Condition == schema.ConditionOnFailure {
			issues = append(issues, fmt.Sprintf("%s: on_failure condition on the first stage can never be satisfied", prefix))
		}
		if stage.Parallel {
			issues = append(issues, fmt.Sprintf("%s: parallel on the first stage has no predecessor to run alongside", prefix))
		}
	}

	if stage.Type == schema.StageDeploy && stage.Environment == "" {
		issues = append(issues, fmt.Sprintf("%s: environment is required on deploy stages", prefix))
	}

	issues = append(issues, validateTimeout(stage.Timeout, prefix+": timeout")...)
	if stage.Approval != nil {
		issues = append(issues, validateTimeout(stage.Approval.Timeout, prefix+": approval.timeout")...)
	}

	jobNames := make(map[string]int, len(stage.Jobs))
	for index, job := range stage.Jobs {
		jobPrefix := fmt.Sprintf("%s: jobs[%d]", prefix, index)
		if job.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: name is required", jobPrefix))
		} else {
			if firstIndex, exists := jobNames[job.Name]; exists {
				issues = append(issues, fmt.Sprintf(
					"%s %q: duplicate job name (first used at jobs[%d])",
					jobPrefix, job.Name, firstIndex,
				))
			} else {
				jobNames[job.Name] = index
			}
			jobPrefix = fmt.Sprintf("%s %q", jobPrefix, job.Name)
		}

		issues = append(issues, validateTimeout(job.Timeout, jobPrefix+": timeout")...)

		for stepIndex, step := range job.Steps {
			stepPrefix := fmt.Sprintf("%s: steps[%d]", jobPrefix, stepIndex)
			issues = append(issues, validateStep(step, stepPrefix)...)
		}
	}

	return issues
}

// validateStep checks a single step definition.
func validateStep(step schema.StepDefinition, prefix string) []string {
	var issues []string

	if step.Name == "" {
		issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
	} else {
		prefix = fmt.Sprintf("%s %q", prefix, step.Name)
	}

	hasRun := step.Run != ""
	hasAction := step.Action != ""
	switch {
	case hasRun && hasAction:
		issues = append(issues, fmt.Sprintf("%s: run and action are mutually exclusive (set exactly one)", prefix))
	case !hasRun && !hasAction:
		issues = append(issues, fmt.Sprintf("%s: must set exactly one of run or action", prefix))
	}

	if len(step.With) > 0 && !hasAction {
		issues = append(issues, fmt.Sprintf("%s: with is only valid on action steps", prefix))
	}

	issues = append(issues, validateTimeout(step.Timeout, prefix+": timeout")...)

	return issues
}

// validateTrigger checks one trigger rule.
func validateTrigger(rule schema.TriggerRule, prefix string) []string {
	var issues []string

	switch rule.Type {
	case schema.TriggerPush, schema.TriggerPullRequest, schema.TriggerTag,
		schema.TriggerSchedule, schema.TriggerManual, schema.TriggerWebhook:
	default:
		issues = append(issues, fmt.Sprintf("%s: unknown trigger type %q", prefix, rule.Type))
		return issues
	}

	if rule.Type == schema.TriggerSchedule {
		if rule.Schedule == "" {
			issues = append(issues, fmt.Sprintf("%s: schedule is required on schedule triggers", prefix))
		} else if _, err := cron.Parse(rule.Schedule); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid schedule: %v", prefix, err))
		}
	} else if rule.Schedule != "" {
		issues = append(issues, fmt.Sprintf("%s: schedule is only valid on schedule triggers", prefix))
	}

	return issues
}

// validateTimeout reports an issue when value is set but not
// parseable as a Go duration.
func validateTimeout(value, prefix string) []string {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return []string{fmt.Sprintf("%s: invalid duration %q: %v", prefix, value, err)}
	}
	return nil
}
