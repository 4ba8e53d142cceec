// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger decides whether an inbound event matches a pipeline
// definition's trigger rules.
//
// Evaluate is a pure function over immutable inputs: it returns the
// set of matching rules and never mutates anything. Multiple rules
// may match one event; deduplicating into a single run is the run
// builder's job.
package trigger

import (
	"path"

	"github.com/conveyor-foundation/conveyor/lib/cron"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// Evaluate returns the trigger rules of definition that match event.
// A rule matches when its type equals the event type, it is enabled,
// and every configured filter is satisfied:
//
//   - Branch patterns match the event ref (push, pull_request)
//   - Tag patterns match the event ref (tag)
//   - Path patterns match at least one changed path
//   - Schedule expressions match the event's minute (schedule)
//
// A schedule rule with an unparseable expression never matches —
// validation should have rejected it, and silently firing a broken
// schedule would be worse than not firing.
func Evaluate(definition *schema.PipelineDefinition, event schema.Event) []schema.TriggerRule {
	var matched []schema.TriggerRule
	for _, rule := range definition.Triggers {
		if Matches(rule, event) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Matches reports whether a single rule matches the event.
func Matches(rule schema.TriggerRule, event schema.Event) bool {
	if rule.Disabled || rule.Type != event.Type {
		return false
	}

	switch rule.Type {
	case schema.TriggerPush, schema.TriggerPullRequest:
		if !matchesAny(rule.Branches, event.Ref) {
			return false
		}
	case schema.TriggerTag:
		if !matchesAny(rule.Tags, event.Ref) {
			return false
		}
	case schema.TriggerSchedule:
		schedule, err := cron.Parse(rule.Schedule)
		if err != nil {
			return false
		}
		if !schedule.Matches(event.Time) {
			return false
		}
	}

	if len(rule.Paths) > 0 && !anyPathMatches(rule.Paths, event.Paths) {
		return false
	}

	return true
}

// matchesAny reports whether value matches at least one glob pattern.
// An empty pattern list matches everything.
func matchesAny(patterns []string, value string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, value); err == nil && ok {
			return true
		}
	}
	return false
}

// anyPathMatches reports whether at least one changed path matches at
// least one pattern.
func anyPathMatches(patterns, changed []string) bool {
	for _, p := range changed {
		if matchesAny(patterns, p) {
			return true
		}
	}
	return false
}
