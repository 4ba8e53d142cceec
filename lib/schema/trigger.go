// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// TriggerType classifies inbound events and the rules that match them.
type TriggerType string

const (
	TriggerPush        TriggerType = "push"
	TriggerPullRequest TriggerType = "pull_request"
	TriggerTag         TriggerType = "tag"
	TriggerSchedule    TriggerType = "schedule"
	TriggerManual      TriggerType = "manual"
	TriggerWebhook     TriggerType = "webhook"
)

// TriggerRule matches inbound events to a pipeline. A rule matches
// when its type equals the event type, it is enabled, and every
// configured filter (branches, tags, paths, schedule) is satisfied.
type TriggerRule struct {
	ID   string      `json:"id,omitempty" yaml:"id,omitempty"`
	Type TriggerType `json:"type" yaml:"type"`

	// Disabled is inverted so the zero value (enabled) matches the
	// common case of rules written without the field.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// Branches are glob patterns matched against the event ref for
	// push and pull_request events ("main", "release/*").
	Branches []string `json:"branches,omitempty" yaml:"branches,omitempty"`

	// Tags are glob patterns matched against the event ref for tag
	// events ("v*").
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Paths are glob patterns; at least one changed path must match.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// Schedule is a 5-field cron expression for schedule rules.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Event is an inbound occurrence that may trigger runs: a push, a
// pull request update, a tag, a schedule tick, a manual request, or
// a webhook delivery.
type Event struct {
	Type TriggerType `json:"type"`

	// Actor is who (or what) caused the event.
	Actor string `json:"actor,omitempty"`

	// Ref is the branch or tag name the event concerns.
	Ref string `json:"ref,omitempty"`

	// Commit is the commit SHA, when applicable.
	Commit string `json:"commit,omitempty"`

	// Paths are the changed file paths, when known.
	Paths []string `json:"paths,omitempty"`

	// Time is when the event occurred. Schedule rules match against
	// this instant.
	Time time.Time `json:"time"`
}

// TriggerDescriptor records, on a run, what triggered it.
type TriggerDescriptor struct {
	Type   TriggerType `json:"type"`
	Actor  string      `json:"actor,omitempty"`
	Ref    string      `json:"ref,omitempty"`
	Commit string      `json:"commit,omitempty"`

	// RuleID identifies the matched trigger rule, when the run came
	// from rule evaluation rather than a direct manual trigger.
	RuleID string `json:"rule_id,omitempty"`
}
