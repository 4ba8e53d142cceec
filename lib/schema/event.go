// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// LifecycleKind names a lifecycle transition published on the event
// bus.
type LifecycleKind string

const (
	EventRunTriggered     LifecycleKind = "run.triggered"
	EventRunStarted       LifecycleKind = "run.started"
	EventRunCompleted     LifecycleKind = "run.completed"
	EventRunCancelled     LifecycleKind = "run.cancelled"
	EventStageWaiting     LifecycleKind = "stage.waiting_approval"
	EventStageApproved    LifecycleKind = "stage.approved"
	EventStageRejected    LifecycleKind = "stage.rejected"
	EventDeployCreated    LifecycleKind = "deployment.created"
	EventDeployRolledBack LifecycleKind = "deployment.rolled_back"
)

// LifecycleEvent is the envelope delivered to bus subscribers. Every
// event carries the full updated entity snapshot: the run tree for
// run/stage events, the deployment record for deployment events.
// Events for one run are delivered in the order their transitions
// occurred.
type LifecycleEvent struct {
	Kind       LifecycleKind `json:"kind"`
	PipelineID string        `json:"pipeline_id,omitempty"`
	RunID      string        `json:"run_id,omitempty"`
	Time       time.Time     `json:"time"`

	// Stage names the stage for stage.* events.
	Stage string `json:"stage,omitempty"`

	Run        *RunSnapshot `json:"run,omitempty"`
	Deployment *Deployment  `json:"deployment,omitempty"`
}
