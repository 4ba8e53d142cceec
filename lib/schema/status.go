// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Status is the lifecycle state of a Run, StageRun, JobRun, or
// StepRun. The same state set applies at every level of the tree.
type Status string

const (
	// StatusPending means the unit has been created but not started.
	StatusPending Status = "pending"

	// StatusRunning means the unit has started and not yet finished.
	StatusRunning Status = "running"

	// StatusWaiting means a stage is blocked on an approval decision.
	// Only stages enter this state.
	StatusWaiting Status = "waiting"

	// StatusSuccess is the terminal success state.
	StatusSuccess Status = "success"

	// StatusFailed is the terminal failure state: a non-zero exit,
	// a timeout, or an approval rejection.
	StatusFailed Status = "failed"

	// StatusCancelled is the terminal state forced by an explicit
	// cancellation or an auto-cancel.
	StatusCancelled Status = "cancelled"

	// StatusSkipped is the terminal state of a unit that was never
	// eligible to run: its condition did not match, or an upstream
	// failure ended the run before it was reached.
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is final. Terminal units never
// change status again; late runner reports against them are recorded
// as log data only.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// Valid reports whether s is one of the defined status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusWaiting,
		StatusSuccess, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}
