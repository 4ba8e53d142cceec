// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
)

// The engine's error taxonomy. All of these are local, synchronous,
// and never retried by the engine itself; callers match with
// errors.Is. Runner-reported execution failures are not errors — they
// are valid terminal states propagated through the state machine.
var (
	// ErrDefinitionInvalid: the pipeline definition failed
	// validation. Rejected before any run is created.
	ErrDefinitionInvalid = errors.New("definition invalid")

	// ErrNotFound: unknown pipeline, run, stage, or deployment ID.
	// No state change.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState: the operation is illegal for the entity's
	// current status, such as cancelling a terminal run. No state
	// change.
	ErrInvalidState = errors.New("invalid state")

	// ErrQueueFull: the pipeline's queue limit was exceeded. The
	// caller may retry later.
	ErrQueueFull = errors.New("queue full")

	// ErrNoTriggerMatch: no enabled trigger rule matched the event.
	ErrNoTriggerMatch = errors.New("no trigger rule matched")
)

// ErrNotAwaitingApproval is the ErrInvalidState flavor returned when
// an approve or reject targets a stage that is not waiting.
var ErrNotAwaitingApproval = fmt.Errorf("%w: stage not awaiting approval", ErrInvalidState)

// ErrApproverNotAllowed is returned when the acting user is not in
// the stage's approver list.
var ErrApproverNotAllowed = errors.New("approver not allowed")
