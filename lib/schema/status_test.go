// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusSuccess, StatusFailed, StatusCancelled, StatusSkipped}
	active := []Status{StatusPending, StatusRunning, StatusWaiting}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestTimingDerived(t *testing.T) {
	t.Parallel()

	queued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	started := queued.Add(15 * time.Second)
	completed := started.Add(2 * time.Minute)

	timing := Timing{QueuedAt: queued, StartedAt: &started, CompletedAt: &completed}
	if got := timing.Duration(); got != 2*time.Minute {
		t.Errorf("Duration() = %v, want 2m", got)
	}
	if got := timing.Wait(); got != 15*time.Second {
		t.Errorf("Wait() = %v, want 15s", got)
	}

	partial := Timing{QueuedAt: queued}
	if got := partial.Duration(); got != 0 {
		t.Errorf("Duration() without start/completion = %v, want 0", got)
	}
	if got := partial.Wait(); got != 0 {
		t.Errorf("Wait() without start = %v, want 0", got)
	}
}

func TestApprovalStateAllows(t *testing.T) {
	t.Parallel()

	open := &ApprovalState{}
	if !open.Allows("anyone") {
		t.Error("empty approver list should allow anyone")
	}

	restricted := &ApprovalState{Approvers: []string{"alice", "bob"}}
	if !restricted.Allows("bob") {
		t.Error("listed approver rejected")
	}
	if restricted.Allows("mallory") {
		t.Error("unlisted approver allowed")
	}
}

func TestReleaseStatusTransitions(t *testing.T) {
	t.Parallel()

	legal := []struct{ from, to ReleaseStatus }{
		{ReleaseDraft, ReleasePending},
		{ReleasePending, ReleaseReleased},
		{ReleaseReleased, ReleaseArchived},
	}
	for _, tc := range legal {
		if !tc.from.CanAdvanceTo(tc.to) {
			t.Errorf("%s → %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to ReleaseStatus }{
		{ReleaseDraft, ReleaseReleased},
		{ReleasePending, ReleaseDraft},
		{ReleaseArchived, ReleaseDraft},
		{ReleaseReleased, ReleasePending},
	}
	for _, tc := range illegal {
		if tc.from.CanAdvanceTo(tc.to) {
			t.Errorf("%s → %s should be illegal", tc.from, tc.to)
		}
	}
}
