// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	t.Parallel()

	c := Fake(testEpoch)
	if got := c.Now(); !got.Equal(testEpoch) {
		t.Errorf("Now() = %v, want %v", got, testEpoch)
	}

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(testEpoch.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, testEpoch.Add(90*time.Second))
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	c := Fake(testEpoch)
	ch := c.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(time.Minute)
	select {
	case fired := <-ch:
		if !fired.Equal(testEpoch.Add(time.Minute)) {
			t.Errorf("fire time = %v, want %v", fired, testEpoch.Add(time.Minute))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()

	c := Fake(testEpoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeAfterFuncOrder(t *testing.T) {
	t.Parallel()

	c := Fake(testEpoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callbacks fired in order %v, want [1 2 3]", order)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	t.Parallel()

	c := Fake(testEpoch)
	var fired atomic.Bool
	timer := c.AfterFunc(time.Second, func() { fired.Store(true) })

	if !timer.Stop() {
		t.Error("Stop() on pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop() returned true")
	}

	c.Advance(5 * time.Second)
	if fired.Load() {
		t.Error("stopped timer fired")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	t.Parallel()

	c := Fake(testEpoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(10 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	if got := c.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}

	c.Advance(10 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}
