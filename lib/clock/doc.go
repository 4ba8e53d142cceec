// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.AfterFunc, or time.Sleep directly. Real() provides
// the standard library behavior; Fake() provides a deterministic clock
// that advances only when Advance is called.
//
// The engine registers every unit timeout through Clock.AfterFunc, so
// tests exercise timeout propagation without real waiting:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	eng := engine.New(engine.Config{Clock: c, ...})
//	// ... start a run ...
//	c.WaitForTimers(1)
//	c.Advance(30 * time.Minute) // fire the stage timeout deterministically
package clock
