// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the pipeline execution core: it turns trigger
// events into runs and drives each run's stage/job/step tree through
// its state machine.
//
// Every run's state is one logical resource guarded by its own mutex,
// so transitions on a run are serialized while unrelated runs proceed
// in parallel. The engine-level mutex guards only the run registry
// and per-pipeline counters; it is never held while a run's mutex is
// taken, and run mutexes are never held across dispatch to the runner
// or any other external I/O. Job dispatch is asynchronous: the engine
// issues a start and later receives completion reports through
// ReportStepResult and ReportJobResult.
//
// Runs live in memory while active. On reaching a terminal status a
// run is archived to the run log; late runner reports are still
// accepted on the in-memory record for logging, but never change
// terminal status.
package engine
