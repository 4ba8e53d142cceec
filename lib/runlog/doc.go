// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package runlog stores the historical record of completed runs.
//
// The engine keeps active runs in memory; once a run reaches a
// terminal status its full snapshot is archived here and the engine
// forgets it. The archive is a SQLite database with one row per run:
// a handful of indexed columns for querying (pipeline, status, queue
// time, derived durations) plus the complete run snapshot as a CBOR
// blob for retrieval.
//
// Metrics aggregation reads the indexed columns only; fetching a
// specific archived run decodes the blob.
package runlog
