// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the data model shared across Conveyor:
// pipeline definitions, run trees, deployments, releases, and
// lifecycle events.
//
// Definitions are read-mostly inputs authored as YAML or JSONC files
// (see lib/pipelinedef) and versioned by opaque ID. Runs are the
// mutable execution instances, stored as an arena of records: each
// level (Run, StageRun, JobRun, StepRun) is keyed by a stable ID and
// parents hold child IDs rather than embedded pointers. Snapshot
// types (RunSnapshot, StageSnapshot, JobSnapshot) assemble the tree
// for event payloads, CLI output, and the run archive.
//
// All types carry `json` tags only. The CBOR codec (lib/codec) reads
// json tags as fallback, so one tag set controls both formats.
package schema
