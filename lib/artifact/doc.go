// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact implements content-addressed storage for build
// outputs.
//
// Every artifact is identified by a reference of the form
// "art-<12 hex chars>" derived from a keyed BLAKE3 hash of the
// uncompressed content. Content is stored zstd-compressed under the
// store root, one file per artifact, fanned out by the first two hex
// characters of the hash. Writes are idempotent: storing the same
// bytes twice yields the same reference and leaves one file on disk.
//
// The store is safe for concurrent use. Writes go through a temp file
// and rename so readers never observe a partial artifact.
package artifact
