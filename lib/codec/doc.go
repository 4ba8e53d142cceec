// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Conveyor's standard CBOR encoding configuration.
//
// Conveyor uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: CLI output and pipeline definition
//     files (alongside YAML).
//   - CBOR for internal protocols: the daemon's service socket and the
//     run archive's snapshot blobs.
//
// This package provides the shared CBOR modes so that every Conveyor
// package encodes identically without duplicating configuration. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical data always produces identical bytes.
//
// For buffer-oriented operations (archive blobs):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types serialized by this package carry `json` struct tags only:
// fxamacker/cbor reads `json` tags as fallback when `cbor` tags are
// absent, so a single tag controls field naming for both formats.
package codec
