// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Conveyor packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. These are the only place
// in the test suite where real wall-clock timeouts are used; tests
// drive everything else through a fake clock.
//
// [SocketDir] creates a short-named temporary directory in /tmp for
// Unix domain sockets, which have a 108-byte path limit (sun_path in
// sockaddr_un) that deeply nested test temp directories can exceed.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// pipeline IDs, run references, or artifact names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Conveyor-internal dependencies.
package testutil
