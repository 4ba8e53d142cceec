// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Unix socket control protocol shared by
// the Conveyor daemon and CLI.
//
// The daemon serves a CBOR request-response protocol on a Unix
// socket. Each connection carries exactly one request-response cycle:
// the client writes a CBOR map with an "action" field, the server
// routes it to the registered handler and writes a CBOR response,
// then the connection closes. CBOR is self-delimiting, so no framing
// protocol is needed.
//
// Access control is the socket file's permissions: anyone who can
// connect may trigger, cancel, and approve. Deployments that need
// finer-grained control put the socket in a restricted directory.
package service
