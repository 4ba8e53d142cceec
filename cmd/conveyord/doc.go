// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// conveyord is the Conveyor pipeline engine daemon.
//
// It loads pipeline definitions from a directory, runs the execution
// engine, and serves the control protocol on a Unix socket: triggering
// and cancelling runs, approval decisions, deployment rollback and
// health reporting, metrics queries, and runner result reporting.
//
// Job execution is external. The daemon hands dispatches to a runner
// socket when one is configured; runners report step and job results
// back through the control socket.
package main
