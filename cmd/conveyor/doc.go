// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// conveyor is the operator CLI for the Conveyor pipeline engine.
//
// It validates pipeline definitions locally and drives a running
// conveyord over its control socket: triggering, cancelling, and
// inspecting runs, deciding approval gates, rolling back deployments,
// and querying pipeline metrics. Output is a human-readable table on
// a terminal and JSON when piped or with --json.
package main
