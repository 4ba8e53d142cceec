// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package deploy tracks deployment records and releases.
//
// The tracker creates one Deployment per deploy-stage execution,
// updates it with health-check reports, and records rollbacks.
// Rollback is a state change on the record only: the tracker never
// triggers a compensating run. Releases are an optional aggregate
// binding a version to its per-environment deployments; they have
// their own strictly-forward lifecycle and are not owned by any run.
//
// The tracker serializes all mutations behind one mutex. Deployment
// volumes are tiny compared to run transitions, so per-record locking
// would buy nothing.
package deploy
