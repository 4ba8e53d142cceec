// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the conveyor command tree: hierarchical
// command dispatch with pflag flag sets, structured help output, and
// typo suggestions.
package cli
