// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now()
// when tests need unique pipeline IDs, run references, or artifact
// names that must stay distinguishable across parallel tests.
//
//	pipelineID := testutil.UniqueID("pipeline") // "pipeline-1", "pipeline-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
