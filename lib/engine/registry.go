// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// registryState tracks in-memory runs and routes report calls to the
// owning run. Its mutex guards only the maps and counters here; it is
// never held while a run's own mutex is acquired.
type registryState struct {
	mu sync.Mutex

	// runs holds every non-archived run by run ID; jobIndex and
	// stepIndex route runner reports without walking every run.
	runs      map[string]*runState
	jobIndex  map[string]*runState
	stepIndex map[string]*runState

	// numbers is the next run number per pipeline, monotonically
	// increasing for the life of the process.
	numbers map[string]int64

	// active groups non-terminal runs per pipeline, for queue-limit
	// checks and auto-cancel scans.
	active map[string]map[string]*runState
}

func (r *registryState) init() {
	r.runs = make(map[string]*runState)
	r.jobIndex = make(map[string]*runState)
	r.stepIndex = make(map[string]*runState)
	r.numbers = make(map[string]int64)
	r.active = make(map[string]map[string]*runState)
}

// register reserves a run number, builds the run, stamps queue times,
// and indexes it. It returns the auto-cancel victims: earlier active
// runs of the same pipeline and ref, collected here under the
// registry lock but cancelled by the caller without it.
func (r *registryState) register(e *Engine, def *schema.PipelineDefinition, descriptor schema.TriggerDescriptor, now time.Time) (*runState, []*runState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pipelineActive := r.active[def.ID]
	if limit := def.Settings.QueueLimit; limit > 0 && len(pipelineActive) >= limit {
		return nil, nil, fmt.Errorf("%w: pipeline %s has %d active runs (limit %d)",
			ErrQueueFull, def.ID, len(pipelineActive), limit)
	}

	number := r.numbers[def.ID] + 1
	runID := fmt.Sprintf("run-%s-%d", def.ID, number)
	rs, err := buildRun(def, descriptor, runID, number)
	if err != nil {
		return nil, nil, err
	}
	r.numbers[def.ID] = number

	rs.run.Timing.QueuedAt = now
	for _, stage := range rs.stages {
		stage.Timing.QueuedAt = now
		for _, job := range rs.stageJobs[stage.ID] {
			job.Timing.QueuedAt = now
			for _, step := range rs.jobSteps[job.ID] {
				step.Timing.QueuedAt = now
			}
		}
	}
	rs.timers = make(map[string]*clock.Timer)

	var victims []*runState
	if def.Settings.AutoCancel && descriptor.Ref != "" {
		for _, prior := range pipelineActive {
			if prior.run.Trigger.Ref == descriptor.Ref {
				victims = append(victims, prior)
			}
		}
		sort.Slice(victims, func(i, j int) bool { return victims[i].run.Number < victims[j].run.Number })
	}

	r.runs[runID] = rs
	if pipelineActive == nil {
		pipelineActive = make(map[string]*runState)
		r.active[def.ID] = pipelineActive
	}
	pipelineActive[runID] = rs
	for jobID := range rs.jobs {
		r.jobIndex[jobID] = rs
	}
	for stepID := range rs.steps {
		r.stepIndex[stepID] = rs
	}
	return rs, victims, nil
}

func (r *registryState) lookupRun(runID string) (*runState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return rs, nil
}

func (r *registryState) lookupJob(jobRunID string) (*runState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.jobIndex[jobRunID]
	if !ok {
		return nil, fmt.Errorf("%w: job run %s", ErrNotFound, jobRunID)
	}
	return rs, nil
}

func (r *registryState) lookupStep(stepRunID string) (*runState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.stepIndex[stepRunID]
	if !ok {
		return nil, fmt.Errorf("%w: step run %s", ErrNotFound, stepRunID)
	}
	return rs, nil
}

// activeStates returns in-memory runs, optionally filtered by
// pipeline, ordered by pipeline ID then run number.
func (r *registryState) activeStates(pipelineID string) []*runState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []*runState
	if pipelineID != "" {
		for _, rs := range r.active[pipelineID] {
			states = append(states, rs)
		}
	} else {
		for _, pipeline := range r.active {
			for _, rs := range pipeline {
				states = append(states, rs)
			}
		}
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].run.PipelineID != states[j].run.PipelineID {
			return states[i].run.PipelineID < states[j].run.PipelineID
		}
		return states[i].run.Number < states[j].run.Number
	})
	return states
}

// noteTerminal removes a settled run from the active set so it no
// longer counts against queue limits or auto-cancel scans. The run
// and its job/step routing stay resident: late runner reports must
// still find their units, and GetRun serves recent runs without
// touching the archive.
func (r *registryState) noteTerminal(rs *runState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pipelineActive := r.active[rs.run.PipelineID]
	delete(pipelineActive, rs.run.ID)
	if len(pipelineActive) == 0 {
		delete(r.active, rs.run.PipelineID)
	}
}
