// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventbus fans lifecycle events out to subscribers.
//
// Delivery is best-effort and non-blocking: each subscriber owns a
// bounded channel, and a publish that would block drops the event for
// that subscriber instead of stalling the state transition that
// produced it. Because the engine publishes while holding the run's
// lock, events for one run arrive in transition order on every
// channel that keeps up.
package eventbus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// DefaultBuffer is the subscription channel capacity used when
// Subscribe is called with a non-positive buffer size.
const DefaultBuffer = 64

// Bus is a process-local fan-out of lifecycle events. The zero value
// is not usable; construct with New.
type Bus struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	closed      bool
}

// New creates an empty bus. A nil logger discards log output.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		logger:      logger,
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscription is one subscriber's view of the bus. Receive events
// from C; call Cancel when done. C is closed by Cancel and by
// Bus.Close.
type Subscription struct {
	// C delivers events in publish order. Events that would overflow
	// the buffer are dropped, not queued.
	C <-chan schema.LifecycleEvent

	bus     *Bus
	channel chan schema.LifecycleEvent
	dropped atomic.Int64
	once    sync.Once
}

// Cancel removes the subscription and closes C. Safe to call more
// than once and concurrently with Publish.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
		close(s.channel)
	})
}

// Dropped returns how many events were discarded because the
// subscriber fell behind.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Subscribe registers a new subscriber with the given channel buffer
// (DefaultBuffer if non-positive). Returns nil if the bus is closed.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	sub := &Subscription{bus: b, channel: make(chan schema.LifecycleEvent, buffer)}
	sub.C = sub.channel
	b.subscribers[sub] = struct{}{}
	return sub
}

// Publish delivers event to every current subscriber without
// blocking. Subscribers whose buffers are full lose the event.
func (b *Bus) Publish(event schema.LifecycleEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for sub := range b.subscribers {
		select {
		case sub.channel <- event:
		default:
			sub.dropped.Add(1)
			b.logger.Debug("event dropped for slow subscriber",
				"kind", event.Kind,
				"run_id", event.RunID,
				"dropped_total", sub.dropped.Load(),
			)
		}
	}
}

// Close shuts the bus down: all subscription channels are closed and
// further Publish and Subscribe calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		sub.once.Do(func() { close(sub.channel) })
		delete(b.subscribers, sub)
	}
}
