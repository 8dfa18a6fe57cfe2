// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"fmt"
	"sync"

	"github.com/runtime-insights/insights-agent/lib/fingerprint"
)

// DefaultQueueCapacity bounds the identities waiting for the next
// UPDATE.
const DefaultQueueCapacity = 10000

// Queue is a bounded FIFO of identities waiting for the next UPDATE
// report. A full queue refuses new entries rather than evicting old
// ones: every queued identity has passed content deduplication and
// would never be offered again. Refusals are counted by the caller's
// metrics recorder.
//
// Thread-safe: all methods may be called concurrently.
type Queue struct {
	mu       sync.Mutex
	entries  []fingerprint.Identity
	capacity int
}

// NewQueue returns a Queue holding at most capacity identities. The
// capacity must be positive.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		panic(fmt.Sprintf("discovery: queue capacity must be positive, got %d", capacity))
	}
	return &Queue{capacity: capacity}
}

// Offer appends identity and reports whether it fit.
func (q *Queue) Offer(identity fingerprint.Identity) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.capacity {
		return false
	}
	q.entries = append(q.entries, identity)
	return true
}

// Drain removes and returns every queued identity in arrival order, or
// nil when empty. The snapshot and clear happen under one lock, so an
// identity is returned by exactly one Drain.
func (q *Queue) Drain() []fingerprint.Identity {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	drained := q.entries
	q.entries = nil
	return drained
}

// Len returns the number of queued identities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
