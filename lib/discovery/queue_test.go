// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"fmt"
	"sync"
	"testing"

	"github.com/runtime-insights/insights-agent/lib/fingerprint"
)

func identity(name string) fingerprint.Identity {
	return fingerprint.NewIdentity(name, "1.0", nil)
}

func TestQueueFIFOAndDrain(t *testing.T) {
	queue := NewQueue(10)
	for i := range 3 {
		if !queue.Offer(identity(fmt.Sprintf("lib-%d.jar", i))) {
			t.Fatalf("Offer %d refused", i)
		}
	}

	drained := queue.Drain()
	if len(drained) != 3 {
		t.Fatalf("Drain returned %d identities, want 3", len(drained))
	}
	for i, got := range drained {
		if want := fmt.Sprintf("lib-%d.jar", i); got.Name() != want {
			t.Errorf("drained[%d] = %s, want %s", i, got.Name(), want)
		}
	}
	if queue.Len() != 0 || queue.Drain() != nil {
		t.Error("queue not empty after Drain")
	}
}

func TestQueueRefusesWhenFull(t *testing.T) {
	queue := NewQueue(2)
	queue.Offer(identity("a.jar"))
	queue.Offer(identity("b.jar"))
	if queue.Offer(identity("c.jar")) {
		t.Error("Offer accepted past capacity")
	}
	if queue.Len() != 2 {
		t.Errorf("Len() = %d, want 2", queue.Len())
	}
	drained := queue.Drain()
	if len(drained) != 2 || drained[0].Name() != "a.jar" {
		t.Errorf("drained = %v, want the oldest two kept", drained)
	}
}

func TestQueueConcurrentProducersDrainExactlyOnce(t *testing.T) {
	queue := NewQueue(100000)
	const producers, each = 8, 500

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				queue.Offer(identity(fmt.Sprintf("p%d-%d.jar", p, i)))
			}
		}()
	}

	seen := make(map[string]bool)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	collect := func() {
		for _, got := range queue.Drain() {
			if seen[got.Name()] {
				t.Errorf("%s drained twice", got.Name())
			}
			seen[got.Name()] = true
		}
	}
	for {
		select {
		case <-done:
			collect()
			if len(seen) != producers*each {
				t.Errorf("drained %d identities, want %d", len(seen), producers*each)
			}
			return
		default:
			collect()
		}
	}
}

func TestNewQueueRejectsZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewQueue(0) did not panic")
		}
	}()
	NewQueue(0)
}

func TestDedupState(t *testing.T) {
	state := NewDedupState()
	if !state.AddAddress("/a.jar") || state.AddAddress("/a.jar") {
		t.Error("AddAddress did not report first insertion exactly once")
	}
	if !state.HasAddress("/a.jar") || state.HasAddress("/b.jar") {
		t.Error("HasAddress disagrees with AddAddress")
	}
	if !state.AddContent("sha512:aa") || state.AddContent("sha512:aa") {
		t.Error("AddContent did not report first insertion exactly once")
	}
	if addresses, contents := state.Sizes(); addresses != 1 || contents != 1 {
		t.Errorf("Sizes() = %d, %d", addresses, contents)
	}
}
