// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the report
// scheduler and the delivery backoff.
//
// Production code receives Real(). Tests receive Fake(), which stands
// still until Advance is called, so CONNECT/UPDATE periods and backoff
// delays of hours or days can be exercised in microseconds:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go worker(fake)
//	fake.WaitForTimers(1)       // worker is now blocked on a timer
//	fake.Advance(2 * time.Second)
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
