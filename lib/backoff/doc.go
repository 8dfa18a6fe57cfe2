// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backoff retries a fallible action with exponential delays.
//
// [Run] calls the action until it succeeds, a failure is marked
// [Permanent], or [Policy.MaxAttempts] consecutive attempts fail. Delays
// start at InitialDelay and are multiplied by Factor after every
// failure, with no jitter. All sleeping goes through a [clock.Clock] so
// tests observe the exact schedule.
//
// Exhaustion returns a [*RetriesFailedError] holding every failure,
// coded agenterr.ClientBackoffRetriesFailed. Cancellation of the
// context during a sleep is never absorbed: Run returns at once with
// an error matching [ErrInterrupted], coded agenterr.InterruptedThread.
package backoff
