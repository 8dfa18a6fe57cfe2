// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/clock"
	"github.com/runtime-insights/insights-agent/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var testPolicy = Policy{InitialDelay: 10 * time.Millisecond, Factor: 2, MaxAttempts: 3}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type result struct {
	attempts int
	err      error
}

// runWithSleeps starts Run in a goroutine and advances the fake clock
// through exactly sleeps backoff delays, each as soon as Run has
// registered it.
func runWithSleeps(t *testing.T, fake *clock.FakeClock, policy Policy, sleeps int, action Action) result {
	t.Helper()
	done := make(chan result, 1)
	go func() {
		attempts, err := Run(context.Background(), fake, policy, discardLogger(), action)
		done <- result{attempts, err}
	}()

	delay := policy.InitialDelay
	for range sleeps {
		fake.WaitForTimers(1)
		fake.Advance(delay)
		delay = time.Duration(float64(delay) * policy.Factor)
	}
	return testutil.RequireReceive(t, done, 5*time.Second, "waiting for Run")
}

func TestRunExhaustsAttempts(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := 0
	outcome := runWithSleeps(t, fake, testPolicy, 2, func(context.Context) error {
		calls++
		return fmt.Errorf("failure %d", calls)
	})

	if calls != 3 {
		t.Errorf("action called %d times, want 3", calls)
	}
	if !agenterr.Is(outcome.err, agenterr.ClientBackoffRetriesFailed) {
		t.Fatalf("error = %v, want code %s", outcome.err, agenterr.ClientBackoffRetriesFailed)
	}
	var exhausted *RetriesFailedError
	if !errors.As(outcome.err, &exhausted) {
		t.Fatalf("error %v is not a *RetriesFailedError", outcome.err)
	}
	if len(exhausted.Failures) != 3 {
		t.Errorf("attached failures = %d, want 3", len(exhausted.Failures))
	}
	if elapsed := fake.Now().Sub(epoch); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 30ms", elapsed)
	}
	if elapsed := fake.Now().Sub(epoch); elapsed != 30*time.Millisecond {
		t.Errorf("elapsed = %v, want no sleep after the final attempt", elapsed)
	}
}

func TestRunEventualSuccess(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := 0
	outcome := runWithSleeps(t, fake, testPolicy, 2, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if outcome.err != nil {
		t.Fatalf("Run: %v", outcome.err)
	}
	if outcome.attempts != 2 {
		t.Errorf("attempts = %d, want 2", outcome.attempts)
	}
}

func TestRunImmediateSuccess(t *testing.T) {
	attempts, err := Run(context.Background(), clock.Fake(epoch), testPolicy, discardLogger(), func(context.Context) error { return nil })
	if err != nil || attempts != 0 {
		t.Fatalf("Run = %d, %v; want 0, nil", attempts, err)
	}
}

func TestRunPermanentStops(t *testing.T) {
	rejected := errors.New("413 payload too large")
	calls := 0
	attempts, err := Run(context.Background(), clock.Fake(epoch), testPolicy, discardLogger(), func(context.Context) error {
		calls++
		return Permanent(rejected)
	})
	if calls != 1 || attempts != 0 {
		t.Errorf("calls = %d, attempts = %d; want a single attempt", calls, attempts)
	}
	if err != rejected {
		t.Errorf("error = %v, want the unwrapped permanent cause", err)
	}
}

func TestRunInterruptedDuringSleep(t *testing.T) {
	fake := clock.Fake(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, fake, testPolicy, discardLogger(), func(context.Context) error {
			return errors.New("server unavailable")
		})
		done <- err
	}()

	fake.WaitForTimers(1)
	cancel()
	err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for interrupted Run")

	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("error = %v, want ErrInterrupted", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v does not carry the context cause", err)
	}
	if !agenterr.Is(err, agenterr.InterruptedThread) {
		t.Errorf("error = %v, want code %s", err, agenterr.InterruptedThread)
	}
	var exhausted *RetriesFailedError
	if errors.As(err, &exhausted) {
		t.Error("interruption reported as ordinary exhaustion")
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy.Validate(); err != nil {
		t.Errorf("DefaultPolicy invalid: %v", err)
	}
	bad := Policy{InitialDelay: -1, Factor: 0.5, MaxAttempts: 0}
	err := bad.Validate()
	if err == nil {
		t.Fatal("Validate accepted a bad policy")
	}
	if _, runErr := Run(context.Background(), clock.Fake(epoch), bad, discardLogger(), func(context.Context) error { return nil }); runErr == nil {
		t.Error("Run accepted a bad policy")
	}
}
