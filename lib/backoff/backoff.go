// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/clock"
)

// ErrInterrupted is matched by the error Run returns when its context
// ends before the action succeeds.
var ErrInterrupted = errors.New("retry interrupted")

// DefaultPolicy is the delivery retry schedule: 2s, 4s, 8s, ... for up
// to ten attempts.
var DefaultPolicy = Policy{InitialDelay: 2 * time.Second, Factor: 2, MaxAttempts: 10}

// Policy is an exponential retry schedule.
type Policy struct {
	InitialDelay time.Duration
	Factor       float64
	MaxAttempts  int
}

// Validate reports every invalid field.
func (p Policy) Validate() error {
	var errs []error
	if p.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("initial delay %v is negative", p.InitialDelay))
	}
	if p.Factor < 1 {
		errs = append(errs, fmt.Errorf("factor %v is below 1", p.Factor))
	}
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts %d is below 1", p.MaxAttempts))
	}
	return errors.Join(errs...)
}

// RetriesFailedError carries every failure from an exhausted Run, in
// attempt order.
type RetriesFailedError struct {
	Failures []error
}

func (e *RetriesFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "all attempts failed"
	}
	return fmt.Sprintf("all %d attempts failed, last: %v", len(e.Failures), e.Failures[len(e.Failures)-1])
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *RetriesFailedError) Unwrap() []error { return e.Failures }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Run returns the
// underlying error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var permanent *permanentError
	return errors.As(err, &permanent)
}

// Action is one attempt.
type Action func(ctx context.Context) error

// Run calls action until it succeeds and returns the zero-based index
// of the successful attempt. There is no sleep after the final failed
// attempt, so an exhausted run takes the sum of the first
// MaxAttempts-1 delays.
func Run(ctx context.Context, clk clock.Clock, policy Policy, logger *slog.Logger, action Action) (int, error) {
	if err := policy.Validate(); err != nil {
		return 0, fmt.Errorf("invalid retry policy: %w", err)
	}

	delay := policy.InitialDelay
	var failures []error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, interrupted(attempt, err)
		}

		err := action(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("action succeeded after retries", "attempt", attempt)
			}
			return attempt, nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) {
			logger.Debug("action failed permanently", "attempt", attempt, "error", permanent.err)
			return attempt, permanent.err
		}
		failures = append(failures, err)

		if attempt == policy.MaxAttempts-1 {
			break
		}
		logger.Debug("action failed, backing off",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-clk.After(delay):
		case <-ctx.Done():
			return attempt, interrupted(attempt, ctx.Err())
		}
		delay = time.Duration(float64(delay) * policy.Factor)
	}

	return policy.MaxAttempts - 1, agenterr.Wrap(
		agenterr.ClientBackoffRetriesFailed,
		"retries exhausted",
		&RetriesFailedError{Failures: failures},
	)
}

func interrupted(attempt int, cause error) error {
	return agenterr.Wrap(
		agenterr.InterruptedThread,
		fmt.Sprintf("backoff interrupted at attempt %d", attempt),
		fmt.Errorf("%w: %w", ErrInterrupted, cause),
	)
}
