// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"log/slog"

	"github.com/runtime-insights/insights-agent/lib/backoff"
	"github.com/runtime-insights/insights-agent/lib/clock"
)

type retrying struct {
	Transport
	clock  clock.Clock
	policy backoff.Policy
	logger *slog.Logger
}

// WithRetry wraps transport so each Send is retried under policy.
// Failures marked backoff.Permanent are returned after one attempt.
func WithRetry(transport Transport, clk clock.Clock, policy backoff.Policy, logger *slog.Logger) Transport {
	return &retrying{Transport: transport, clock: clk, policy: policy, logger: logger.With("transport", transport.Name())}
}

func (r *retrying) Send(ctx context.Context, name string, payload Payload) error {
	_, err := backoff.Run(ctx, r.clock, r.policy, r.logger, func(ctx context.Context) error {
		return r.Transport.Send(ctx, name, payload)
	})
	return err
}
