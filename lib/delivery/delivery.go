// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/backoff"
	"github.com/runtime-insights/insights-agent/lib/metrics"
)

// ExceptionDecoration is the payload key carrying the base64-encoded
// failure of the previous transport.
const ExceptionDecoration = "client.exception"

// errNotReady is recorded for a transport skipped because it reported
// itself not ready.
var errNotReady = errors.New("not ready")

// Payload is a report that can be decorated and serialized. Decorate
// may be called several times with the same key; the last value wins.
type Payload interface {
	Decorate(key, value string)
	Serialize() ([]byte, error)
}

// Transport delivers one named payload. name is the bare report name,
// e.g. "<hash>_connect"; transports add their own suffix.
type Transport interface {
	Name() string
	Ready(ctx context.Context) bool
	Send(ctx context.Context, name string, payload Payload) error
}

// AllFailedError reports that every transport failed, in the order
// they were tried.
type AllFailedError struct {
	Transports []string
	Failures   []error
}

func (e *AllFailedError) Error() string {
	parts := make([]string, len(e.Transports))
	for i, name := range e.Transports {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Failures[i])
	}
	return "all transports failed: " + strings.Join(parts, "; ")
}

func (e *AllFailedError) Unwrap() []error { return e.Failures }

// Failover tries an ordered list of transports.
type Failover struct {
	transports []Transport
	logger     *slog.Logger
	recorder   metrics.Recorder
}

// NewFailover returns a Failover over transports, tried in the given
// order.
func NewFailover(logger *slog.Logger, recorder metrics.Recorder, transports ...Transport) *Failover {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Failover{transports: transports, logger: logger, recorder: recorder}
}

// Names returns the transport names in order.
func (f *Failover) Names() []string {
	names := make([]string, len(f.transports))
	for i, transport := range f.transports {
		names[i] = transport.Name()
	}
	return names
}

// Ready reports whether any transport is ready.
func (f *Failover) Ready(ctx context.Context) bool {
	for _, transport := range f.transports {
		if transport.Ready(ctx) {
			return true
		}
	}
	return false
}

// Deliver sends payload through the first transport that accepts it.
// Context cancellation, including an interrupted backoff, stops the
// walk immediately and is returned as-is.
func (f *Failover) Deliver(ctx context.Context, name string, payload Payload) error {
	failed := &AllFailedError{}
	for index, transport := range f.transports {
		if index > 0 {
			previous := failed.Failures[len(failed.Failures)-1]
			payload.Decorate(ExceptionDecoration, base64.StdEncoding.EncodeToString([]byte(previous.Error())))
		}

		var err error
		if transport.Ready(ctx) {
			err = transport.Send(ctx, name, payload)
		} else {
			err = errNotReady
		}
		if err == nil {
			if index > 0 {
				f.logger.Info("report delivered by fallback transport",
					"report", name,
					"transport", transport.Name(),
					"skipped", failed.Transports,
				)
			}
			return nil
		}

		f.recorder.TransportFailed(transport.Name())
		if errors.Is(err, backoff.ErrInterrupted) || ctx.Err() != nil {
			return err
		}
		f.logger.Debug("transport failed, trying next", "report", name, "transport", transport.Name(), "error", err)
		failed.Transports = append(failed.Transports, transport.Name())
		failed.Failures = append(failed.Failures, err)
	}
	if len(failed.Transports) == 0 {
		return agenterr.New(agenterr.ClientFailed, "no transports configured")
	}
	return agenterr.Wrap(agenterr.ClientFailed, "delivering "+name, failed)
}
