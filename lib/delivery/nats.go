// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/backoff"
)

// Publisher is the subset of *nats.Conn the NATS transport uses.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Status() nats.Status
}

// NATSTransport publishes each report as one JSON message. The report
// name travels in the Nats-Msg-Id header so JetStream subjects
// deduplicate resends.
type NATSTransport struct {
	conn    Publisher
	subject string
}

// NewNATS returns a NATSTransport publishing on subject through conn.
func NewNATS(conn Publisher, subject string) *NATSTransport {
	return &NATSTransport{conn: conn, subject: subject}
}

// DialNATS connects to url with unlimited reconnects. The returned
// connection is owned by the caller.
func DialNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("insights-agent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("reconnected to NATS", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// Name returns "nats".
func (n *NATSTransport) Name() string { return "nats" }

// Ready reports whether the connection is currently established.
func (n *NATSTransport) Ready(context.Context) bool {
	return n.conn.Status() == nats.CONNECTED
}

// Send publishes payload and flushes so a failed publish surfaces here
// rather than on a later report.
func (n *NATSTransport) Send(ctx context.Context, name string, payload Payload) error {
	document, err := payload.Serialize()
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.SerializingToJSON, "serializing report", err))
	}
	msg := nats.NewMsg(n.subject)
	msg.Header.Set(nats.MsgIdHdr, name)
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = document
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", name, n.subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing NATS connection: %w", err)
	}
	return nil
}
