// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/backoff"
	"github.com/runtime-insights/insights-agent/lib/clock"
	"github.com/runtime-insights/insights-agent/lib/codec"
)

const redisPingTimeout = 2 * time.Second

// Envelope is the CBOR record pushed onto the Redis list.
type Envelope struct {
	Name   string           `cbor:"name"`
	SentAt int64            `cbor:"sent_at"`
	Report codec.RawMessage `cbor:"report"`
}

// RedisTransport appends reports to a Redis list for a separate
// forwarder to drain.
type RedisTransport struct {
	client redis.UniversalClient
	key    string
	clock  clock.Clock
	logger *slog.Logger
}

// NewRedis parses a redis:// URL and returns a transport pushing onto
// key. No connection is made until the first Ready or Send.
func NewRedis(url, key string, clk clock.Clock, logger *slog.Logger) (*RedisTransport, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	return NewRedisClient(redis.NewClient(options), key, clk, logger), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client redis.UniversalClient, key string, clk clock.Clock, logger *slog.Logger) *RedisTransport {
	return &RedisTransport{client: client, key: key, clock: clk, logger: logger}
}

// Name returns "redis".
func (r *RedisTransport) Name() string { return "redis" }

// Ready pings the server.
func (r *RedisTransport) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.Debug("redis not reachable", "error", err)
		return false
	}
	return true
}

// Send RPUSHes a CBOR envelope holding the report.
func (r *RedisTransport) Send(ctx context.Context, name string, payload Payload) error {
	document, err := payload.Serialize()
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.SerializingToJSON, "serializing report", err))
	}
	report, err := codec.FromJSON(document)
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.SerializingToJSON, "converting report to CBOR", err))
	}
	envelope, err := codec.Marshal(Envelope{Name: name, SentAt: r.clock.Now().UnixMilli(), Report: report})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("encoding envelope: %w", err))
	}
	if r.logger.Enabled(ctx, slog.LevelDebug) {
		if diagnostic, err := codec.Diagnose(envelope); err == nil {
			r.logger.Debug("pushing report envelope", "key", r.key, "envelope", diagnostic)
		}
	}
	if err := r.client.RPush(ctx, r.key, envelope).Err(); err != nil {
		return fmt.Errorf("pushing %s onto %s: %w", name, r.key, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisTransport) Close() error {
	return r.client.Close()
}
