// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery sends serialized reports to the collection service
// and its fallbacks.
//
// A [Transport] moves one named [Payload] somewhere: an HTTPS multipart
// upload ([HTTPTransport]), a file in the upload directory
// ([FileTransport]), a NATS subject ([NATSTransport]) or a Redis list
// ([RedisTransport]). [WithRetry] wraps a transport in exponential
// backoff. [Failover] tries transports strictly in order and stops at
// the first success; before each fallback it decorates the payload with
// "client.exception", the base64 of the previous failure, so whatever
// finally receives the report can tell why the earlier routes were
// skipped.
//
// HTTP status handling is a closed set of outcomes ([Accepted],
// [Retryable], [Rejected]). Rejections are marked permanent so backoff
// does not waste attempts on a request the server will never accept.
package delivery
