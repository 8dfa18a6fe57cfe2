// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/runtime-insights/insights-agent/lib/clock"
	"github.com/runtime-insights/insights-agent/lib/config"
	"github.com/runtime-insights/insights-agent/lib/delivery"
	"github.com/runtime-insights/insights-agent/lib/tlsprovider"
)

// buildTransports assembles the failover order: HTTPS upload, then
// NATS and Redis when configured, then the local file fallback. Remote
// transports retry with the configured backoff; the file transport
// does not. The returned cleanup closes every connection opened here.
//
// A NATS or Redis endpoint that cannot be reached at startup is left
// out with a warning rather than failing the agent.
func buildTransports(cfg *config.Config, clk clock.Clock, logger *slog.Logger) ([]delivery.Transport, func(), error) {
	var transports []delivery.Transport
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	policy := cfg.Retry.Policy()
	retried := func(transport delivery.Transport) delivery.Transport {
		return delivery.WithRetry(transport, clk, policy, logger.With("transport", transport.Name()))
	}

	if !cfg.Upload.Disabled {
		provider := tlsprovider.Provider{
			CertFile: cfg.Upload.CertFile,
			KeyFile:  cfg.Upload.KeyFile,
			CAFile:   cfg.Upload.CAFile,
		}
		transports = append(transports, retried(delivery.NewHTTP(delivery.HTTPConfig{
			BaseURL:   cfg.Upload.BaseURL,
			UploadURI: cfg.Upload.URI,
			Token:     cfg.Upload.Token,
			CertFile:  cfg.Upload.CertFile,
			ProxyHost: cfg.Upload.ProxyHost,
			ProxyPort: cfg.Upload.ProxyPort,
			Timeout:   cfg.Upload.Timeout,
		}, provider, logger)))
	}

	if cfg.NATS.URL != "" {
		conn, err := delivery.DialNATS(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("nats transport unavailable", "url", cfg.NATS.URL, "error", err)
		} else {
			closers = append(closers, conn.Close)
			transports = append(transports, retried(delivery.NewNATS(conn, cfg.NATS.Subject)))
		}
	}

	if cfg.Redis.URL != "" {
		redisTransport, err := delivery.NewRedis(cfg.Redis.URL, cfg.Redis.Key, clk, logger)
		if err != nil {
			logger.Warn("redis transport unavailable", "error", err)
		} else {
			closers = append(closers, func() {
				if err := redisTransport.Close(); err != nil {
					logger.Debug("closing redis client", "error", err)
				}
			})
			transports = append(transports, retried(redisTransport))
		}
	}

	file, err := delivery.NewFile(cfg.Upload.Dir, cfg.Upload.FileFormat, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	transports = append(transports, file)

	return transports, cleanup, nil
}
