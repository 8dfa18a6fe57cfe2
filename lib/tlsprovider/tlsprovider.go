// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tlsprovider builds the client TLS configuration used for
// mutual-TLS uploads. Certificate material is re-read on every call so
// a rotated certificate is picked up by the next report without a
// restart.
package tlsprovider

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

// Provider loads a client certificate and key, plus an optional CA
// bundle that replaces the system roots.
type Provider struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// TLSConfig returns a fresh configuration. A failure means the mTLS
// transport is not ready; it is not fatal to the agent.
func (p Provider) TLSConfig() (*tls.Config, error) {
	if p.CertFile == "" || p.KeyFile == "" {
		return nil, agenterr.New(agenterr.TLSReadingCertsInvalidMode, "certificate and key paths are required for mutual TLS")
	}
	certPEM, err := os.ReadFile(p.CertFile)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.TLSReadingCerts, "reading client certificate", err)
	}
	keyPEM, err := os.ReadFile(p.KeyFile)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.TLSReadingCerts, "reading client key", err)
	}
	certificate, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.TLSParsingCerts, "parsing client key pair", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tls.VersionTLS12,
	}
	if p.CAFile != "" {
		caPEM, err := os.ReadFile(p.CAFile)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.TLSReadingCerts, "reading CA bundle", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, agenterr.Wrap(agenterr.TLSParsingCerts, "parsing CA bundle",
				fmt.Errorf("no certificates in %s", p.CAFile))
		}
		config.RootCAs = pool
	}
	return config, nil
}

// Check verifies the certificate material without keeping the result.
func (p Provider) Check() error {
	_, err := p.TLSConfig()
	return err
}
