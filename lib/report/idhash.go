// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

// IdentityHash is a single-assignment holder for the process identity
// hash. The first successful Ensure computes and stores the value;
// every later call returns it unchanged. A failed computation stores
// nothing, so the next Ensure tries again.
type IdentityHash struct {
	compute func(*Report) (string, error)

	mu    sync.Mutex
	value string
}

// NewIdentityHash returns an empty holder.
func NewIdentityHash() *IdentityHash {
	return &IdentityHash{compute: Compute}
}

// Ensure returns the memoized hash, computing it from connect on the
// first call. connect's idHash is set either way. Concurrent first
// calls perform exactly one computation.
func (h *IdentityHash) Ensure(connect *Report) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.value == "" {
		hash, err := h.compute(connect)
		if err != nil {
			return "", err
		}
		h.value = hash
	}
	connect.SetIDHash(h.value)
	return h.value, nil
}

// Get returns the hash; ok is false before it is set. Get blocks only
// while a first Ensure is computing.
func (h *IdentityHash) Get() (hash string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.value != ""
}

// Compute returns the lower-case hex SHA-512 of the gzip-compressed
// serialization of report with its idHash omitted.
func Compute(report *Report) (string, error) {
	document, err := report.serializeWithoutHash()
	if err != nil {
		return "", agenterr.Wrap(agenterr.GeneratingHash, "serializing report for identity hash", err)
	}
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(document); err != nil {
		return "", agenterr.Wrap(agenterr.GzipFile, "compressing report for identity hash", err)
	}
	if err := writer.Close(); err != nil {
		return "", agenterr.Wrap(agenterr.GzipFile, "compressing report for identity hash", err)
	}
	sum := sha512.Sum512(buffer.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// String implements fmt.Stringer for logging.
func (h *IdentityHash) String() string {
	if hash, ok := h.Get(); ok {
		return hash
	}
	return "<unset>"
}
