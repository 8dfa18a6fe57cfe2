// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

func TestComputeHashesGzippedHashlessReport(t *testing.T) {
	connect := NewConnect(Options{}, map[string]any{"app.name": "billing", "report_time": 1767225600000}, testJars())
	connect.SetIDHash("stale")

	hash, err := Compute(connect)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	connect.SetIDHash("")
	document, err := connect.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	writer.Write(document)
	writer.Close()
	sum := sha512.Sum512(buffer.Bytes())
	if want := hex.EncodeToString(sum[:]); hash != want {
		t.Errorf("Compute = %s, want %s", hash, want)
	}
	if len(hash) != 128 {
		t.Errorf("hash length = %d, want 128", len(hash))
	}
}

func TestIdentityHashIsIdempotent(t *testing.T) {
	holder := NewIdentityHash()
	if _, ok := holder.Get(); ok {
		t.Fatal("Get() ok before Ensure")
	}

	first := NewConnect(Options{}, map[string]any{"report_time": 1}, testJars())
	hash, err := holder.Ensure(first)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if first.IDHash() != hash {
		t.Errorf("report idHash = %q, want %q", first.IDHash(), hash)
	}

	// A later CONNECT with different facts keeps the original hash.
	second := NewConnect(Options{}, map[string]any{"report_time": 2}, nil)
	again, err := holder.Ensure(second)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if again != hash || second.IDHash() != hash {
		t.Errorf("second Ensure = %q (report %q), want %q", again, second.IDHash(), hash)
	}
	if got, ok := holder.Get(); !ok || got != hash {
		t.Errorf("Get() = %q, %v", got, ok)
	}
}

func TestIdentityHashConcurrentFirstCalls(t *testing.T) {
	holder := NewIdentityHash()
	var computations atomic.Int32
	holder.compute = func(r *Report) (string, error) {
		computations.Add(1)
		return Compute(r)
	}

	connect := NewConnect(Options{}, map[string]any{"app.name": "billing"}, testJars())
	const callers = 16
	hashes := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hash, err := holder.Ensure(connect)
			if err != nil {
				t.Errorf("Ensure: %v", err)
			}
			hashes[i] = hash
		}()
	}
	wg.Wait()

	if got := computations.Load(); got != 1 {
		t.Errorf("computations = %d, want 1", got)
	}
	for i, hash := range hashes {
		if hash != hashes[0] || hash == "" {
			t.Errorf("caller %d got %q, want %q", i, hash, hashes[0])
		}
	}
}

func TestIdentityHashRetriesAfterFailure(t *testing.T) {
	holder := NewIdentityHash()
	failures := 1
	holder.compute = func(r *Report) (string, error) {
		if failures > 0 {
			failures--
			return "", agenterr.New(agenterr.GeneratingHash, "boom")
		}
		return Compute(r)
	}
	connect := NewConnect(Options{}, nil, nil)

	if _, err := holder.Ensure(connect); !agenterr.Is(err, agenterr.GeneratingHash) {
		t.Fatalf("first Ensure error = %v, want GeneratingHash", err)
	}
	if _, ok := holder.Get(); ok {
		t.Fatal("failed computation was memoized")
	}
	if _, err := holder.Ensure(connect); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
}
