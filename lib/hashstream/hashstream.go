// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hashstream

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest algorithm. Values are the lower-case names
// accepted in configuration.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
)

// Default is the algorithm set every inventory identity carries.
var Default = []Algorithm{SHA1, SHA256, SHA512}

// AttributeKey returns the identity attribute key under which this
// algorithm's digest is reported, e.g. "sha256Checksum".
func (a Algorithm) AttributeKey() string {
	return string(a) + "Checksum"
}

// ParseAlgorithm accepts an algorithm name case-insensitively, with or
// without a dash ("SHA-256").
func ParseAlgorithm(name string) (Algorithm, error) {
	normalized := Algorithm(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", ""))
	switch normalized {
	case SHA1, SHA256, SHA512, BLAKE3:
		return normalized, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", name)
	}
}

func newHash(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

// Digests maps each algorithm to its lower-case hex digest.
type Digests map[Algorithm]string

// Attributes returns the digests keyed by identity attribute name.
func (d Digests) Attributes() map[string]string {
	attributes := make(map[string]string, len(d))
	for algorithm, digest := range d {
		attributes[algorithm.AttributeKey()] = digest
	}
	return attributes
}

// Result is the outcome of hashing one stream.
type Result struct {
	Digests Digests

	// Failed holds the algorithms that produced no digest and why.
	Failed map[Algorithm]error
}

// Stream is an io.Writer computing every configured digest at once.
// Not safe for concurrent use.
type Stream struct {
	order   []Algorithm
	hashes  map[Algorithm]hash.Hash
	failed  map[Algorithm]error
	written int64
}

// New returns a Stream for the given algorithms. Duplicates are
// ignored. Unknown algorithms are recorded as failures rather than
// returned as an error.
func New(algorithms ...Algorithm) *Stream {
	stream := &Stream{
		hashes: make(map[Algorithm]hash.Hash, len(algorithms)),
		failed: make(map[Algorithm]error),
	}
	for _, algorithm := range algorithms {
		if _, seen := stream.hashes[algorithm]; seen {
			continue
		}
		if _, seen := stream.failed[algorithm]; seen {
			continue
		}
		hasher, err := newHash(algorithm)
		if err != nil {
			stream.failed[algorithm] = err
			continue
		}
		stream.hashes[algorithm] = hasher
		stream.order = append(stream.order, algorithm)
	}
	return stream
}

// Write feeds p to every digest. hash.Hash.Write never returns an
// error, so neither does this.
func (s *Stream) Write(p []byte) (int, error) {
	for _, algorithm := range s.order {
		s.hashes[algorithm].Write(p)
	}
	s.written += int64(len(p))
	return len(p), nil
}

// Written returns the number of bytes consumed so far.
func (s *Stream) Written() int64 { return s.written }

// Algorithms returns the algorithms that will produce a digest, in
// configuration order.
func (s *Stream) Algorithms() []Algorithm {
	return append([]Algorithm(nil), s.order...)
}

// Result returns the digests of everything written so far.
func (s *Stream) Result() Result {
	result := Result{
		Digests: make(Digests, len(s.order)),
		Failed:  make(map[Algorithm]error, len(s.failed)),
	}
	for _, algorithm := range s.order {
		result.Digests[algorithm] = hex.EncodeToString(s.hashes[algorithm].Sum(nil))
	}
	for algorithm, err := range s.failed {
		result.Failed[algorithm] = err
	}
	return result
}

// Compute reads r to EOF exactly once and returns the digests. A read
// error is returned as-is; the caller decides whether a partial read
// is worth anything.
func Compute(r io.Reader, algorithms ...Algorithm) (Result, error) {
	stream := New(algorithms...)
	if _, err := io.Copy(stream, r); err != nil {
		return Result{}, fmt.Errorf("hashing stream: %w", err)
	}
	return stream.Result(), nil
}

// SortedKeys returns the digest algorithms in lexical order, for
// stable logging.
func (d Digests) SortedKeys() []Algorithm {
	keys := make([]Algorithm, 0, len(d))
	for algorithm := range d {
		keys = append(keys, algorithm)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
