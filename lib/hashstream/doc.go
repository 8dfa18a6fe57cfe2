// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hashstream computes several content digests in one pass over
// a byte stream.
//
// A [Stream] is an io.Writer that fans every byte out to each configured
// digest, so an archive is read exactly once no matter how many
// checksums the inventory report carries. SHA-1, SHA-256 and SHA-512
// come from the standard library; BLAKE3 comes from zeebo/blake3.
//
// An algorithm that cannot be constructed is recorded in
// [Result.Failed] and omitted from the digests. It never prevents the
// other digests from being produced.
package hashstream
