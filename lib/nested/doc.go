// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package nested fingerprints archives packed inside other archives:
// the jars under a war's WEB-INF/lib, the wars inside an ear, and so
// on to any depth.
//
// [Walker.Expand] pre-scans the root container and returns immediately
// when no entry is itself a zip. Otherwise it extracts the container
// into a fresh "unarchive" directory under the caller's scratch
// directory, fingerprints every extracted archive, and queues each one
// that holds further archives. Traversal uses an explicit worklist, so
// adversarially deep nesting costs heap, not stack, and is bounded by
// [Config.MaxDepth].
//
// Every extraction target passes through [SecureJoin] before anything
// is written. An entry that would land outside its extraction root
// fails with [ErrPathEscape]; its siblings are still extracted and the
// failure is reported in the error returned alongside the identities.
// All scratch directories are removed before Expand returns.
package nested
