// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the agent's
// packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. These are the only place
// in the test suite where real wall-clock timeouts are used; every
// other wait goes through a fake clock.
//
// [Zip] and [WriteZip] build archive fixtures in memory, and [Manifest]
// renders a manifest file, so fingerprinting tests never depend on
// binary files checked into the tree. Fixture digests are computed
// from the bytes these helpers produce.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
