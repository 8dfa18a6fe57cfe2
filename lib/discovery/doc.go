// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery turns "an archive was loaded" notifications into
// queued identities for the next UPDATE report.
//
// [Noticer.Notice] is the one-way callback producers call with an
// archive address. It deduplicates first by address and then by
// content hash through a shared [DedupState], fingerprints what is new,
// and offers the identity to a bounded [Queue]. The controller drains
// the queue on every UPDATE tick.
//
// [Watcher] is the shipped producer: it watches deployment directories
// with fsnotify and notices archive files as they appear.
package discovery
