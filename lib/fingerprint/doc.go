// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint turns an archive address into an inventory
// [Identity]: file name, version, content checksums, and a handful of
// manifest and Maven attributes.
//
// [Fingerprinter.Identify] decides whether an address is worth
// reporting (temp files, built-in modules, non-archive extensions, the
// ignore list and the agent's own artifact are skipped) and then calls
// [Fingerprinter.Fingerprint], which does the work unconditionally.
// Fingerprinting never fails: corrupt or unreadable archives degrade to
// an identity with [UnknownVersion] and whatever checksums were
// computed. An address that cannot be opened at all keeps its name
// with no checksums; see [Unopened].
//
// Version resolution prefers a single META-INF/maven/**/pom.properties
// entry. When an archive shades several Maven artifacts, all of their
// coordinates are discarded, since picking one would be a guess, and
// the manifest decides.
package fingerprint
