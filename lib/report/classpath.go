// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/runtime-insights/insights-agent/lib/archive"
	"github.com/runtime-insights/insights-agent/lib/fingerprint"
)

// Identifier decides whether an archive is reportable and fingerprints
// it. *fingerprint.Fingerprinter implements it.
type Identifier interface {
	Identify(address archive.Address) (fingerprint.Identity, bool)
}

// Classpath fingerprints every entry of a path-list separated
// classpath, in order. Relative entries are resolved against workDir.
// Entries the identifier skips are left out; duplicates are reported
// once.
func Classpath(classpath, workDir string, identifier Identifier, logger *slog.Logger) []fingerprint.Identity {
	identities := []fingerprint.Identity{}
	seen := make(map[string]bool)
	for _, entry := range filepath.SplitList(classpath) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(workDir, entry)
		}
		entry = filepath.Clean(entry)
		if seen[entry] {
			continue
		}
		seen[entry] = true

		identity, ok := identifier.Identify(archive.FromPath(entry))
		if !ok {
			logger.Debug("classpath entry not reported", "entry", entry)
			continue
		}
		identities = append(identities, identity)
	}
	return identities
}
