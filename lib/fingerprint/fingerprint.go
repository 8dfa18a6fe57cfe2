// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/magiconair/properties"

	"github.com/runtime-insights/insights-agent/lib/archive"
	"github.com/runtime-insights/insights-agent/lib/hashstream"
)

// manifestAttributes are copied from the manifest main section into
// the identity when present.
var manifestAttributes = []string{"Implementation-Vendor", "Implementation-Vendor-Id"}

const (
	manifestPath    = "META-INF/MANIFEST.MF"
	mavenPrefix     = "META-INF/maven"
	pomProperties   = "pom.properties"
	maxMetadataSize = 1 << 20
)

// Config controls which archives are fingerprinted and how.
type Config struct {
	// Algorithms selects the checksums. Empty means hashstream.Default.
	Algorithms []hashstream.Algorithm

	// SkipTemp skips archives under TempDir. TempDir defaults to
	// os.TempDir().
	SkipTemp bool
	TempDir  string

	// Ignore lists archive file names never reported.
	Ignore []string

	// SelfPath is the agent's own artifact, never reported.
	SelfPath string
}

// Fingerprinter computes identities. Safe for concurrent use.
type Fingerprinter struct {
	resolver *archive.Resolver
	config   Config
	logger   *slog.Logger
}

// New returns a Fingerprinter reading archives through resolver.
func New(resolver *archive.Resolver, config Config, logger *slog.Logger) *Fingerprinter {
	if len(config.Algorithms) == 0 {
		config.Algorithms = hashstream.Default
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if !config.SkipTemp {
		logger.Debug("temporary archives will be reported", "temp_dir", config.TempDir)
	}
	return &Fingerprinter{resolver: resolver, config: config, logger: logger}
}

// Identify applies the skip rules to address and fingerprints it if it
// passes. The boolean is false when the address was skipped.
func (f *Fingerprinter) Identify(address archive.Address) (Identity, bool) {
	if address.Builtin {
		f.logger.Debug("skipping built-in module", "address", address.String())
		return Identity{}, false
	}
	if f.config.SkipTemp && isUnder(f.config.TempDir, address.Outer) {
		f.logger.Debug("skipping temporary archive", "address", address.String())
		return Identity{}, false
	}
	name := address.Name()
	if !archive.IsArchiveName(name) {
		f.logger.Debug("skipping non-archive extension", "address", address.String())
		return Identity{}, false
	}
	if slices.Contains(f.config.Ignore, name) {
		f.logger.Debug("skipping ignored archive", "address", address.String())
		return Identity{}, false
	}
	if f.isSelf(address) {
		f.logger.Debug("skipping agent artifact", "address", address.String())
		return Identity{}, false
	}
	return f.Fingerprint(name, address), true
}

func (f *Fingerprinter) isSelf(address archive.Address) bool {
	if f.config.SelfPath == "" || address.IsNested() {
		return false
	}
	return sameFile(f.config.SelfPath, address.Outer)
}

// Fingerprint computes the identity of address under name without any
// skip checks.
func (f *Fingerprinter) Fingerprint(name string, address archive.Address) Identity {
	stream, err := f.resolver.Open(address)
	if err != nil {
		f.logger.Warn("archive could not be opened", "address", address.String(), "error", err)
		return Unopened(name)
	}
	result, err := hashstream.Compute(stream, f.config.Algorithms...)
	stream.Close()
	if err != nil {
		f.logger.Warn("archive could not be hashed", "address", address.String(), "error", err)
		return NewIdentity(name, UnknownVersion, nil)
	}
	for algorithm, hashErr := range result.Failed {
		f.logger.Error("checksum unavailable", "address", address.String(), "algorithm", algorithm, "error", hashErr)
	}
	attributes := result.Digests.Attributes()

	version, err := f.describe(address, attributes)
	if err != nil {
		f.logger.Debug("adding archive without version", "address", address.String(), "error", err)
		return NewIdentity(name, UnknownVersion, attributes)
	}
	if version == "" {
		version = UnknownVersion
	}
	f.logger.Debug("fingerprinted archive", "address", address.String(), "name", name, "version", version)
	return NewIdentity(name, version, attributes)
}

// describe adds manifest and Maven attributes to attributes and returns
// the resolved version.
func (f *Fingerprinter) describe(address archive.Address, attributes map[string]string) (string, error) {
	container, closer, err := f.resolver.OpenArchive(address)
	if err != nil {
		return "", err
	}
	defer closer.Close()

	var parsed *manifest
	if entry := findManifest(container); entry != nil {
		content, err := readLimited(entry, maxMetadataSize)
		if err != nil {
			return "", fmt.Errorf("reading manifest: %w", err)
		}
		parsed, err = parseManifest(content)
		if err != nil {
			return "", err
		}
		for _, key := range manifestAttributes {
			if value := parsed.main.get(key); value != "" {
				attributes[key] = value
			}
		}
	}

	pom, err := uniquePom(container)
	if err != nil {
		f.logger.Error("reading maven metadata", "address", address.String(), "error", err)
	} else if pom != nil {
		for key, value := range pom {
			attributes[key] = value
		}
		return pom["version"], nil
	}

	if parsed == nil {
		return "", nil
	}
	return parsed.version(), nil
}

func findManifest(container *zip.Reader) *zip.File {
	for _, entry := range container.File {
		if strings.EqualFold(entry.Name, manifestPath) {
			return entry
		}
	}
	return nil
}

// uniquePom returns the properties of the only pom.properties under
// META-INF/maven, or nil when there are none or several.
func uniquePom(container *zip.Reader) (map[string]string, error) {
	var found *zip.File
	for _, entry := range container.File {
		if !strings.HasPrefix(entry.Name, mavenPrefix) || !strings.HasSuffix(entry.Name, pomProperties) {
			continue
		}
		if found != nil {
			return nil, nil
		}
		found = entry
	}
	if found == nil {
		return nil, nil
	}

	content, err := readLimited(found, maxMetadataSize)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", found.Name, err)
	}
	loader := &properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	parsed, err := loader.LoadBytes(content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", found.Name, err)
	}
	return parsed.Map(), nil
}

func readLimited(entry *zip.File, limit int64) ([]byte, error) {
	stream, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return io.ReadAll(io.LimitReader(stream, limit))
}

// isUnder reports whether target lies strictly inside directory.
func isUnder(directory, target string) bool {
	directory, err := filepath.Abs(directory)
	if err != nil {
		return false
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return false
	}
	relative, err := filepath.Rel(directory, target)
	if err != nil || relative == "." {
		return false
	}
	return relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator))
}

func sameFile(a, b string) bool {
	absoluteA, errA := filepath.Abs(a)
	absoluteB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && filepath.Clean(absoluteA) == filepath.Clean(absoluteB)
}
