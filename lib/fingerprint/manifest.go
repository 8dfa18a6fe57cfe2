// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// manifestSection is one block of "Name: value" headers. Keys are
// stored lower-cased; manifest attribute names are case-insensitive.
type manifestSection map[string]string

func (s manifestSection) get(name string) string {
	return s[strings.ToLower(name)]
}

// manifest is a parsed META-INF/MANIFEST.MF.
type manifest struct {
	main manifestSection
	// named holds the per-entry sections in file order.
	named []manifestSection
}

// parseManifest reads the jar manifest format: CRLF, LF or CR line
// endings, continuation lines starting with one space, sections
// separated by blank lines.
func parseManifest(content []byte) (*manifest, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r"), []byte("\n"))

	result := &manifest{main: manifestSection{}}
	current := result.main
	var lastKey string

	scanner := bufio.NewScanner(bytes.NewReader(normalized))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()

		if line == "" {
			current = nil
			lastKey = ""
			continue
		}
		if strings.HasPrefix(line, " ") {
			if current == nil || lastKey == "" {
				return nil, fmt.Errorf("manifest line %d: continuation without header", lineNumber)
			}
			current[lastKey] += line[1:]
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found || key == "" {
			return nil, fmt.Errorf("manifest line %d: missing ':'", lineNumber)
		}
		value = strings.TrimPrefix(value, " ")
		if current == nil {
			current = manifestSection{}
			result.named = append(result.named, current)
		}
		lastKey = strings.ToLower(key)
		current[lastKey] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return result, nil
}

// versionKeys are tried in order on a section.
var versionKeys = []string{
	"Implementation-Version",
	"Specification-Version",
	"Bundle-Version",
	"Driver-Version",
}

func (s manifestSection) version() string {
	for _, key := range versionKeys {
		if value := s.get(key); value != "" {
			return value
		}
	}
	return ""
}

// version returns the version from the main section, falling back to
// the first named section.
func (m *manifest) version() string {
	if version := m.main.version(); version != "" {
		return version
	}
	if len(m.named) > 0 {
		return m.named[0].version()
	}
	return ""
}
