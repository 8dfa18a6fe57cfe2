// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrMalformedAddress is wrapped by every Parse failure.
var ErrMalformedAddress = errors.New("malformed archive address")

// containerMarkers are the suffixes (without the trailing "!/") that
// open a nested entry chain.
var containerMarkers = []string{".jar!", ".war!", ".ear!"}

// Extensions is the set of file extensions treated as archives.
var Extensions = []string{"jar", "war", "ear", "rar", "zip"}

// SyntheticName is the literal name some application servers give
// archives they serve from memory. It is accepted as an archive.
const SyntheticName = "content"

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]+:`)

// Address locates an archive on disk or an entry nested inside one or
// more archives.
type Address struct {
	// Outer is the filesystem path of the outermost file.
	Outer string

	// Entries is the chain of entry names, outermost first. Empty when
	// the address names Outer itself.
	Entries []string

	// Builtin is set for jrt: addresses.
	Builtin bool
}

// FromPath returns the address of a plain file.
func FromPath(filePath string) Address {
	return Address{Outer: filePath}
}

// Parse converts an external address string into an Address.
func Parse(raw string) (Address, error) {
	remaining := strings.TrimSpace(raw)
	if remaining == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrMalformedAddress)
	}

	if rest, ok := cutPrefixFold(remaining, "jrt:"); ok {
		return Address{Outer: rest, Builtin: true}, nil
	}
	if rest, ok := cutPrefixFold(remaining, "jar:"); ok {
		remaining = rest
	}
	if rest, ok := cutPrefixFold(remaining, "file:"); ok {
		unescaped, err := fileURLPath(rest)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q: %v", ErrMalformedAddress, raw, err)
		}
		remaining = unescaped
	} else if schemePattern.MatchString(remaining) {
		return Address{}, fmt.Errorf("%w: unsupported scheme in %q", ErrMalformedAddress, raw)
	}

	var segments []string
	for {
		index := nextMarker(remaining)
		if index < 0 {
			break
		}
		if index+1 >= len(remaining) || remaining[index+1] != '/' {
			return Address{}, fmt.Errorf("%w: unterminated container marker in %q", ErrMalformedAddress, raw)
		}
		segments = append(segments, remaining[:index])
		remaining = remaining[index+2:]
	}
	// A trailing "!/" leaves nothing behind and addresses the last
	// container itself.
	if remaining != "" || len(segments) == 0 {
		segments = append(segments, remaining)
	}

	address := Address{Outer: segments[0]}
	if address.Outer == "" {
		return Address{}, fmt.Errorf("%w: missing outer path in %q", ErrMalformedAddress, raw)
	}
	for _, segment := range segments[1:] {
		entry := strings.TrimLeft(segment, "/")
		if entry == "" {
			return Address{}, fmt.Errorf("%w: empty nested entry in %q", ErrMalformedAddress, raw)
		}
		address.Entries = append(address.Entries, entry)
	}
	return address, nil
}

// nextMarker returns the index of the "!" of the earliest container
// marker in s, or -1. Markers match ASCII case-insensitively in place,
// so the index is always a byte offset into s.
func nextMarker(s string) int {
	for i := 0; i < len(s); i++ {
		for _, marker := range containerMarkers {
			if hasASCIIFoldPrefix(s[i:], marker) {
				return i + len(marker) - 1
			}
		}
	}
	return -1
}

// hasASCIIFoldPrefix reports whether s starts with prefix, folding
// ASCII letters only. prefix must be lower case.
func hasASCIIFoldPrefix(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != prefix[i] {
			return false
		}
	}
	return true
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// fileURLPath strips an optional authority from the part of a file:
// URL after the scheme and percent-decodes it.
func fileURLPath(rest string) (string, error) {
	if authority, ok := strings.CutPrefix(rest, "//"); ok {
		host, pathPart, found := strings.Cut(authority, "/")
		if !found {
			return "", errors.New("file URL without path")
		}
		if host != "" && !strings.EqualFold(host, "localhost") {
			return "", fmt.Errorf("remote file host %q", host)
		}
		rest = "/" + pathPart
	}
	return url.PathUnescape(rest)
}

// Nested returns the address of entry inside the archive a names.
func (a Address) Nested(entry string) Address {
	entries := make([]string, 0, len(a.Entries)+1)
	entries = append(entries, a.Entries...)
	entries = append(entries, strings.TrimLeft(entry, "/"))
	return Address{Outer: a.Outer, Entries: entries, Builtin: a.Builtin}
}

// IsNested reports whether the address names an entry inside another
// archive.
func (a Address) IsNested() bool { return len(a.Entries) > 0 }

// String returns the canonical external form. Two addresses naming the
// same object render identically.
func (a Address) String() string {
	if a.Builtin {
		return "jrt:" + a.Outer
	}
	var builder strings.Builder
	builder.WriteString(a.Outer)
	for _, entry := range a.Entries {
		builder.WriteString("!/")
		builder.WriteString(entry)
	}
	return builder.String()
}

// Name returns the file name of the addressed object: the base name of
// the innermost entry, or of Outer.
func (a Address) Name() string {
	if len(a.Entries) > 0 {
		return path.Base(strings.TrimRight(a.Entries[len(a.Entries)-1], "/"))
	}
	return strings.TrimSpace(filepath.Base(a.Outer))
}

// IsArchiveName reports whether name has an archive extension or is
// the synthetic in-memory archive name.
func IsArchiveName(name string) bool {
	lower := strings.ToLower(name)
	if lower == SyntheticName {
		return true
	}
	for _, extension := range Extensions {
		if strings.HasSuffix(lower, "."+extension) {
			return true
		}
	}
	return false
}
