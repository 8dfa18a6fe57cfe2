// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ZipEntry is one file in a fixture archive. A Name ending in "/"
// produces a directory entry. Stored entries skip compression.
type ZipEntry struct {
	Name   string
	Body   []byte
	Stored bool
}

// Zip returns the bytes of an archive holding entries, in order.
// Modification times are zeroed so the output is deterministic.
func Zip(t testing.TB, entries ...ZipEntry) []byte {
	t.Helper()

	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for _, entry := range entries {
		header := &zip.FileHeader{Name: entry.Name, Method: zip.Deflate}
		if entry.Stored || strings.HasSuffix(entry.Name, "/") {
			header.Method = zip.Store
		}
		file, err := writer.CreateHeader(header)
		if err != nil {
			t.Fatalf("adding %s to fixture archive: %v", entry.Name, err)
		}
		if _, err := file.Write(entry.Body); err != nil {
			t.Fatalf("writing %s to fixture archive: %v", entry.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing fixture archive: %v", err)
	}
	return buffer.Bytes()
}

// WriteZip writes Zip(entries) to path, creating parent directories,
// and returns path.
func WriteZip(t testing.TB, path string, entries ...ZipEntry) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, Zip(t, entries...), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// Manifest renders a META-INF/MANIFEST.MF body from alternating
// name/value pairs. A pair whose name is "Name" starts a new section.
func Manifest(pairs ...string) []byte {
	var builder strings.Builder
	builder.WriteString("Manifest-Version: 1.0\r\n")
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i] == "Name" {
			builder.WriteString("\r\n")
		}
		builder.WriteString(pairs[i] + ": " + pairs[i+1] + "\r\n")
	}
	builder.WriteString("\r\n")
	return []byte(builder.String())
}
