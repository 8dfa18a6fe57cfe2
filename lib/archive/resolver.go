// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

var (
	// ErrEntryNotFound is returned when an address names an entry its
	// container does not hold.
	ErrEntryNotFound = errors.New("archive entry not found")

	// ErrEntryTooLarge is returned when an intermediate container
	// exceeds the in-memory cap.
	ErrEntryTooLarge = errors.New("nested archive entry too large")

	// ErrBuiltin is returned when asked to open a jrt: address.
	ErrBuiltin = errors.New("built-in module addresses cannot be opened")
)

// DefaultMaxNestedSize caps the bytes buffered for one intermediate
// container.
const DefaultMaxNestedSize = 256 << 20

// OSFS opens absolute or working-directory-relative paths on the host
// filesystem. Unlike os.DirFS it accepts any path os.Open accepts.
type OSFS struct{}

// Open implements fs.FS.
func (OSFS) Open(name string) (fs.File, error) { return os.Open(name) }

// Resolver opens addresses against a filesystem.
type Resolver struct {
	fsys          fs.FS
	maxNestedSize int64
}

// NewResolver returns a Resolver reading from fsys. maxNestedSize <= 0
// selects DefaultMaxNestedSize.
func NewResolver(fsys fs.FS, maxNestedSize int64) *Resolver {
	if maxNestedSize <= 0 {
		maxNestedSize = DefaultMaxNestedSize
	}
	return &Resolver{fsys: fsys, maxNestedSize: maxNestedSize}
}

// Open returns a stream of the addressed object: the outer file itself
// when the address has no entries, otherwise the innermost entry.
// Directory entries yield an empty stream.
func (r *Resolver) Open(address Address) (io.ReadCloser, error) {
	if address.Builtin {
		return nil, fmt.Errorf("opening %s: %w", address, ErrBuiltin)
	}
	file, err := r.fsys.Open(address.Outer)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", address.Outer, err)
	}
	if len(address.Entries) == 0 {
		return file, nil
	}

	container, err := r.descend(file, address.Outer, address.Entries[:len(address.Entries)-1])
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening %s: %w", address, err)
	}
	target := address.Entries[len(address.Entries)-1]
	entry := findEntry(container, target)
	if entry == nil {
		file.Close()
		return nil, fmt.Errorf("opening %s: %q: %w", address, target, ErrEntryNotFound)
	}
	stream, err := entry.Open()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening %s: %w", address, err)
	}
	return &entryStream{ReadCloser: stream, outer: file}, nil
}

// OpenArchive returns the addressed object as a zip container. The
// returned Closer releases the outer file and must be called.
func (r *Resolver) OpenArchive(address Address) (*zip.Reader, io.Closer, error) {
	if address.Builtin {
		return nil, nil, fmt.Errorf("opening %s: %w", address, ErrBuiltin)
	}
	file, err := r.fsys.Open(address.Outer)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", address.Outer, err)
	}
	reader, err := r.descend(file, address.Outer, address.Entries)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("opening %s as archive: %w", address, err)
	}
	return reader, file, nil
}

// descend opens file as a zip and walks into each named entry,
// returning the innermost container.
func (r *Resolver) descend(file fs.File, name string, entries []string) (*zip.Reader, error) {
	container, err := r.openZip(file, name)
	if err != nil {
		return nil, err
	}
	for _, entryName := range entries {
		entry := findEntry(container, entryName)
		if entry == nil {
			return nil, fmt.Errorf("%q: %w", entryName, ErrEntryNotFound)
		}
		if entry.UncompressedSize64 > uint64(r.maxNestedSize) {
			return nil, fmt.Errorf("%q is %d bytes: %w", entryName, entry.UncompressedSize64, ErrEntryTooLarge)
		}
		content, err := readEntry(entry, r.maxNestedSize)
		if err != nil {
			return nil, err
		}
		container, err = newZipReader(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			return nil, fmt.Errorf("reading %q as archive: %w", entryName, err)
		}
	}
	return container, nil
}

func (r *Resolver) openZip(file fs.File, name string) (*zip.Reader, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if readerAt, ok := file.(io.ReaderAt); ok {
		reader, err := newZipReader(readerAt, info.Size())
		if err != nil {
			return nil, fmt.Errorf("reading %s as archive: %w", name, err)
		}
		return reader, nil
	}
	if info.Size() > r.maxNestedSize {
		return nil, fmt.Errorf("%s is %d bytes: %w", name, info.Size(), ErrEntryTooLarge)
	}
	content, err := io.ReadAll(io.LimitReader(file, r.maxNestedSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	reader, err := newZipReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("reading %s as archive: %w", name, err)
	}
	return reader, nil
}

// newZipReader tolerates zip.ErrInsecurePath. Entry names are only
// trusted by callers that check them, see nested.SecureJoin.
func newZipReader(r io.ReaderAt, size int64) (*zip.Reader, error) {
	reader, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, err
	}
	return reader, nil
}

func readEntry(entry *zip.File, limit int64) ([]byte, error) {
	stream, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", entry.Name, err)
	}
	defer stream.Close()
	// Read one byte past the limit so an understated header is caught.
	content, err := io.ReadAll(io.LimitReader(stream, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", entry.Name, err)
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%q: %w", entry.Name, ErrEntryTooLarge)
	}
	return content, nil
}

// findEntry matches name against the container's entries. A trailing
// slash on either side is ignored so "META-INF" finds "META-INF/".
func findEntry(container *zip.Reader, name string) *zip.File {
	want := strings.TrimSuffix(name, "/")
	for _, entry := range container.File {
		if entry.Name == name || strings.TrimSuffix(entry.Name, "/") == want {
			return entry
		}
	}
	return nil
}

type entryStream struct {
	io.ReadCloser
	outer io.Closer
}

func (s *entryStream) Close() error {
	return errors.Join(s.ReadCloser.Close(), s.outer.Close())
}
