// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nested

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runtime-insights/insights-agent/lib/archive"
	"github.com/runtime-insights/insights-agent/lib/fingerprint"
)

var (
	// ErrPathEscape is returned for an entry whose name resolves
	// outside the extraction root.
	ErrPathEscape = errors.New("archive entry escapes extraction root")

	// ErrExtractionLimit is returned when a container exceeds the
	// entry count, total size, or depth cap.
	ErrExtractionLimit = errors.New("archive extraction limit exceeded")
)

// Defaults for zero Config fields.
const (
	DefaultMaxEntries   = 65536
	DefaultMaxTotalSize = 1 << 30
	DefaultMaxDepth     = 16
)

// Config bounds a single Expand call.
type Config struct {
	// MaxEntries caps the entries extracted across the whole call.
	MaxEntries int

	// MaxTotalSize caps the bytes written across the whole call.
	MaxTotalSize int64

	// MaxDepth caps container nesting below the root.
	MaxDepth int
}

// Walker expands containers. It holds no per-call state and is safe
// for concurrent use as long as callers pass distinct scratch
// directories or rely on the per-call "unarchive" subdirectories.
type Walker struct {
	resolver      *archive.Resolver
	fingerprinter *fingerprint.Fingerprinter
	config        Config
	logger        *slog.Logger
}

// New returns a Walker. resolver opens the root container and the
// extracted files, so it must reach the scratch directory; the
// fingerprinter must read through the same filesystem.
func New(resolver *archive.Resolver, fingerprinter *fingerprint.Fingerprinter, config Config, logger *slog.Logger) *Walker {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.MaxTotalSize <= 0 {
		config.MaxTotalSize = DefaultMaxTotalSize
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDepth
	}
	return &Walker{resolver: resolver, fingerprinter: fingerprinter, config: config, logger: logger}
}

// pending is one container waiting on the worklist.
type pending struct {
	address     archive.Address
	logicalPath string
	depth       int
}

// budget tracks the caps shared by every container in one call.
type budget struct {
	entries int
	bytes   int64
}

// Expand fingerprints every archive nested in root, at any depth.
// parentName prefixes the logical path attribute of each result, so a
// parentName of "app.war" yields paths like
// "app.war/WEB-INF/lib/pdfbox-2.0.27.jar". Scratch directories are
// created under scratchDir and removed before returning.
//
// The returned error aggregates per-entry and per-container failures;
// identities found despite them are still returned.
func (w *Walker) Expand(root archive.Address, parentName, scratchDir string) ([]fingerprint.Identity, error) {
	var (
		identities []fingerprint.Identity
		failures   []error
		scratch    []string
		remaining  = budget{entries: w.config.MaxEntries, bytes: w.config.MaxTotalSize}
	)
	defer func() {
		for _, directory := range scratch {
			if err := os.RemoveAll(directory); err != nil {
				w.logger.Debug("removing scratch directory", "directory", directory, "error", err)
			}
		}
	}()

	worklist := []pending{{address: root, logicalPath: parentName}}
	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]

		if current.depth > w.config.MaxDepth {
			failures = append(failures, fmt.Errorf("%s: nesting deeper than %d: %w", current.logicalPath, w.config.MaxDepth, ErrExtractionLimit))
			continue
		}

		extracted, directory, err := w.unpack(current, scratchDir, &remaining, &scratch)
		if err != nil {
			failures = append(failures, err)
		}
		for _, relative := range extracted {
			name := path.Base(relative)
			if !archive.IsArchiveName(name) {
				continue
			}
			filePath := filepath.Join(directory, filepath.FromSlash(relative))
			if !isZipFile(filePath) {
				continue
			}

			logicalPath := current.logicalPath + "/" + relative
			address := archive.FromPath(filePath)
			identity := w.fingerprinter.Fingerprint(name, address)
			if identity.IsUnopened() {
				w.logger.Debug("nested archive unreadable", "path", logicalPath)
			} else {
				identity = identity.WithAttribute(fingerprint.PathAttribute, logicalPath)
				w.logger.Debug("adding nested archive", "path", logicalPath, "version", identity.Version())
				identities = append(identities, identity)
			}
			worklist = append(worklist, pending{address: address, logicalPath: logicalPath, depth: current.depth + 1})
		}
	}
	return identities, errors.Join(failures...)
}

// unpack extracts one container when it holds nested archives and
// returns the slash-separated relative paths of the regular files
// written, sorted, plus the directory they were written under.
func (w *Walker) unpack(current pending, scratchDir string, remaining *budget, scratch *[]string) ([]string, string, error) {
	container, closer, err := w.resolver.OpenArchive(current.address)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", current.logicalPath, err)
	}
	defer closer.Close()

	if !ContainsArchives(container) {
		return nil, "", nil
	}

	directory, err := os.MkdirTemp(scratchDir, "unarchive")
	if err != nil {
		return nil, "", fmt.Errorf("%s: creating scratch directory: %w", current.logicalPath, err)
	}
	*scratch = append(*scratch, directory)

	extracted, err := extract(container, directory, remaining)
	sort.Strings(extracted)
	if err != nil {
		err = fmt.Errorf("%s: %w", current.logicalPath, err)
	}
	return extracted, directory, err
}

// extract writes every entry of container under root. Entries that
// fail are skipped and reported; exceeding the budget stops the
// extraction of this container.
func extract(container *zip.Reader, root string, remaining *budget) ([]string, error) {
	var written []string
	var failures []error
	for _, entry := range container.File {
		if remaining.entries <= 0 {
			failures = append(failures, fmt.Errorf("entry limit reached at %q: %w", entry.Name, ErrExtractionLimit))
			break
		}
		remaining.entries--

		target, err := SecureJoin(root, entry.Name)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				failures = append(failures, fmt.Errorf("creating %q: %w", entry.Name, err))
			}
			continue
		}
		if !entry.Mode().IsRegular() {
			continue
		}

		size, err := extractFile(entry, target, remaining.bytes)
		remaining.bytes -= size
		if err != nil {
			failures = append(failures, fmt.Errorf("extracting %q: %w", entry.Name, err))
			if errors.Is(err, ErrExtractionLimit) {
				break
			}
			continue
		}
		relative, err := filepath.Rel(root, target)
		if err != nil {
			failures = append(failures, fmt.Errorf("extracting %q: %w", entry.Name, err))
			continue
		}
		written = append(written, filepath.ToSlash(relative))
	}
	return written, errors.Join(failures...)
}

func extractFile(entry *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return 0, err
	}
	source, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer source.Close()

	// O_EXCL: a duplicate entry name never overwrites an earlier one.
	destination, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}
	written, copyErr := io.Copy(destination, io.LimitReader(source, limit+1))
	closeErr := destination.Close()
	if written > limit {
		return written, fmt.Errorf("total size above limit: %w", ErrExtractionLimit)
	}
	if copyErr != nil {
		return written, copyErr
	}
	return written, closeErr
}

// SecureJoin resolves an archive entry name against root and fails with
// ErrPathEscape if the result lies outside root. Leading slashes are
// dropped, so "/a/b" resolves to root/a/b.
func SecureJoin(root, name string) (string, error) {
	relative := strings.TrimLeft(name, "/")
	target := filepath.Join(root, filepath.FromSlash(relative))
	within, err := filepath.Rel(root, target)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q resolves to %s: %w", name, target, ErrPathEscape)
	}
	return target, nil
}

var (
	localHeaderMagic  = []byte("PK\x03\x04")
	emptyArchiveMagic = []byte("PK\x05\x06")
)

func hasZipMagic(header []byte) bool {
	return len(header) == 4 && (string(header) == string(localHeaderMagic) || string(header) == string(emptyArchiveMagic))
}

// ContainsArchives reports whether any regular entry of container is
// itself a zip, judged by its first four bytes.
func ContainsArchives(container *zip.Reader) bool {
	header := make([]byte, 4)
	for _, entry := range container.File {
		if entry.FileInfo().IsDir() || entry.UncompressedSize64 < uint64(len(header)) {
			continue
		}
		stream, err := entry.Open()
		if err != nil {
			continue
		}
		_, err = io.ReadFull(stream, header)
		stream.Close()
		if err == nil && hasZipMagic(header) {
			return true
		}
	}
	return false
}

func isZipFile(filePath string) bool {
	file, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer file.Close()
	header := make([]byte, 4)
	if _, err := io.ReadFull(file, header); err != nil {
		return false
	}
	return hasZipMagic(header)
}
