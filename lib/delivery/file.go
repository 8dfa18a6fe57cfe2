// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/backoff"
	"github.com/runtime-insights/insights-agent/lib/codec"
)

// DecorationFileType is the decoration added by the file transport;
// its value is the file format.
const DecorationFileType = "transport.type.file"

// File formats.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// FileTransport writes each report into a local upload directory,
// created on demand. It is the last-resort fallback.
type FileTransport struct {
	dir    string
	format string
	logger *slog.Logger
}

// NewFile returns a FileTransport writing into dir in format (FormatJSON
// or FormatCBOR).
func NewFile(dir, format string, logger *slog.Logger) (*FileTransport, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatCBOR:
	default:
		return nil, fmt.Errorf("unknown upload file format %q", format)
	}
	return &FileTransport{dir: dir, format: format, logger: logger}, nil
}

// Name returns "file".
func (f *FileTransport) Name() string { return "file" }

// Ready is always true; directory problems surface from Send.
func (f *FileTransport) Ready(context.Context) bool { return true }

// Path returns the file a report named name is written to.
func (f *FileTransport) Path(name string) string {
	return filepath.Join(f.dir, name+"."+f.format)
}

// Send writes payload atomically to Path(name).
func (f *FileTransport) Send(_ context.Context, name string, payload Payload) error {
	payload.Decorate(DecorationFileType, f.format)

	document, err := payload.Serialize()
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.SerializingToJSON, "serializing report", err))
	}
	if f.format == FormatCBOR {
		document, err = codec.FromJSON(document)
		if err != nil {
			return backoff.Permanent(agenterr.Wrap(agenterr.SerializingToJSON, "converting report to CBOR", err))
		}
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return agenterr.Wrap(agenterr.UploadDirCreation, "creating upload directory", err)
	}
	path := f.Path(name)
	if err := writeAtomic(path, document); err != nil {
		return agenterr.Wrap(agenterr.WritingFile, "writing report file", err)
	}
	f.logger.Info("report written to file", "report", name, "path", path)
	return nil
}

// writeAtomic writes data to a temporary sibling, syncs it, and
// renames it over path, then syncs the directory so the rename itself
// is durable.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("opening directory for sync: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("syncing directory: %w", err)
	}
	return nil
}
