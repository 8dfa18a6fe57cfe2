// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides the small HTTP helpers the upload transport
// needs: URL assembly matching the collection service's conventions,
// proxy address parsing, and bounded reads of error response bodies.
package netutil

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// MaxErrorBodySize bounds how much of an error response is kept for
// diagnostics. Collection service error bodies are short JSON
// documents; anything longer is truncated.
const MaxErrorBodySize int64 = 64 << 10

// ErrorBody reads an HTTP error response body for use in an error
// message. Read errors are ignored: a partial or empty body is still
// useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return strings.TrimSpace(string(data))
}

// JoinURL joins a base URL and an upload path with exactly one slash
// between them.
//
//	JoinURL("https://console.example.com", "api/ingress/v1/upload")
//	// https://console.example.com/api/ingress/v1/upload
func JoinURL(base, path string) (*url.URL, error) {
	var joined string
	switch {
	case path == "":
		joined = base
	case strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/"):
		joined = base + path[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(path, "/"):
		joined = base + "/" + path
	default:
		joined = base + path
	}
	parsed, err := url.Parse(joined)
	if err != nil {
		return nil, fmt.Errorf("parsing upload URL %q: %w", joined, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("upload URL %q needs a scheme and host", joined)
	}
	return parsed, nil
}

// ProxyURL returns an HTTP proxy URL for host and port, or nil when
// host is empty.
func ProxyURL(host string, port int) (*url.URL, error) {
	if host == "" {
		return nil, nil
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("proxy port %d out of range", port)
	}
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(port))}, nil
}
