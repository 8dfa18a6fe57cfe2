// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/backoff"
	"github.com/runtime-insights/insights-agent/lib/testutil"
)

// upload is what the test server saw for one request.
type upload struct {
	path          string
	authorization string
	filename      string
	partType      string
	typeField     string
	document      map[string]any
}

func newUploadServer(t *testing.T, status int) (*httptest.Server, func() []upload) {
	t.Helper()
	var mu sync.Mutex
	var uploads []upload
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen := upload{path: r.URL.Path, authorization: r.Header.Get("Authorization")}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		seen.typeField = r.FormValue("type")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("reading file part: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		seen.filename = header.Filename
		seen.partType = header.Header.Get("Content-Type")
		reader, err := gzip.NewReader(file)
		if err != nil {
			t.Errorf("file part is not gzip: %v", err)
			return
		}
		if err := json.NewDecoder(reader).Decode(&seen.document); err != nil {
			t.Errorf("decoding report: %v", err)
		}

		mu.Lock()
		uploads = append(uploads, seen)
		mu.Unlock()
		w.WriteHeader(status)
		io.WriteString(w, `{"detail":"from server"}`)
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

func TestHTTPUploadWithToken(t *testing.T) {
	server, uploads := newUploadServer(t, http.StatusAccepted)
	transport := NewHTTP(HTTPConfig{
		BaseURL:   server.URL,
		UploadURI: "api/ingress/v1/upload",
		Token:     "dXNlcjpwYXNz",
	}, nil, discardLogger())

	if !transport.Ready(context.Background()) {
		t.Fatal("token transport is not ready")
	}
	if err := transport.Send(context.Background(), "abc_connect", newTestPayload()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := uploads()
	if len(got) != 1 {
		t.Fatalf("server saw %d uploads, want 1", len(got))
	}
	seen := got[0]
	if seen.path != "/api/ingress/v1/upload" {
		t.Errorf("path = %q", seen.path)
	}
	if seen.authorization != "Basic dXNlcjpwYXNz" {
		t.Errorf("Authorization = %q", seen.authorization)
	}
	if seen.filename != "abc_connect.gz" {
		t.Errorf("filename = %q, want abc_connect.gz", seen.filename)
	}
	if seen.partType != ReportMediaType || seen.typeField != ReportMediaType {
		t.Errorf("part type %q, type field %q; want %q", seen.partType, seen.typeField, ReportMediaType)
	}
	decorations, _ := seen.document["decorations"].(map[string]any)
	if decorations[DecorationHTTPType] != "token" {
		t.Errorf("decorations = %v, want %s=token", decorations, DecorationHTTPType)
	}
}

func TestHTTPStatusHandling(t *testing.T) {
	tests := []struct {
		status    int
		code      agenterr.Code
		permanent bool
	}{
		{http.StatusUnauthorized, agenterr.HTTPSendAuthError, true},
		{http.StatusRequestEntityTooLarge, agenterr.HTTPSendPayload, true},
		{http.StatusUnsupportedMediaType, agenterr.HTTPSendInvalidContentType, true},
		{http.StatusInternalServerError, agenterr.HTTPSendServerError, false},
	}
	for _, test := range tests {
		t.Run(http.StatusText(test.status), func(t *testing.T) {
			server, _ := newUploadServer(t, test.status)
			transport := NewHTTP(HTTPConfig{BaseURL: server.URL, UploadURI: "/upload", Token: "t"}, nil, discardLogger())

			err := transport.Send(context.Background(), "abc_update", newTestPayload())
			if !agenterr.Is(err, test.code) {
				t.Fatalf("Send error = %v, want code %v", err, test.code)
			}
			if backoff.IsPermanent(err) != test.permanent {
				t.Errorf("IsPermanent = %v, want %v", backoff.IsPermanent(err), test.permanent)
			}
		})
	}
}

func TestHTTPNetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	transport := NewHTTP(HTTPConfig{BaseURL: url, UploadURI: "upload", Token: "t"}, nil, discardLogger())
	err := transport.Send(context.Background(), "abc_connect", newTestPayload())
	if !agenterr.Is(err, agenterr.HTTPSend) {
		t.Fatalf("Send error = %v, want HTTPSend", err)
	}
	if backoff.IsPermanent(err) {
		t.Error("network failure marked permanent")
	}
}

type staticTLS struct {
	config *tls.Config
	err    error
}

func (s staticTLS) TLSConfig() (*tls.Config, error) { return s.config, s.err }

func TestHTTPMutualTLSReadiness(t *testing.T) {
	broken := NewHTTP(HTTPConfig{BaseURL: "https://example.invalid"}, staticTLS{err: errors.New("no cert")}, discardLogger())
	if broken.Ready(context.Background()) {
		t.Error("Ready() = true with unloadable certificate")
	}
	missing := NewHTTP(HTTPConfig{BaseURL: "https://example.invalid"}, nil, discardLogger())
	if missing.Ready(context.Background()) {
		t.Error("Ready() = true with neither token nor TLS source")
	}
}

func TestHTTPMutualTLSUpload(t *testing.T) {
	seen := make(chan map[string]any, 1)
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("mTLS upload sent Authorization %q", r.Header.Get("Authorization"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("reading file part: %v", err)
			return
		}
		defer file.Close()
		reader, err := gzip.NewReader(file)
		if err != nil {
			t.Errorf("file part is not gzip: %v", err)
			return
		}
		var document map[string]any
		if err := json.NewDecoder(reader).Decode(&document); err != nil {
			t.Errorf("decoding report: %v", err)
		}
		decorations, _ := document["decorations"].(map[string]any)
		seen <- decorations
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	serverTLS := server.Client().Transport.(*http.Transport).TLSClientConfig
	transport := NewHTTP(HTTPConfig{
		BaseURL:   server.URL,
		UploadURI: "upload",
		CertFile:  "/etc/agent/cert.pem",
	}, staticTLS{config: serverTLS.Clone()}, discardLogger())

	if !transport.Ready(context.Background()) {
		t.Fatal("mTLS transport is not ready")
	}
	if err := transport.Send(context.Background(), "abc_connect", newTestPayload()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	decorations := testutil.RequireReceive(t, seen, 5*time.Second, "waiting for upload")
	if decorations[DecorationHTTPType] != "mtls" {
		t.Errorf("%s = %v, want mtls", DecorationHTTPType, decorations[DecorationHTTPType])
	}
	if decorations[DecorationHTTPCert] != "/etc/agent/cert.pem" {
		t.Errorf("%s = %v", DecorationHTTPCert, decorations[DecorationHTTPCert])
	}
}
