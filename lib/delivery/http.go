// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/backoff"
	"github.com/runtime-insights/insights-agent/lib/netutil"
	"github.com/runtime-insights/insights-agent/lib/version"
)

// ReportMediaType is the content type of the gzip-compressed report
// part, and the value of the "type" form field.
const ReportMediaType = "application/vnd.redhat.runtimes-java-general.analytics+tgz"

// Decoration keys added by the HTTP transport.
const (
	DecorationHTTPType = "app.transport.type.https"
	DecorationHTTPCert = "app.transport.cert.https"
)

// DefaultHTTPTimeout bounds one upload request.
const DefaultHTTPTimeout = 30 * time.Second

// TLSSource supplies the client TLS configuration for mutual TLS. It
// is consulted on every request.
type TLSSource interface {
	TLSConfig() (*tls.Config, error)
}

// HTTPConfig configures an HTTPTransport. A non-empty Token selects
// token authentication; otherwise the TLSSource must produce a client
// certificate.
type HTTPConfig struct {
	BaseURL   string
	UploadURI string
	Token     string
	CertFile  string
	ProxyHost string
	ProxyPort int
	Timeout   time.Duration
}

// HTTPTransport uploads reports as a multipart form to the collection
// service.
type HTTPTransport struct {
	config HTTPConfig
	tls    TLSSource
	logger *slog.Logger
}

// NewHTTP returns an HTTPTransport. tlsSource may be nil in token mode.
func NewHTTP(config HTTPConfig, tlsSource TLSSource, logger *slog.Logger) *HTTPTransport {
	if config.Timeout <= 0 {
		config.Timeout = DefaultHTTPTimeout
	}
	return &HTTPTransport{config: config, tls: tlsSource, logger: logger}
}

// Name returns "https".
func (h *HTTPTransport) Name() string { return "https" }

// Ready reports whether credentials are available: a token, or a TLS
// configuration that loads.
func (h *HTTPTransport) Ready(context.Context) bool {
	if h.config.Token != "" {
		return true
	}
	if h.tls == nil {
		return false
	}
	if _, err := h.tls.TLSConfig(); err != nil {
		h.logger.Debug("mutual TLS material unavailable", "error", err)
		return false
	}
	return true
}

// Send uploads payload as name+".gz". Server-side and network failures
// are returned for retry; client-side rejections are permanent.
func (h *HTTPTransport) Send(ctx context.Context, name string, payload Payload) error {
	if h.config.Token != "" {
		payload.Decorate(DecorationHTTPType, "token")
	} else {
		payload.Decorate(DecorationHTTPType, "mtls")
	}
	if h.config.CertFile != "" {
		payload.Decorate(DecorationHTTPCert, h.config.CertFile)
	}

	document, err := payload.Serialize()
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.SerializingToJSON, "serializing report", err))
	}
	compressed, err := gzipBytes(document)
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.GzipFile, "compressing report", err))
	}
	body, contentType, err := multipartBody(name+".gz", compressed)
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.HTTPSend, "building upload form", err))
	}

	client, err := h.client()
	if err != nil {
		return err
	}
	target, err := netutil.JoinURL(h.config.BaseURL, h.config.UploadURI)
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.HTTPSend, "assembling upload URL", err))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(agenterr.Wrap(agenterr.HTTPSend, "creating upload request", err))
	}
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("User-Agent", version.UserAgent())
	if h.config.Token != "" {
		request.Header.Set("Authorization", "Basic "+h.config.Token)
	}

	response, err := client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return agenterr.Wrap(agenterr.HTTPSend, "sending report", err)
	}
	defer response.Body.Close()

	switch outcome := Classify(response.StatusCode, errorBodyFor(response)).(type) {
	case Accepted:
		h.logger.Debug("report uploaded", "report", name, "status", outcome.Status, "bytes", len(compressed))
		return nil
	case Rejected:
		return backoff.Permanent(outcome.Err)
	case Retryable:
		return outcome.Err
	default:
		return fmt.Errorf("unhandled upload outcome %T", outcome)
	}
}

// client builds a client for one request so rotated certificates and
// proxy settings take effect without a restart.
func (h *HTTPTransport) client() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if h.config.Token == "" {
		if h.tls == nil {
			return nil, backoff.Permanent(agenterr.New(agenterr.TLSCertsProblem, "no TLS source for mutual TLS upload"))
		}
		config, err := h.tls.TLSConfig()
		if err != nil {
			return nil, backoff.Permanent(agenterr.Wrap(agenterr.TLSCreatingContext, "building TLS context", err))
		}
		transport.TLSClientConfig = config
	}
	proxy, err := netutil.ProxyURL(h.config.ProxyHost, h.config.ProxyPort)
	if err != nil {
		return nil, backoff.Permanent(agenterr.Wrap(agenterr.HTTPSend, "configuring proxy", err))
	}
	if proxy != nil {
		transport.Proxy = func(*http.Request) (*url.URL, error) { return proxy, nil }
	}
	return &http.Client{Transport: transport, Timeout: h.config.Timeout}, nil
}

func errorBodyFor(response *http.Response) string {
	if response.StatusCode < 300 {
		return ""
	}
	return netutil.ErrorBody(response.Body)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// multipartBody builds the upload form: a "file" part holding the
// compressed report and a "type" field naming its media type.
func multipartBody(filename string, content []byte) ([]byte, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	if err := writer.SetBoundary(uuid.NewString()); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", ReportMediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("type", ReportMediaType); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buffer.Bytes(), writer.FormDataContentType(), nil
}
