// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report builds the CONNECT and UPDATE documents the agent
// delivers, and computes the identity hash that ties every report from
// one process together.
//
// A CONNECT report carries the basic facts of the process plus a "jars"
// subreport. An UPDATE report carries only the identity hash and an
// "updated-jars" subreport with archives discovered since the last
// update. Both serialize to the same top-level JSON shape:
//
//	{"version":"1.0.0","idHash":"…","basic":{…},"jars":{"version":"1.0.0","jars":[…]}}
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/runtime-insights/insights-agent/lib/fingerprint"
)

// Version is the top-level report format version.
const Version = "1.0.0"

// SubreportVersion is the format version of the jars subreports.
const SubreportVersion = "1.0.0"

// Kind distinguishes the two report variants.
type Kind int

const (
	Connect Kind = iota
	Update
)

func (k Kind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SubreportKey is the top-level key the kind's archive list is
// serialized under.
func (k Kind) SubreportKey() string {
	if k == Update {
		return "updated-jars"
	}
	return "jars"
}

// Name returns the delivery name for a report of this kind, e.g.
// "<hash>_connect".
func (k Kind) Name(idHash string) string {
	return idHash + "_" + k.String()
}

// Subreport is a versioned list of archive identities.
type Subreport struct {
	Version string                 `json:"version"`
	Jars    []fingerprint.Identity `json:"jars"`
}

// Options configures report construction.
type Options struct {
	Logger *slog.Logger
	// Validator, when set, checks every serialization against the
	// report schema.
	Validator *Validator
}

// Report is one CONNECT or UPDATE document. It is safe for concurrent
// use; decorations may be added while another goroutine serializes.
type Report struct {
	kind      Kind
	options   Options
	subreport Subreport

	mu     sync.Mutex
	idHash string
	basic  map[string]any
}

// NewConnect returns a CONNECT report over basic facts and the archives
// known at startup. basic is copied.
func NewConnect(options Options, basic map[string]any, jars []fingerprint.Identity) *Report {
	return newReport(Connect, options, maps.Clone(basic), jars)
}

// NewUpdate returns an UPDATE report for idHash carrying newly
// discovered archives.
func NewUpdate(options Options, idHash string, jars []fingerprint.Identity) *Report {
	r := newReport(Update, options, nil, jars)
	r.idHash = idHash
	return r
}

func newReport(kind Kind, options Options, basic map[string]any, jars []fingerprint.Identity) *Report {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if basic == nil {
		basic = make(map[string]any)
	}
	if jars == nil {
		jars = []fingerprint.Identity{}
	}
	return &Report{
		kind:      kind,
		options:   options,
		subreport: Subreport{Version: SubreportVersion, Jars: jars},
		basic:     basic,
	}
}

// Kind returns the report variant.
func (r *Report) Kind() Kind { return r.kind }

// Jars returns the identities in the report's subreport.
func (r *Report) Jars() []fingerprint.Identity {
	return append([]fingerprint.Identity(nil), r.subreport.Jars...)
}

// IDHash returns the identity hash, or "" before it is set.
func (r *Report) IDHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idHash
}

// SetIDHash records the identity hash serialized as "idHash".
func (r *Report) SetIDHash(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idHash = hash
}

// Basic returns a copy of the basic facts, including decorations.
func (r *Report) Basic() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.basic)
}

// Decorate adds a transport fact to the basic section. UPDATE reports
// have no basic section and ignore decorations.
func (r *Report) Decorate(key, value string) {
	if r.kind == Update {
		r.options.Logger.Debug("ignoring decoration on update report", "key", key)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.basic[key] = value
}

type wireReport struct {
	Version     string         `json:"version"`
	IDHash      string         `json:"idHash,omitempty"`
	Basic       map[string]any `json:"basic,omitempty"`
	Jars        *Subreport     `json:"jars,omitempty"`
	UpdatedJars *Subreport     `json:"updated-jars,omitempty"`
}

// Serialize renders the report as JSON. Key order within objects is
// stable, so identical reports serialize to identical bytes.
func (r *Report) Serialize() ([]byte, error) {
	r.mu.Lock()
	wire := wireReport{Version: Version, IDHash: r.idHash, Basic: maps.Clone(r.basic)}
	r.mu.Unlock()
	return r.encode(wire)
}

// serializeWithoutHash renders the report with the idHash omitted; this
// is the input to the identity hash.
func (r *Report) serializeWithoutHash() ([]byte, error) {
	r.mu.Lock()
	wire := wireReport{Version: Version, Basic: maps.Clone(r.basic)}
	r.mu.Unlock()
	return r.encode(wire)
}

func (r *Report) encode(wire wireReport) ([]byte, error) {
	subreport := r.subreport
	if r.kind == Update {
		wire.UpdatedJars = &subreport
	} else {
		wire.Jars = &subreport
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(wire); err != nil {
		return nil, fmt.Errorf("encoding %s report: %w", r.kind, err)
	}
	document := bytes.TrimSuffix(buffer.Bytes(), []byte("\n"))

	if r.options.Validator != nil {
		if err := r.options.Validator.Validate(document); err != nil {
			return nil, fmt.Errorf("%s report: %w", r.kind, err)
		}
	}
	return document, nil
}
