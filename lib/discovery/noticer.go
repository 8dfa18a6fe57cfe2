// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"log/slog"
	"strings"

	"github.com/runtime-insights/insights-agent/lib/archive"
	"github.com/runtime-insights/insights-agent/lib/fingerprint"
	"github.com/runtime-insights/insights-agent/lib/metrics"
)

// Identifier decides whether an archive is reportable and fingerprints
// it. *fingerprint.Fingerprinter implements it.
type Identifier interface {
	Identify(address archive.Address) (fingerprint.Identity, bool)
}

// Expander fingerprints the archives nested inside a container.
// *nested.Walker implements it.
type Expander interface {
	Expand(root archive.Address, parentName, scratchDir string) ([]fingerprint.Identity, error)
}

// Config controls container expansion.
type Config struct {
	// ExpandContainers fingerprints the archives nested in WAR and EAR
	// files as separate identities.
	ExpandContainers bool
	// ScratchDir is where containers are unpacked; empty means the
	// system temp directory.
	ScratchDir string
}

// Noticer is the discovery callback. Notice may be called from any
// number of goroutines.
type Noticer struct {
	identifier Identifier
	expander   Expander
	state      *DedupState
	queue      *Queue
	recorder   metrics.Recorder
	config     Config
	logger     *slog.Logger
}

// NewNoticer returns a Noticer. expander may be nil, which disables
// container expansion regardless of config.
func NewNoticer(identifier Identifier, expander Expander, state *DedupState, queue *Queue, recorder metrics.Recorder, config Config, logger *slog.Logger) *Noticer {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Noticer{
		identifier: identifier,
		expander:   expander,
		state:      state,
		queue:      queue,
		recorder:   recorder,
		config:     config,
		logger:     logger,
	}
}

// Notice handles one loaded-archive notification. It never fails;
// every problem is logged and the archive is skipped.
func (n *Noticer) Notice(raw string) {
	address, err := archive.Parse(raw)
	if err != nil {
		n.logger.Debug("ignoring unparseable archive address", "address", raw, "error", err)
		n.recorder.ArchiveNoticed(metrics.ArchiveSkipped)
		return
	}
	key := address.String()
	if n.state.HasAddress(key) {
		n.recorder.ArchiveNoticed(metrics.ArchiveDuplicate)
		return
	}

	identity, ok := n.identifier.Identify(address)
	if !ok {
		n.state.AddAddress(key)
		n.recorder.ArchiveNoticed(metrics.ArchiveSkipped)
		return
	}
	if identity.IsUnopened() {
		// Not recorded: the file may be readable on a later notice.
		n.logger.Debug("archive could not be opened", "address", key)
		n.recorder.ArchiveNoticed(metrics.ArchiveSkipped)
		return
	}
	if !n.state.AddAddress(key) {
		n.recorder.ArchiveNoticed(metrics.ArchiveDuplicate)
		return
	}

	n.offer(identity, key)
	if n.shouldExpand(address) {
		n.expand(address, identity.Name())
	}
	n.recorder.SetQueueDepth(n.queue.Len())
}

func (n *Noticer) offer(identity fingerprint.Identity, address string) {
	if hash := identity.ContentHash(); hash != "" && !n.state.AddContent(hash) {
		n.logger.Debug("archive content already reported", "address", address, "hash", hash)
		n.recorder.ArchiveNoticed(metrics.ArchiveDuplicate)
		return
	}
	if !n.queue.Offer(identity) {
		n.logger.Warn("update queue full, dropping archive", "address", address, "name", identity.Name())
		n.recorder.ArchiveNoticed(metrics.ArchiveDropped)
		return
	}
	n.logger.Debug("archive queued", "address", address, "name", identity.Name(), "version", identity.Version())
	n.recorder.ArchiveNoticed(metrics.ArchiveQueued)
}

func (n *Noticer) shouldExpand(address archive.Address) bool {
	if !n.config.ExpandContainers || n.expander == nil {
		return false
	}
	name := strings.ToLower(address.Name())
	return strings.HasSuffix(name, ".war") || strings.HasSuffix(name, ".ear")
}

func (n *Noticer) expand(address archive.Address, parentName string) {
	identities, err := n.expander.Expand(address, parentName, n.config.ScratchDir)
	if err != nil {
		n.logger.Warn("expanding container failed", "address", address.String(), "error", err, "recovered", len(identities))
	}
	for _, identity := range identities {
		path, _ := identity.Attribute(fingerprint.PathAttribute)
		n.offer(identity, path)
	}
}
