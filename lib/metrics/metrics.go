// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the agent's delivery and discovery counters
// to Prometheus. Components depend on the [Recorder] interface; [Noop]
// is used when no metrics endpoint is configured.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Archive outcomes recorded by ArchiveNoticed.
const (
	ArchiveQueued    = "queued"
	ArchiveSkipped   = "skipped"
	ArchiveDuplicate = "duplicate"
	ArchiveDropped   = "dropped"
)

// Recorder receives agent events.
type Recorder interface {
	ReportDelivered(kind string)
	ReportFailed(kind string)
	TransportFailed(transport string)
	ArchiveNoticed(outcome string)
	SetQueueDepth(depth int)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ReportDelivered(string) {}
func (Noop) ReportFailed(string)    {}
func (Noop) TransportFailed(string) {}
func (Noop) ArchiveNoticed(string)  {}
func (Noop) SetQueueDepth(int)      {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	reportsDelivered  *prometheus.CounterVec
	reportsFailed     *prometheus.CounterVec
	transportFailures *prometheus.CounterVec
	archives          *prometheus.CounterVec
	queueDepth        prometheus.Gauge
}

// NewProm creates the collectors and registers them with registerer.
func NewProm(namespace string, registerer prometheus.Registerer) *Prom {
	p := &Prom{
		reportsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_delivered_total",
			Help:      "Reports delivered by kind",
		}, []string{"kind"}),
		reportsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_failed_total",
			Help:      "Reports that no transport accepted, by kind",
		}, []string{"kind"}),
		transportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_failures_total",
			Help:      "Failed delivery attempts by transport",
		}, []string{"transport"}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_noticed_total",
			Help:      "Archives seen by the discovery feed, by outcome",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_queue_depth",
			Help:      "Identities waiting for the next update report",
		}),
	}
	registerer.MustRegister(p.reportsDelivered, p.reportsFailed, p.transportFailures, p.archives, p.queueDepth)
	return p
}

func (p *Prom) ReportDelivered(kind string) {
	p.reportsDelivered.WithLabelValues(kind).Inc()
}

func (p *Prom) ReportFailed(kind string) {
	p.reportsFailed.WithLabelValues(kind).Inc()
}

func (p *Prom) TransportFailed(transport string) {
	p.transportFailures.WithLabelValues(transport).Inc()
}

func (p *Prom) ArchiveNoticed(outcome string) {
	p.archives.WithLabelValues(outcome).Inc()
}

func (p *Prom) SetQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

// Handler serves the collectors in gatherer at /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
