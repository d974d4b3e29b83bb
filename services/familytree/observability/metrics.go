// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability defines the Prometheus metrics recorded by the
// sync coordinator and the store server.
//
// Metrics are registered against an injected prometheus.Registerer rather
// than the global registry, so each test can build its own set.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "familytree"

// SyncMetrics is recorded by the sync coordinator.
type SyncMetrics struct {
	// pushes counts completed pushes. Labels: result (ok, error).
	pushes *prometheus.CounterVec

	// pushDuration measures push latency. Labels: result.
	pushDuration *prometheus.HistogramVec

	// commits counts local commits. Labels: mode (online, offline, local_only).
	commits *prometheus.CounterVec

	// inbound counts inbound snapshots. Labels: outcome (replaced,
	// identical, empty, invalid).
	inbound *prometheus.CounterVec

	pending  prometheus.Gauge
	inflight prometheus.Gauge
	state    *prometheus.GaugeVec
}

// NewSyncMetrics registers the sync metrics with reg. A nil reg yields
// metrics that are recorded but never exported.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	f := promauto.With(reg)
	return &SyncMetrics{
		pushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pushes_total",
			Help:      "Completed tree pushes by result",
		}, []string{"result"}),
		pushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "push_duration_seconds",
			Help:      "Tree push latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "commits_total",
			Help:      "Local tree commits by connectivity mode",
		}, []string{"mode"}),
		inbound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "inbound_snapshots_total",
			Help:      "Inbound remote snapshots by outcome",
		}, []string{"outcome"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pending",
			Help:      "1 while local changes are waiting for a push",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pushes_inflight",
			Help:      "Pushes started and not yet completed",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "state",
			Help:      "1 for the coordinator's current state",
		}, []string{"state"}),
	}
}

// Commit counts a local commit.
func (m *SyncMetrics) Commit(mode string) {
	m.commits.WithLabelValues(mode).Inc()
}

// PushStarted marks a push in flight.
func (m *SyncMetrics) PushStarted() {
	m.inflight.Inc()
}

// PushDone records a finished push.
func (m *SyncMetrics) PushDone(err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.inflight.Dec()
	m.pushes.WithLabelValues(result).Inc()
	m.pushDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// Inbound counts an inbound snapshot.
func (m *SyncMetrics) Inbound(outcome string) {
	m.inbound.WithLabelValues(outcome).Inc()
}

// SetPending reports whether changes are waiting for a push.
func (m *SyncMetrics) SetPending(pending bool) {
	if pending {
		m.pending.Set(1)
	} else {
		m.pending.Set(0)
	}
}

// SetState sets the gauge for current to 1 and for every other known
// state to 0.
func (m *SyncMetrics) SetState(current string, all []string) {
	for _, s := range all {
		if s == current {
			m.state.WithLabelValues(s).Set(1)
		} else {
			m.state.WithLabelValues(s).Set(0)
		}
	}
}

// StoreMetrics is recorded by the store server.
type StoreMetrics struct {
	// ops counts store operations. Labels: op (read, write), kind (trees,
	// locale), result (ok, denied, error).
	ops *prometheus.CounterVec

	// auth counts auth requests. Labels: action, result.
	auth *prometheus.CounterVec

	subscribers prometheus.Gauge
	published   prometheus.Counter
}

// NewStoreMetrics registers the store metrics with reg.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	f := promauto.With(reg)
	return &StoreMetrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store reads and writes by path kind and result",
		}, []string{"op", "kind", "result"}),
		auth: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Auth requests by action and result code",
		}, []string{"action", "result"}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "subscribers",
			Help:      "Open snapshot subscriptions",
		}),
		published: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshots_published_total",
			Help:      "Snapshots delivered to subscribers",
		}),
	}
}

// Op counts a store operation.
func (m *StoreMetrics) Op(op, kind, result string) {
	m.ops.WithLabelValues(op, kind, result).Inc()
}

// Auth counts an auth request.
func (m *StoreMetrics) Auth(action, result string) {
	m.auth.WithLabelValues(action, result).Inc()
}

// SubscriberAdded and SubscriberRemoved track open subscriptions.
func (m *StoreMetrics) SubscriberAdded()   { m.subscribers.Inc() }
func (m *StoreMetrics) SubscriberRemoved() { m.subscribers.Dec() }

// Published counts delivered snapshots.
func (m *StoreMetrics) Published(n int) {
	m.published.Add(float64(n))
}
