// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics describes passes as a whole. Per-room and per-action counts
// live in the reconcile package.
type Metrics struct {
	passes        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastCompleted prometheus.Gauge
	rooms         prometheus.Gauge
}

// NewMetrics creates the pass metrics and registers them with
// registerer. A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inviter",
			Subsystem: "pass",
			Name:      "total",
			Help:      "Reconciliation passes, by mode (dry, cautious, kick-only, full) and result (completed, aborted).",
		}, []string{"mode", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inviter",
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Wall time of completed passes. Pacing dominates, so buckets reach into hours.",
			Buckets:   prometheus.ExponentialBuckets(1, 3, 10),
		}, []string{"mode"}),
		lastCompleted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "inviter",
			Subsystem: "pass",
			Name:      "last_completed_timestamp_seconds",
			Help:      "Unix time the last pass completed.",
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "inviter",
			Subsystem: "directory",
			Name:      "rooms",
			Help:      "Rooms in the directory listing at the last pass.",
		}),
	}
}
