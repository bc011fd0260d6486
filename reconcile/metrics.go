// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts reconciliation outcomes.
type Metrics struct {
	rooms   *prometheus.CounterVec
	actions *prometheus.CounterVec
}

// NewMetrics creates the reconciler metrics and registers them with
// registerer. A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		rooms: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inviter",
			Subsystem: "reconcile",
			Name:      "rooms_total",
			Help:      "Rooms reconciled, by terminal status.",
		}, []string{"status"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inviter",
			Subsystem: "reconcile",
			Name:      "actions_total",
			Help:      "Backend mutations attempted, by action and result (ok, failed, transient, skipped).",
		}, []string{"action", "result"}),
	}
}

func (m *Metrics) room(status Status) {
	m.rooms.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) action(action, result string) {
	m.actions.WithLabelValues(action, result).Inc()
}
