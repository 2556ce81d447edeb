// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package metrics exposes the controller manager's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "controller_manager"

// Metrics holds every collector the controller manager updates.
type Metrics struct {
	NegotiationsTotal   *prometheus.CounterVec
	NegotiationDuration prometheus.Histogram
	ModeEstablished     prometheus.Gauge
	BypassActive        prometheus.Gauge

	TicksTotal        *prometheus.CounterVec
	CommandsPublished *prometheus.CounterVec
	PublishErrors     prometheus.Counter

	StateSamples    prometheus.Counter
	MessagesDropped *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NegotiationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "negotiation",
				Name:      "requests_total",
				Help:      "Control mode negotiation requests by result",
			},
			[]string{"result"},
		),
		NegotiationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "negotiation",
				Name:      "duration_seconds",
				Help:      "Time spent handling one negotiation request, platform round trips included",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ModeEstablished: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "negotiation",
				Name:      "established",
				Help:      "1 while a control mode is established",
			},
		),
		BypassActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "negotiation",
				Name:      "bypass_active",
				Help:      "1 while references are forwarded without running the control law",
			},
		),
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "ticks_total",
				Help:      "Control loop ticks by outcome",
			},
			[]string{"outcome"},
		),
		CommandsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatcher",
				Name:      "commands_published_total",
				Help:      "Actuator commands published by kind",
			},
			[]string{"kind"},
		),
		PublishErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatcher",
				Name:      "publish_errors_total",
				Help:      "Actuator command publish failures",
			},
		),
		StateSamples: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "state",
				Name:      "samples_total",
				Help:      "Joined pose/twist state samples",
			},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "messages_dropped_total",
				Help:      "Inbound messages dropped before reaching the controller, by reason",
			},
			[]string{"reason"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.NegotiationsTotal,
			m.NegotiationDuration,
			m.ModeEstablished,
			m.BypassActive,
			m.TicksTotal,
			m.CommandsPublished,
			m.PublishErrors,
			m.StateSamples,
			m.MessagesDropped,
		)
	}
	return m
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetNegotiationState updates the established and bypass gauges.
func (m *Metrics) SetNegotiationState(established, bypass bool) {
	m.ModeEstablished.Set(boolGauge(established))
	m.BypassActive.Set(boolGauge(bypass))
}
