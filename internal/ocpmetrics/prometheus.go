// SPDX-License-Identifier: AGPL-3.0-or-later
// OCP - Orchestrator Control Protocol
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package ocpmetrics exposes Prometheus counters and gauges for a running
// ocp.Node, wired through ocp.Hooks so the node package stays free of any
// direct metrics dependency.
package ocpmetrics

import (
	"github.com/ocpctl/ocp/internal/ocp"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector this process registers.
type Metrics struct {
	RegistrySize          prometheus.Gauge
	InboundSubscriptions  prometheus.Gauge
	MonitorSubscriptions  prometheus.Gauge
	FramesDispatchedTotal *prometheus.CounterVec
	SignalFanoutTotal     prometheus.Counter
}

// New builds and registers the collector set.
func New() *Metrics {
	m := &Metrics{
		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocp_registry_size",
			Help: "Number of parameters currently held in the local ParameterRegistry",
		}),
		InboundSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocp_inbound_subscriptions",
			Help: "Number of signals this node is currently subscribed to receive",
		}),
		MonitorSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocp_monitor_subscriptions",
			Help: "Number of peers currently monitoring this node's capability tree",
		}),
		FramesDispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocp_frames_dispatched_total",
			Help: "Total number of control frames dispatched, by frame kind",
		}, []string{"kind"}),
		SignalFanoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ocp_signal_fanout_total",
			Help: "Total number of individual whisper sends performed while fanning out a SIG",
		}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.RegistrySize)
	prometheus.MustRegister(m.InboundSubscriptions)
	prometheus.MustRegister(m.MonitorSubscriptions)
	prometheus.MustRegister(m.FramesDispatchedTotal)
	prometheus.MustRegister(m.SignalFanoutTotal)
}

// Hooks builds an ocp.Hooks value that feeds this Metrics set, for passing
// to ocp.Node.SetHooks.
func (m *Metrics) Hooks() ocp.Hooks {
	return ocp.Hooks{
		OnFrameDispatched: func(kind ocp.FrameKind) {
			m.FramesDispatchedTotal.WithLabelValues(string(kind)).Inc()
		},
		OnSignalFanout: func(sent int) {
			m.SignalFanoutTotal.Add(float64(sent))
		},
	}
}

// Sample reads point-in-time gauges off a Node and publishes them. Call
// periodically (e.g. from the same gocron scheduler driving the redis
// substrate's presence refresh) since registry/subscription sizes are not
// naturally event-driven.
func (m *Metrics) Sample(n *ocp.Node) {
	m.RegistrySize.Set(float64(n.Registry().Len()))
	m.InboundSubscriptions.Set(float64(len(n.Subscriptions().KnownPeers())))
	m.MonitorSubscriptions.Set(float64(len(n.Subscriptions().Monitors())))
}
