// Copyright (C) 2017-2020  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Package metrics is the Prometheus-backed connd.MetricsEmitter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements connd.MetricsEmitter with a small, fixed set of
// counters/gauges/histograms — the shape the connection lifecycle and
// per-message timing data of a wire-protocol server naturally produces.
type Prometheus struct {
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	connectionsActive prometheus.Gauge
	messagesReceived  prometheus.Counter
	messagesFailed    prometheus.Counter
	queueTime         prometheus.Histogram
	processingTime    prometheus.Histogram
}

// NewPrometheus constructs metrics registered under the given namespace
// (e.g. "connd") and subsystem (e.g. "conn"). Call Register to attach them
// to a prometheus.Registerer; NewPrometheus itself never registers.
func NewPrometheus(namespace, subsystem string) *Prometheus {
	return &Prometheus{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "connections_opened_total",
			Help: "Total number of connections accepted.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "connections_closed_total",
			Help: "Total number of connections torn down.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "connections_active",
			Help: "Number of connections currently draining a batch.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "messages_received_total",
			Help: "Total number of jobs enqueued.",
		}),
		messagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "messages_failed_total",
			Help: "Total number of jobs that returned an error.",
		}),
		queueTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "message_queue_seconds",
			Help:    "Time a job spent queued before it started running.",
			Buckets: prometheus.DefBuckets,
		}),
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "message_processing_seconds",
			Help:    "Time a job spent actually running.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register attaches every collector to r. Call once per Prometheus value.
func (m *Prometheus) Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.connectionsOpened, m.connectionsClosed, m.connectionsActive,
		m.messagesReceived, m.messagesFailed, m.queueTime, m.processingTime,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Prometheus) ConnectionOpened()    { m.connectionsOpened.Inc() }
func (m *Prometheus) ConnectionActivated() { m.connectionsActive.Inc() }
func (m *Prometheus) ConnectionWaiting()   { m.connectionsActive.Dec() }
func (m *Prometheus) ConnectionClosed()    { m.connectionsClosed.Inc() }
func (m *Prometheus) MessageReceived()     { m.messagesReceived.Inc() }
func (m *Prometheus) MessageProcessingFailed() { m.messagesFailed.Inc() }

func (m *Prometheus) MessageProcessingStarted(queueTime time.Duration) {
	m.queueTime.Observe(queueTime.Seconds())
}

func (m *Prometheus) MessageProcessingCompleted(processingTime time.Duration) {
	m.processingTime.Observe(processingTime.Seconds())
}
