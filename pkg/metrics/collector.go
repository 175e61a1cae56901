/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package metrics exports per-connection QUIC transport statistics as
// Prometheus metrics: RTT, congestion window, bytes in flight, PTO
// count, and stream counts.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the set of point-in-time values a connection reports on
// each Collect. Source implementations (the connection driver) produce
// one of these per scrape.
type Snapshot struct {
	SmoothedRTTSeconds   float64
	MinRTTSeconds        float64
	CongestionWindow     float64
	BytesInFlight        float64
	PTOCount             float64
	StreamsOpenBidi      float64
	StreamsOpenUni       float64
	BytesSent            float64
	BytesReceived        float64
	PacketsLost          float64
}

// Source is implemented by a connection driver to supply its current
// Snapshot on demand.
type Source interface {
	MetricsSnapshot() Snapshot
}

type connEntry struct {
	source Source
	labels []string
}

type metricInfo struct {
	description *prometheus.Desc
	supplier    func(Snapshot, []string) prometheus.Metric
}

// ConnectionCollector is a prometheus.Collector exporting Snapshot
// fields for every currently-registered connection, in the same
// Add/Remove/Describe/Collect shape used to export per-socket statistics
// elsewhere in this codebase's lineage.
type ConnectionCollector struct {
	mu    sync.Mutex
	conns map[uint64]connEntry
	infos []metricInfo
}

// NewConnectionCollector builds a collector with one gauge per Snapshot
// field, labeled by connectionLabels (e.g. "remote_addr", "role") plus
// constLabels shared across the whole process.
func NewConnectionCollector(prefix string, connectionLabels []string, constLabels prometheus.Labels) *ConnectionCollector {
	c := &ConnectionCollector{conns: make(map[uint64]connEntry)}
	c.addMetrics(prefix, connectionLabels, constLabels)
	return c
}

func (c *ConnectionCollector) addMetrics(prefix string, labels []string, constLabels prometheus.Labels) {
	gauge := func(name, help string, get func(Snapshot) float64) {
		desc := prometheus.NewDesc(prefix+"_"+name, help, labels, constLabels)
		c.infos = append(c.infos, metricInfo{
			description: desc,
			supplier: func(s Snapshot, labelValues []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, get(s), labelValues...)
			},
		})
	}
	gauge("smoothed_rtt_seconds", "Smoothed round-trip time estimate.", func(s Snapshot) float64 { return s.SmoothedRTTSeconds })
	gauge("min_rtt_seconds", "Minimum observed round-trip time.", func(s Snapshot) float64 { return s.MinRTTSeconds })
	gauge("congestion_window_bytes", "Current congestion window.", func(s Snapshot) float64 { return s.CongestionWindow })
	gauge("bytes_in_flight", "Bytes sent but not yet acknowledged or declared lost.", func(s Snapshot) float64 { return s.BytesInFlight })
	gauge("pto_count", "Consecutive probe-timeout expirations since the last reset.", func(s Snapshot) float64 { return s.PTOCount })
	gauge("streams_open_bidi", "Currently open bidirectional streams.", func(s Snapshot) float64 { return s.StreamsOpenBidi })
	gauge("streams_open_uni", "Currently open unidirectional streams.", func(s Snapshot) float64 { return s.StreamsOpenUni })
	gauge("bytes_sent_total", "Bytes sent on this connection.", func(s Snapshot) float64 { return s.BytesSent })
	gauge("bytes_received_total", "Bytes received on this connection.", func(s Snapshot) float64 { return s.BytesReceived })
	gauge("packets_lost_total", "Packets declared lost on this connection.", func(s Snapshot) float64 { return s.PacketsLost })
}

func (c *ConnectionCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range c.infos {
		descs <- info.description
	}
}

func (c *ConnectionCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.conns {
		snap := entry.source.MetricsSnapshot()
		for _, info := range c.infos {
			metrics <- info.supplier(snap, entry.labels)
		}
	}
}

// Add registers a connection under id (e.g. a connection's local
// sequence number or a pointer-derived key) with its label values.
func (c *ConnectionCollector) Add(id uint64, source Source, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conns[id] = connEntry{source: source, labels: labels}
}

// Remove unregisters a connection, e.g. once it is destroyed.
func (c *ConnectionCollector) Remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.conns, id)
}
