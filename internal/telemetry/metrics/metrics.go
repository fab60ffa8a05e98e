// Package metrics exposes Prometheus instrumentation for the transfer
// engine: packet counts, retransmissions, and congestion-window/RTO gauges.
// Adapted from the teacher's internal/gateway/metrics.Metrics (namespace +
// subsystem promauto constructors, one Record* method per event), trimmed
// to the handful of series a UDP file-transfer actually produces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus series for one transfer engine instance.
type Metrics struct {
	PacketsSent       *prometheus.CounterVec
	PacketsReceived   *prometheus.CounterVec
	BytesTransferred  prometheus.Counter
	Retransmits       *prometheus.CounterVec
	FastRetransmits   prometheus.Counter
	Timeouts          prometheus.Counter
	DuplicateAcks     prometheus.Counter
	Cwnd              prometheus.Gauge
	Ssthresh          prometheus.Gauge
	SRTT              prometheus.Gauge
	RTO               prometheus.Gauge
}

// New creates and registers a Metrics set under namespace "qrudp" and the
// given subsystem (the binaries use "sender_sr", "sender_reno" and
// "receiver").
func New(subsystem string) *Metrics {
	return &Metrics{
		PacketsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "packets_sent_total",
				Help:      "Total number of packets sent, by kind (data/ack).",
			},
			[]string{"kind"},
		),
		PacketsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "packets_received_total",
				Help:      "Total number of packets received, by kind (data/ack/malformed).",
			},
			[]string{"kind"},
		),
		BytesTransferred: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "bytes_transferred_total",
				Help:      "Total payload bytes delivered to the application.",
			},
		),
		Retransmits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "retransmits_total",
				Help:      "Total retransmissions, by cause (timeout/fast).",
			},
			[]string{"cause"},
		),
		FastRetransmits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "fast_retransmits_total",
				Help:      "Total fast retransmits triggered by duplicate acks.",
			},
		),
		Timeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "timeouts_total",
				Help:      "Total retransmission timeout events.",
			},
		),
		DuplicateAcks: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "duplicate_acks_total",
				Help:      "Total duplicate acknowledgements observed.",
			},
		),
		Cwnd: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "cwnd_bytes",
				Help:      "Current congestion window size in bytes (Variant B only).",
			},
		),
		Ssthresh: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "ssthresh_bytes",
				Help:      "Current slow-start threshold in bytes (Variant B only).",
			},
		),
		SRTT: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "srtt_seconds",
				Help:      "Current smoothed round-trip time estimate.",
			},
		),
		RTO: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "qrudp",
				Subsystem: subsystem,
				Name:      "rto_seconds",
				Help:      "Current retransmission timeout.",
			},
		),
	}
}

// RecordRetransmit increments both the per-cause counter and the
// cause-specific counter ("timeout" or "fast").
func (m *Metrics) RecordRetransmit(cause string) {
	m.Retransmits.WithLabelValues(cause).Inc()
	if cause == "fast" {
		m.FastRetransmits.Inc()
	} else {
		m.Timeouts.Inc()
	}
}
