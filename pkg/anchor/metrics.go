package anchor

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// BatchesAnchored is the number of batches committed and recorded.
	BatchesAnchored prometheus.Counter

	// CommitFailures is the number of failed commits.
	CommitFailures prometheus.Counter

	// PacketsBuffered is the number of packets waiting to be anchored.
	PacketsBuffered prometheus.Gauge

	// BatchSize is the number of packets in each anchored batch.
	BatchSize prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		BatchesAnchored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "anchor",
				Name:      "batches_anchored_total",
				Help:      "Total number of batches anchored",
			},
		),
		CommitFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "anchor",
				Name:      "commit_failures_total",
				Help:      "Total number of failed commits",
			},
		),
		PacketsBuffered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nanoledger",
				Subsystem: "anchor",
				Name:      "packets_buffered",
				Help:      "Number of packets waiting to be anchored",
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "nanoledger",
				Subsystem: "anchor",
				Name:      "batch_size",
				Help:      "Number of packets in each anchored batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.BatchesAnchored,
		m.CommitFailures,
		m.PacketsBuffered,
		m.BatchSize,
	)
}
