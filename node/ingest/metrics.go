package ingest

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// PacketsAccepted is the number of packets passed to the sink.
	PacketsAccepted prometheus.Counter

	// PacketsDropped is the number of datagrams dropped, labelled by
	// reason.
	PacketsDropped *prometheus.CounterVec

	// ChainBreaks is the number of accepted packets whose previous hash
	// didn't match the last packet from the same sender.
	ChainBreaks prometheus.Counter

	// BytesInbound is the total number of bytes read.
	BytesInbound prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		PacketsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "ingest",
				Name:      "packets_accepted_total",
				Help:      "Total number of packets accepted",
			},
		),
		PacketsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "ingest",
				Name:      "packets_dropped_total",
				Help:      "Total number of datagrams dropped",
			},
			[]string{"reason"},
		),
		ChainBreaks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "ingest",
				Name:      "chain_breaks_total",
				Help:      "Total number of packets that didn't follow the senders previous packet",
			},
		),
		BytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "ingest",
				Name:      "bytes_inbound_total",
				Help:      "Total number of bytes read",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.PacketsAccepted,
		m.PacketsDropped,
		m.ChainBreaks,
		m.BytesInbound,
	)
}
