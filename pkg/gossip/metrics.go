package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// MessagesInbound is the number of verified messages received, labelled
	// by message type.
	MessagesInbound *prometheus.CounterVec

	// MessagesOutbound is the number of messages sent, labelled by message
	// type.
	MessagesOutbound *prometheus.CounterVec

	// MessagesDropped is the number of received datagrams dropped, labelled
	// by reason.
	MessagesDropped *prometheus.CounterVec

	// PacketBytesInbound is the total number of read bytes via the
	// transport.
	PacketBytesInbound prometheus.Counter

	// PacketBytesOutbound is the total number of written bytes via the
	// transport.
	PacketBytesOutbound prometheus.Counter

	// PacketsStored is the number of packets in the local store.
	PacketsStored prometheus.Gauge

	// BackfillRequests is the number of requests sent for a missing
	// previous packet.
	BackfillRequests prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		MessagesInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "gossip",
				Name:      "messages_inbound_total",
				Help:      "Total number of verified messages received",
			},
			[]string{"type"},
		),
		MessagesOutbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "gossip",
				Name:      "messages_outbound_total",
				Help:      "Total number of messages sent",
			},
			[]string{"type"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "gossip",
				Name:      "messages_dropped_total",
				Help:      "Total number of received datagrams dropped",
			},
			[]string{"reason"},
		),
		PacketBytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "gossip",
				Name:      "packet_bytes_inbound_total",
				Help:      "Total number of read bytes via the transport",
			},
		),
		PacketBytesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "gossip",
				Name:      "packet_bytes_outbound_total",
				Help:      "Total number of written bytes via the transport",
			},
		),
		PacketsStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nanoledger",
				Subsystem: "gossip",
				Name:      "packets_stored",
				Help:      "Number of packets in the local store",
			},
		),
		BackfillRequests: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nanoledger",
				Subsystem: "gossip",
				Name:      "backfill_requests_total",
				Help:      "Total number of requests for missing previous packets",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.MessagesInbound,
		m.MessagesOutbound,
		m.MessagesDropped,
		m.PacketBytesInbound,
		m.PacketBytesOutbound,
		m.PacketsStored,
		m.BackfillRequests,
	)
}
