// Package ingest receives packets from senders.
package ingest

import (
	"errors"
	"net"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/nanoledger/pkg/log"
	"github.com/andydunstall/nanoledger/pkg/packet"
)

// Sink receives accepted packets.
type Sink interface {
	Ingest(p packet.Packet) error
}

// Listener reads encoded packets from a UDP socket, one packet per datagram.
//
// Packets that are malformed or whose hash doesn't match their payload are
// dropped. The listener also tracks the previous hash expected from each
// sender, though a packet that doesn't follow on from the senders last
// packet is still accepted since datagrams may be lost or reordered.
type Listener struct {
	conn net.PacketConn

	readBuf []byte

	// senders maps a sender address to the hash of its last packet. Only
	// accessed by the Serve goroutine.
	senders    map[string]packet.Hash
	maxSenders int

	sink Sink

	closed *atomic.Bool

	metrics *Metrics

	logger log.Logger
}

func NewListener(
	conn net.PacketConn,
	conf *Config,
	sink Sink,
	logger log.Logger,
) *Listener {
	return &Listener{
		conn:       conn,
		readBuf:    make([]byte, conf.MaxPacketSize),
		senders:    make(map[string]packet.Hash),
		maxSenders: conf.MaxSenders,
		sink:       sink,
		closed:     atomic.NewBool(false),
		metrics:    NewMetrics(),
		logger:     logger.WithSubsystem("ingest"),
	}
}

func (l *Listener) Metrics() *Metrics {
	return l.metrics
}

func (l *Listener) Addr() string {
	return l.conn.LocalAddr().String()
}

// Serve reads packets until the listener is closed.
func (l *Listener) Serve() error {
	l.logger.Info("starting ingest listener", zap.String("addr", l.Addr()))

	for {
		n, addr, err := l.conn.ReadFrom(l.readBuf)
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("failed to read packet", zap.Error(err))
			continue
		}

		l.metrics.BytesInbound.Add(float64(n))
		l.handlePacket(l.readBuf[:n], addr.String())
	}
}

func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.conn.Close()
}

func (l *Listener) handlePacket(b []byte, from string) {
	// Decode copies the payload so b may be reused.
	p, err := packet.Decode(b)
	if err != nil {
		l.metrics.PacketsDropped.WithLabelValues("malformed").Inc()
		l.logger.Debug(
			"dropped malformed packet",
			zap.String("addr", from),
			zap.Error(err),
		)
		return
	}

	expected, known := l.senders[from]
	result := packet.Verify(b, expected[:])
	if !result.ValidHash {
		l.metrics.PacketsDropped.WithLabelValues("corrupt").Inc()
		l.logger.Warn(
			"corruption detected",
			zap.String("addr", from),
			zap.String("hash", p.Hash.String()),
		)
		return
	}
	if known && !result.ValidPrev {
		l.metrics.ChainBreaks.Inc()
		l.logger.Warn(
			"chain break",
			zap.String("addr", from),
			zap.String("hash", p.Hash.String()),
			zap.String("prev", p.PrevHash.String()),
			zap.String("expected-prev", expected.String()),
		)
	}

	l.trackSender(from, p.Hash)

	if err := l.sink.Ingest(p); err != nil {
		l.logger.Warn(
			"failed to ingest packet",
			zap.String("addr", from),
			zap.String("hash", p.Hash.String()),
			zap.Error(err),
		)
		return
	}
	l.metrics.PacketsAccepted.Inc()
}

func (l *Listener) trackSender(addr string, hash packet.Hash) {
	if _, ok := l.senders[addr]; !ok && len(l.senders) >= l.maxSenders {
		// Forget an arbitrary sender.
		for k := range l.senders {
			delete(l.senders, k)
			break
		}
	}
	l.senders[addr] = hash
}
