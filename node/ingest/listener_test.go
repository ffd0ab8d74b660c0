package ingest

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/nanoledger/pkg/log"
	"github.com/andydunstall/nanoledger/pkg/packet"
)

type fakeSink struct {
	mu      sync.Mutex
	packets []packet.Packet
	err     error
}

func (s *fakeSink) Ingest(p packet.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, p)
	return nil
}

func (s *fakeSink) Packets() []packet.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]packet.Packet(nil), s.packets...)
}

var _ Sink = &fakeSink{}

func newTestListener(t *testing.T, sink Sink, maxSenders int) *Listener {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	conf := DefaultConfig()
	conf.MaxSenders = maxSenders
	l := NewListener(conn, conf, sink, log.NewNopLogger())
	t.Cleanup(func() {
		l.Close()
	})
	return l
}

func TestListener_HandlePacket(t *testing.T) {
	t.Run("accept chain", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestListener(t, sink, 16)

		chain := packet.NewChain(packet.ZeroHash)
		p1 := chain.Next(false, []byte("foo"))
		p2 := chain.Next(true, []byte("bar"))

		l.handlePacket(p1.Bytes(), "10.26.104.52:5000")
		l.handlePacket(p2.Bytes(), "10.26.104.52:5000")

		assert.Equal(t, []packet.Packet{p1, p2}, sink.Packets())
		assert.Equal(t, 2.0, testutil.ToFloat64(l.Metrics().PacketsAccepted))
		assert.Equal(t, 0.0, testutil.ToFloat64(l.Metrics().ChainBreaks))
	})

	t.Run("first packet from sender", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestListener(t, sink, 16)

		// A sender joining mid-chain isn't a chain break.
		p := packet.New(packet.Digest([]byte("unknown")), false, []byte("foo"))
		l.handlePacket(p.Bytes(), "10.26.104.52:5000")

		assert.Len(t, sink.Packets(), 1)
		assert.Equal(t, 0.0, testutil.ToFloat64(l.Metrics().ChainBreaks))
	})

	t.Run("chain break accepted", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestListener(t, sink, 16)

		chain := packet.NewChain(packet.ZeroHash)
		p1 := chain.Next(false, []byte("1"))
		// Lost.
		chain.Next(false, []byte("2"))
		p3 := chain.Next(false, []byte("3"))

		l.handlePacket(p1.Bytes(), "10.26.104.52:5000")
		l.handlePacket(p3.Bytes(), "10.26.104.52:5000")

		assert.Equal(t, []packet.Packet{p1, p3}, sink.Packets())
		assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics().ChainBreaks))
	})

	t.Run("senders tracked independently", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestListener(t, sink, 16)

		chainA := packet.NewChain(packet.ZeroHash)
		chainB := packet.NewChain(packet.ZeroHash)

		l.handlePacket(chainA.Next(false, []byte("a1")).Bytes(), "10.26.104.52:5000")
		l.handlePacket(chainB.Next(false, []byte("b1")).Bytes(), "10.26.104.53:5000")
		l.handlePacket(chainA.Next(false, []byte("a2")).Bytes(), "10.26.104.52:5000")
		l.handlePacket(chainB.Next(false, []byte("b2")).Bytes(), "10.26.104.53:5000")

		assert.Len(t, sink.Packets(), 4)
		assert.Equal(t, 0.0, testutil.ToFloat64(l.Metrics().ChainBreaks))
	})

	t.Run("max senders", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestListener(t, sink, 2)

		l.handlePacket(packet.New(packet.ZeroHash, false, []byte("1")).Bytes(), "10.26.104.52:5000")
		l.handlePacket(packet.New(packet.ZeroHash, false, []byte("2")).Bytes(), "10.26.104.53:5000")
		l.handlePacket(packet.New(packet.ZeroHash, false, []byte("3")).Bytes(), "10.26.104.54:5000")

		assert.Len(t, l.senders, 2)
		assert.Len(t, sink.Packets(), 3)
	})

	t.Run("corrupt", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestListener(t, sink, 16)

		b := packet.New(packet.ZeroHash, false, []byte("foo")).Bytes()
		b[len(b)-1] ^= 0xff
		l.handlePacket(b, "10.26.104.52:5000")

		assert.Empty(t, sink.Packets())
		assert.Equal(t, 1.0, testutil.ToFloat64(
			l.Metrics().PacketsDropped.WithLabelValues("corrupt"),
		))
		// Dropped packets don't update the sender.
		assert.Empty(t, l.senders)
	})

	t.Run("malformed", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestListener(t, sink, 16)

		l.handlePacket([]byte{1, 2, 3}, "10.26.104.52:5000")

		assert.Empty(t, sink.Packets())
		assert.Equal(t, 1.0, testutil.ToFloat64(
			l.Metrics().PacketsDropped.WithLabelValues("malformed"),
		))
	})

	t.Run("sink error", func(t *testing.T) {
		sink := &fakeSink{err: errors.New("full")}
		l := newTestListener(t, sink, 16)

		l.handlePacket(packet.New(packet.ZeroHash, false, []byte("foo")).Bytes(), "10.26.104.52:5000")

		assert.Equal(t, 0.0, testutil.ToFloat64(l.Metrics().PacketsAccepted))
	})
}

func TestListener_Serve(t *testing.T) {
	sink := &fakeSink{}
	l := newTestListener(t, sink, 16)

	done := make(chan error, 1)
	go func() {
		done <- l.Serve()
	}()

	conn, err := net.Dial("udp", l.Addr())
	require.NoError(t, err)
	defer conn.Close()

	chain := packet.NewChain(packet.ZeroHash)
	var sent []packet.Packet
	for i := 0; i != 5; i++ {
		p := chain.Next(i%2 == 0, []byte{byte(i)})
		sent = append(sent, p)
		_, err := conn.Write(p.Bytes())
		require.NoError(t, err)
		// Avoid reordering in the test.
		time.Sleep(time.Millisecond * 5)
	}

	assert.Eventually(t, func() bool {
		return len(sink.Packets()) == len(sent)
	}, time.Second, time.Millisecond*10)
	assert.Equal(t, sent, sink.Packets())

	require.NoError(t, l.Close())
	assert.NoError(t, <-done)
}
