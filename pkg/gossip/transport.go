package gossip

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/andydunstall/nanoledger/pkg/log"
)

// Transport is an unreliable datagram transport. Datagrams may be lost,
// duplicated or reordered.
type Transport interface {
	// Send sends a single datagram to the given address.
	Send(b []byte, addr string) error

	// Serve reads datagrams and passes them to handler until the transport
	// is closed. handler is called from a single goroutine so datagrams
	// are handled in the order they are read.
	Serve(handler func(b []byte, from string)) error

	Close() error

	// Addr returns the local address the transport is bound to.
	Addr() string
}

// UDPTransport is a Transport backed by a UDP socket.
type UDPTransport struct {
	conn net.PacketConn

	maxPacketSize int
	readBuf       []byte

	logger log.Logger
}

func NewUDPTransport(
	conn net.PacketConn,
	maxPacketSize int,
	logger log.Logger,
) *UDPTransport {
	return &UDPTransport{
		conn:          conn,
		maxPacketSize: maxPacketSize,
		readBuf:       make([]byte, maxPacketSize),
		logger:        logger.WithSubsystem("gossip.transport"),
	}
}

func (t *UDPTransport) Send(b []byte, addr string) error {
	if len(b) > t.maxPacketSize {
		return fmt.Errorf("datagram exceeds max packet size: %d", len(b))
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve: %s: %w", addr, err)
	}
	if _, err = t.conn.WriteTo(b, udpAddr); err != nil {
		return fmt.Errorf("write: %s: %w", addr, err)
	}
	return nil
}

// Serve reads datagrams until the socket is closed.
func (t *UDPTransport) Serve(handler func(b []byte, from string)) error {
	for {
		n, addr, err := t.conn.ReadFrom(t.readBuf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.logger.Warn("failed to read datagram", zap.Error(err))
			continue
		}

		handler(bytes.Clone(t.readBuf[:n]), addr.String())
	}
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

func (t *UDPTransport) Addr() string {
	return t.conn.LocalAddr().String()
}

var _ Transport = &UDPTransport{}
