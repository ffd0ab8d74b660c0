package gossip

import (
	"bytes"
	"sync"
	"time"
)

type datagram struct {
	b    []byte
	from string
}

// memNetwork is an in-memory datagram network. Like UDP, datagrams sent to
// an unknown address or to a full queue are silently lost.
type memNetwork struct {
	mu         sync.Mutex
	transports map[string]*memTransport
	// drop returns true if the datagram should be lost.
	drop func(b []byte, from, to string) bool
}

func newMemNetwork() *memNetwork {
	return &memNetwork{
		transports: make(map[string]*memTransport),
	}
}

func (n *memNetwork) Transport(addr string) *memTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := &memTransport{
		addr:    addr,
		network: n,
		ch:      make(chan datagram, 1024),
		closed:  make(chan struct{}),
	}
	n.transports[addr] = t
	return t
}

func (n *memNetwork) SetDrop(drop func(b []byte, from, to string) bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.drop = drop
}

func (n *memNetwork) deliver(b []byte, from, to string) {
	n.mu.Lock()
	dst, ok := n.transports[to]
	drop := n.drop
	n.mu.Unlock()

	if !ok {
		return
	}
	if drop != nil && drop(b, from, to) {
		return
	}

	select {
	case dst.ch <- datagram{b: bytes.Clone(b), from: from}:
	case <-dst.closed:
	default:
	}
}

func (n *memNetwork) remove(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.transports, addr)
}

type memTransport struct {
	addr    string
	network *memNetwork

	ch        chan datagram
	closed    chan struct{}
	closeOnce sync.Once
}

func (t *memTransport) Send(b []byte, addr string) error {
	t.network.deliver(b, t.addr, addr)
	return nil
}

func (t *memTransport) Serve(handler func(b []byte, from string)) error {
	for {
		select {
		case d := <-t.ch:
			handler(d.b, d.from)
		case <-t.closed:
			return nil
		}
	}
}

// Recv returns the next datagram received, for transports that aren't
// served by a node. Returns false if nothing is received within the timeout.
func (t *memTransport) Recv(timeout time.Duration) (datagram, bool) {
	select {
	case d := <-t.ch:
		return d, true
	case <-t.closed:
		return datagram{}, false
	case <-time.After(timeout):
		return datagram{}, false
	}
}

func (t *memTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.network.remove(t.addr)
	})
	return nil
}

func (t *memTransport) Addr() string {
	return t.addr
}

var _ Transport = &memTransport{}
