package gossip

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/nanoledger/pkg/log"
	"github.com/andydunstall/nanoledger/pkg/packet"
	"github.com/andydunstall/nanoledger/pkg/store"
)

var (
	ErrNotRunning = errors.New("node not running")
)

// Node replicates packets with its peers.
//
// The node owns a bounded packet store and the hash of the local chain tip.
// All mutation of that state happens with the node mutex held, either from
// the transports receive goroutine, the announce schedule, or AddPacket.
type Node struct {
	id string

	identity  ed25519.PrivateKey
	publicKey ed25519.PublicKey

	config *Config

	transport Transport

	// mu protects the fields below.
	mu sync.Mutex

	store *store.PacketStore
	tip   packet.Hash
	// repairs maps a requested hash to the repair the request belongs to.
	repairs map[packet.Hash]*repair
	dedup   *dedup

	watcher Watcher
	now     func() time.Time

	metrics *Metrics

	running *atomic.Bool
	stopped *atomic.Bool

	shutdownCh chan struct{}
	wg         sync.WaitGroup

	logger log.Logger
}

func New(
	nodeID string,
	config *Config,
	identity ed25519.PrivateKey,
	transport Transport,
	opts ...Option,
) *Node {
	options := defaultOptions()
	for _, o := range opts {
		o.apply(&options)
	}

	return &Node{
		id:         nodeID,
		identity:   identity,
		publicKey:  identity.Public().(ed25519.PublicKey),
		config:     config,
		transport:  transport,
		store:      store.NewPacketStore(config.StoreCapacity),
		repairs:    make(map[packet.Hash]*repair),
		dedup:      newDedup(config.DedupTTL),
		watcher:    options.watcher,
		now:        options.now,
		metrics:    NewMetrics(),
		running:    atomic.NewBool(false),
		stopped:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		logger:     options.logger.WithSubsystem("gossip"),
	}
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Addr() string {
	return n.transport.Addr()
}

func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Start serves the transport and starts announcing the local tip to peers.
//
// A stopped node cannot be restarted.
func (n *Node) Start() error {
	if n.stopped.Load() {
		return ErrNotRunning
	}
	if !n.running.CompareAndSwap(false, true) {
		return fmt.Errorf("node already started")
	}

	n.logger.Info(
		"starting gossip",
		zap.String("node-id", n.id),
		zap.String("addr", n.transport.Addr()),
		zap.Strings("peers", n.config.Peers),
	)

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		if err := n.transport.Serve(n.handleDatagram); err != nil {
			n.logger.Error("failed to serve transport", zap.Error(err))
		}
	}()
	go func() {
		defer n.wg.Done()
		n.scheduleFunc(n.config.Interval, func() {
			if err := n.Announce(); err != nil {
				n.logger.Warn("announce failed", zap.Error(err))
			}
		})
	}()

	return nil
}

// Stop stops announcing and closes the transport. Stop is idempotent.
func (n *Node) Stop() error {
	if !n.stopped.CompareAndSwap(false, true) {
		return nil
	}
	n.running.Store(false)

	close(n.shutdownCh)
	err := n.transport.Close()
	n.wg.Wait()

	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Announce broadcasts the local chain tip to every configured peer.
//
// Returns an error if the announce could not be sent to any of the peers.
func (n *Node) Announce() error {
	if !n.running.Load() {
		return ErrNotRunning
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	n.expire(now)

	tip := n.tip
	b, err := signMessage(&Announce{
		NodeID:    n.id,
		LastHash:  tip[:],
		Timestamp: now.UnixMilli(),
	}, n.identity)
	if err != nil {
		return fmt.Errorf("sign announce: %w", err)
	}

	var errs error
	for _, peer := range n.config.Peers {
		if err := n.send(b, peer, messageTypeAnnounce); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// AddPacket adds a locally produced packet and sets it as the chain tip.
// Peers learn about the packet on the next announce.
func (n *Node) AddPacket(p packet.Packet) error {
	if !n.running.Load() {
		return ErrNotRunning
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.store.Put(p)
	n.tip = p.Hash
	n.metrics.PacketsStored.Set(float64(n.store.Len()))
	return nil
}

// Tip returns the hash of the local chain tip, which is zero until the node
// adds or learns a packet.
func (n *Node) Tip() packet.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.tip
}

// Has returns whether the store holds the packet with the given hex hash.
func (n *Node) Has(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.store.Has(key)
}

// Get returns the packet with the given hex hash.
func (n *Node) Get(key string) (packet.Packet, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.store.Get(key)
}

// Packets returns the stored packets in insertion order.
func (n *Node) Packets() []packet.Packet {
	n.mu.Lock()
	defer n.mu.Unlock()

	var packets []packet.Packet
	for _, key := range n.store.Keys() {
		p, _ := n.store.Get(key)
		packets = append(packets, p)
	}
	return packets
}

func (n *Node) handleDatagram(b []byte, from string) {
	if !n.running.Load() {
		return
	}

	n.metrics.PacketBytesInbound.Add(float64(len(b)))

	m, err := decodeMessage(b)
	if err != nil {
		n.metrics.MessagesDropped.With(prometheus.Labels{"reason": "malformed"}).Inc()
		n.logger.Debug(
			"dropped malformed message",
			zap.String("from", from),
			zap.Error(err),
		)
		return
	}
	if err := verifyMessage(m); err != nil {
		n.metrics.MessagesDropped.With(prometheus.Labels{"reason": "invalid_signature"}).Inc()
		n.logger.Debug(
			"dropped message",
			zap.String("from", from),
			zap.String("type", m.messageType().String()),
			zap.Error(err),
		)
		return
	}

	learned := n.handleMessage(b, m, from)
	if learned != nil {
		n.watcher.OnPacket(*learned)
	}
}

// handleMessage handles a verified message. Returns the packet if a new
// packet was learned.
func (n *Node) handleMessage(b []byte, m message, from string) *packet.Packet {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.dedup.Check(b, n.now()) {
		n.metrics.MessagesDropped.With(prometheus.Labels{"reason": "duplicate"}).Inc()
		return nil
	}

	n.metrics.MessagesInbound.With(prometheus.Labels{
		"type": m.messageType().String(),
	}).Inc()

	switch m := m.(type) {
	case *Announce:
		n.onAnnounce(m, from)
	case *Request:
		n.onRequest(m, from)
	case *Response:
		return n.onResponse(m, from)
	}
	return nil
}

func (n *Node) onAnnounce(m *Announce, from string) {
	hash, _ := packet.HashFromBytes(m.LastHash)
	if hash.IsZero() || hash == n.tip {
		return
	}
	if n.store.Has(hash.String()) {
		// Retry any backfill of the announced chain whose response was lost.
		for pending, r := range n.repairs {
			if r.head == hash {
				n.request(pending, from)
			}
		}
		return
	}

	n.logger.Debug(
		"received unknown tip",
		zap.String("node-id", m.NodeID),
		zap.String("hash", hash.String()),
	)

	now := n.now()
	r, ok := n.repairs[hash]
	if !ok {
		r = newRepair(hash, now)
		n.repairs[hash] = r
	}
	r.updated = now

	n.request(hash, from)
}

func (n *Node) onRequest(m *Request, from string) {
	hash, _ := packet.HashFromBytes(m.WantHash)
	p, ok := n.store.Get(hash.String())
	if !ok {
		return
	}

	b, err := signMessage(&Response{
		ResponderID: n.id,
		Hash:        hash[:],
		Payload:     p.Bytes(),
	}, n.identity)
	if err != nil {
		n.logger.Warn("failed to sign response", zap.Error(err))
		return
	}
	if err := n.send(b, from, messageTypeResponse); err != nil {
		n.logger.Warn(
			"failed to send response",
			zap.String("addr", from),
			zap.Error(err),
		)
	}
}

func (n *Node) onResponse(m *Response, from string) *packet.Packet {
	claimed, _ := packet.HashFromBytes(m.Hash)
	p, err := packet.Decode(m.Payload)
	if err != nil || p.Hash != claimed || packet.Digest(p.Payload) != claimed {
		n.metrics.MessagesDropped.With(prometheus.Labels{"reason": "corrupt"}).Inc()
		n.logger.Warn(
			"corruption detected",
			zap.String("node-id", m.ResponderID),
			zap.String("hash", claimed.String()),
			zap.Error(ErrCorruptionDetected),
		)
		return nil
	}

	now := n.now()
	r, ok := n.repairs[claimed]
	if ok {
		delete(n.repairs, claimed)
	} else {
		// Unsolicited responses are accepted and start their own repair.
		r = newRepair(claimed, now)
	}

	if n.store.Has(claimed.String()) {
		return nil
	}

	n.store.Put(p)
	n.metrics.PacketsStored.Set(float64(n.store.Len()))

	if !p.PrevHash.IsZero() && !n.store.Has(p.PrevHash.String()) {
		if !r.Extend(p.PrevHash, n.config.MaxBackfillDepth, now) {
			n.logger.Debug(
				"backfill stopped",
				zap.String("head", r.head.String()),
				zap.String("prev", p.PrevHash.String()),
				zap.Int("depth", r.depth),
			)
			return &p
		}
		n.repairs[p.PrevHash] = r
		n.metrics.BackfillRequests.Inc()
		n.request(p.PrevHash, from)
		return &p
	}

	// The chain is contiguous back to a known packet or its root.
	if n.store.Has(r.head.String()) {
		n.tip = r.head
	} else {
		n.tip = p.Hash
	}
	return &p
}

// request sends a request for the packet with the given hash. Must be called
// with the mutex held.
func (n *Node) request(hash packet.Hash, addr string) {
	b, err := signMessage(&Request{
		RequesterID: n.id,
		WantHash:    hash[:],
	}, n.identity)
	if err != nil {
		n.logger.Warn("failed to sign request", zap.Error(err))
		return
	}
	if err := n.send(b, addr, messageTypeRequest); err != nil {
		n.logger.Warn(
			"failed to send request",
			zap.String("addr", addr),
			zap.String("hash", hash.String()),
			zap.Error(err),
		)
	}
}

func (n *Node) send(b []byte, addr string, messageType messageType) error {
	if err := n.transport.Send(b, addr); err != nil {
		return fmt.Errorf("send %s: %w", messageType, err)
	}
	n.metrics.MessagesOutbound.With(prometheus.Labels{
		"type": messageType.String(),
	}).Inc()
	n.metrics.PacketBytesOutbound.Add(float64(len(b)))
	return nil
}

// expire discards repairs that haven't progressed within the repair timeout
// and expired deduplication entries. Must be called with the mutex held.
func (n *Node) expire(now time.Time) {
	for hash, r := range n.repairs {
		if r.Expired(n.config.RepairTimeout, now) {
			delete(n.repairs, hash)
		}
	}
	n.dedup.Expire(now)
}

func (n *Node) scheduleFunc(interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Add 10% jitter to avoid nodes synchronising.
			var jitterMs int64
			if interval.Milliseconds() > 0 {
				jitterMs = (rand.Int63() % interval.Milliseconds()) / 10
			}
			select {
			case <-time.After(time.Duration(jitterMs) * time.Millisecond):
				f()
			case <-n.shutdownCh:
				return
			}

		case <-n.shutdownCh:
			return
		}
	}
}
