package gossip

import "github.com/andydunstall/nanoledger/pkg/packet"

// Watcher is used to receive notifications when the node learns a new packet
// from a peer.
//
// Watcher is called from the nodes receive goroutine after the node mutex is
// released, so implementations may call back to Node but must not block.
type Watcher interface {
	// OnPacket notifies that a packet was received from a peer and added
	// to the local store.
	OnPacket(p packet.Packet)
}

type nopWatcher struct {
}

func (w *nopWatcher) OnPacket(_ packet.Packet) {}

var _ Watcher = &nopWatcher{}
