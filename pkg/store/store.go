// Package store contains the bounded packet cache held by each gossip node.
package store

import (
	"container/list"

	"github.com/andydunstall/nanoledger/pkg/packet"
)

// PacketStore is a bounded cache of packets keyed by the hex encoding of
// their hash.
//
// When the store is at capacity, adding a new packet evicts the packet that
// was inserted first.
//
// PacketStore is not safe for concurrent use. It is owned by a single gossip
// node which serialises access.
type PacketStore struct {
	capacity int

	packets map[string]*list.Element
	// order contains the packet keys in insertion order, with the oldest at
	// the front.
	order *list.List
}

type storeEntry struct {
	key    string
	packet packet.Packet
}

// NewPacketStore creates a store holding at most capacity packets. capacity
// must be positive.
func NewPacketStore(capacity int) *PacketStore {
	if capacity <= 0 {
		panic("packet store capacity must be positive")
	}
	return &PacketStore{
		capacity: capacity,
		packets:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Put adds the packet to the store. Returns false if the packet was already
// stored, in which case its insertion order is unchanged.
func (s *PacketStore) Put(p packet.Packet) bool {
	key := p.Key()
	if _, ok := s.packets[key]; ok {
		return false
	}

	if len(s.packets) >= s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.packets, oldest.Value.(*storeEntry).key)
	}

	s.packets[key] = s.order.PushBack(&storeEntry{
		key:    key,
		packet: p,
	})
	return true
}

// Get returns the packet with the given hex encoded hash.
func (s *PacketStore) Get(hashHex string) (packet.Packet, bool) {
	e, ok := s.packets[hashHex]
	if !ok {
		return packet.Packet{}, false
	}
	return e.Value.(*storeEntry).packet, true
}

// Has returns whether the packet with the given hex encoded hash is stored.
func (s *PacketStore) Has(hashHex string) bool {
	_, ok := s.packets[hashHex]
	return ok
}

func (s *PacketStore) Len() int {
	return len(s.packets)
}

func (s *PacketStore) Capacity() int {
	return s.capacity
}

// Keys returns the stored packet keys in insertion order.
func (s *PacketStore) Keys() []string {
	keys := make([]string, 0, len(s.packets))
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*storeEntry).key)
	}
	return keys
}
