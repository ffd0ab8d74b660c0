package packet

// Chain produces a sequence of packets where each packet references the hash
// of the packet before it. The first packet is a chain root.
//
// Chain is not safe for concurrent use.
type Chain struct {
	prev Hash
}

// NewChain returns a chain starting from the given previous hash. Use
// ZeroHash to start a new chain.
func NewChain(prev Hash) *Chain {
	return &Chain{prev: prev}
}

// Next creates the next packet in the chain.
func (c *Chain) Next(critical bool, payload []byte) Packet {
	p := New(c.prev, critical, payload)
	c.prev = p.Hash
	return p
}

// Prev returns the hash of the last packet in the chain.
func (c *Chain) Prev() Hash {
	return c.prev
}
