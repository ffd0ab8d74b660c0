package gossip

import (
	"time"

	"github.com/zeebo/blake3"
)

// dedupCompactThreshold is the number of entries after which expired entries
// are removed on insert.
const dedupCompactThreshold = 1024

// dedup tracks recently received datagrams to skip duplicates.
//
// dedup is not thread safe. The node serialises access with its own mutex.
type dedup struct {
	// seen maps the datagram digest to when it was received.
	seen map[[32]byte]time.Time
	ttl  time.Duration
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[[32]byte]time.Time),
		ttl:  ttl,
	}
}

// Check returns true if the datagram has not been seen within the TTL, and
// records it as seen.
func (d *dedup) Check(b []byte, now time.Time) bool {
	if d.ttl == 0 {
		return true
	}

	digest := blake3.Sum256(b)
	if ts, ok := d.seen[digest]; ok && now.Sub(ts) < d.ttl {
		return false
	}

	if len(d.seen) >= dedupCompactThreshold {
		d.Expire(now)
	}
	d.seen[digest] = now
	return true
}

// Expire removes entries older than the TTL.
func (d *dedup) Expire(now time.Time) {
	for digest, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, digest)
		}
	}
}

func (d *dedup) Len() int {
	return len(d.seen)
}
