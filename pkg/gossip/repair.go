package gossip

import (
	"time"

	"github.com/andydunstall/nanoledger/pkg/packet"
)

// repair tracks the backfill of a chain started by a single announce.
//
// Each request sent for a missing previous packet extends the same repair,
// which bounds the number of requests and stops cycles in the chain.
type repair struct {
	// head is the hash of the announced packet the repair started from.
	head packet.Hash

	// depth is the number of backfill requests sent.
	depth int

	visited map[packet.Hash]struct{}

	// updated is when the last request in the repair was sent.
	updated time.Time
}

func newRepair(head packet.Hash, now time.Time) *repair {
	return &repair{
		head: head,
		visited: map[packet.Hash]struct{}{
			head: {},
		},
		updated: now,
	}
}

// Extend records a backfill request for hash. Returns false if the hash was
// already visited or the repair reached the max depth.
func (r *repair) Extend(hash packet.Hash, maxDepth int, now time.Time) bool {
	if _, ok := r.visited[hash]; ok {
		return false
	}
	if r.depth >= maxDepth {
		return false
	}

	r.depth++
	r.visited[hash] = struct{}{}
	r.updated = now
	return true
}

func (r *repair) Expired(timeout time.Duration, now time.Time) bool {
	return now.Sub(r.updated) >= timeout
}
