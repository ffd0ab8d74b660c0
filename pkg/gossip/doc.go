// Package gossip replicates hash-chained packets between nodes using a best
// effort announce/request/response protocol over an unreliable datagram
// transport.
//
// Each node periodically announces the hash of its chain tip to its peers.
// When a peer sees a tip it doesn't know it requests the packet, and when it
// receives a packet whose previous hash is unknown it requests that too,
// backfilling the chain one hop at a time.
//
// Every message is signed with the senders Ed25519 key. Messages that fail
// verification, are malformed, or deliver a packet whose hash doesn't match
// its payload are dropped without a response. Lost messages are recovered by
// the next announce round.
package gossip
