// Package verifier checks a packet was included in an anchored batch.
package verifier

import (
	"encoding/hex"

	"github.com/andydunstall/nanoledger/pkg/merkle"
)

// VerifyInclusion returns whether the encoded packet is a leaf of the Merkle
// tree with the given hex encoded root, using the proof in its exchange
// format.
//
// Returns false if the proof or root are malformed.
func VerifyInclusion(packetBytes []byte, proof []merkle.HexEntry, rootHex string) bool {
	root, err := hex.DecodeString(rootHex)
	if err != nil {
		return false
	}
	p, err := merkle.ParseProof(proof)
	if err != nil {
		return false
	}
	return merkle.VerifyProof(packetBytes, p, root)
}
