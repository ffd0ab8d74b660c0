package merkle

import (
	"encoding/hex"
	"fmt"
)

// Position is the side the sibling digest is on when folding a proof entry.
type Position string

const (
	Left  Position = "left"
	Right Position = "right"
)

// Entry is a single step in an inclusion proof.
type Entry struct {
	Position Position
	Hash     []byte
}

// Proof is an inclusion proof, ordered from the leaf level up to the level
// below the root.
type Proof []Entry

// HexEntry is the exchange format of a proof entry.
type HexEntry struct {
	Position Position `json:"position" yaml:"position"`
	Hash     string   `json:"hash" yaml:"hash"`
}

// Hex returns the proof in its exchange format.
func (p Proof) Hex() []HexEntry {
	entries := make([]HexEntry, 0, len(p))
	for _, e := range p {
		entries = append(entries, HexEntry{
			Position: e.Position,
			Hash:     hex.EncodeToString(e.Hash),
		})
	}
	return entries
}

// ParseProof parses a proof from its exchange format.
func ParseProof(entries []HexEntry) (Proof, error) {
	proof := make(Proof, 0, len(entries))
	for i, e := range entries {
		if e.Position != Left && e.Position != Right {
			return nil, fmt.Errorf("entry %d: invalid position: %q", i, e.Position)
		}
		b, err := hex.DecodeString(e.Hash)
		if err != nil {
			return nil, fmt.Errorf("entry %d: hash: %w", i, err)
		}
		if len(b) != HashSize {
			return nil, fmt.Errorf("entry %d: hash must be %d bytes", i, HashSize)
		}
		proof = append(proof, Entry{
			Position: e.Position,
			Hash:     b,
		})
	}
	return proof, nil
}
