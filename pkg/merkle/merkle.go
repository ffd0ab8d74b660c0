// Package merkle builds binary SHA-256 Merkle trees over batches of blobs and
// produces and verifies inclusion proofs.
//
// When a level has an odd number of nodes, the last node is paired with
// itself rather than promoted unchanged. Proofs depend on this so it must not
// change.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

// HashSize is the size of each node digest in bytes.
const HashSize = sha256.Size

var (
	ErrEmptyBatch      = errors.New("empty batch")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Tree is an immutable Merkle tree.
type Tree struct {
	leaves [][]byte
	// levels contains the digests of each level, where levels[0] contains
	// the leaf digests and the last level contains only the root.
	levels [][][]byte
}

// New builds a tree over the given ordered leaves. The leaves are copied so
// the caller may reuse them.
func New(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyBatch
	}

	t := &Tree{
		leaves: make([][]byte, 0, len(leaves)),
	}
	level := make([][]byte, 0, len(leaves))
	for _, leaf := range leaves {
		t.leaves = append(t.leaves, bytes.Clone(leaf))
		level = append(level, digest(leaf))
	}
	t.levels = append(t.levels, level)

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, digest(left, right))
		}
		t.levels = append(t.levels, next)
		level = next
	}

	return t, nil
}

// Root returns the root digest.
func (t *Tree) Root() []byte {
	top := t.levels[len(t.levels)-1]
	return bytes.Clone(top[0])
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.leaves)
}

// Leaf returns the leaf at the given index.
func (t *Tree) Leaf(index int) ([]byte, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return bytes.Clone(t.leaves[index]), nil
}

// Proof returns the inclusion proof for the leaf at the given index.
func (t *Tree) Proof(index int) (Proof, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	proof := make(Proof, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		isRight := index%2 == 1

		var sibling int
		var position Position
		if isRight {
			sibling = index - 1
			position = Left
		} else {
			sibling = index + 1
			position = Right
		}
		// A node without a real sibling was paired with itself.
		if sibling >= len(level) {
			sibling = index
		}

		proof = append(proof, Entry{
			Position: position,
			Hash:     bytes.Clone(level[sibling]),
		})
		index /= 2
	}
	return proof, nil
}

// VerifyProof returns true if folding the digest of leaf through proof
// results in root. A malformed proof never verifies.
func VerifyProof(leaf []byte, proof Proof, root []byte) bool {
	computed := digest(leaf)
	for _, entry := range proof {
		if len(entry.Hash) != HashSize {
			return false
		}
		switch entry.Position {
		case Left:
			computed = digest(entry.Hash, computed)
		case Right:
			computed = digest(computed, entry.Hash)
		default:
			return false
		}
	}
	return bytes.Equal(computed, root)
}

func digest(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum(nil)
}
