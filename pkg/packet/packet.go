// Package packet implements the nanoledger packet wire format.
//
// A packet is a small hash-chained unit of data. Each packet embeds the hash
// of its own payload and the hash of the packet that logically precedes it in
// the senders chain, so a receiver can detect both corruption and gaps.
//
// The wire format is a fixed 17 byte header followed by the payload:
//
//	[0:8)   hash      truncated BLAKE2b-512 digest of the payload
//	[8:16)  prev hash hash of the previous packet, all zero for a chain root
//	[16]    critical  0 or 1
//	[17:]   payload
package packet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// HashSize is the size of a packet hash in bytes.
	HashSize = 8

	// HeaderSize is the size of the fixed packet header in bytes.
	HeaderSize = HashSize*2 + 1
)

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrInvalidInput    = errors.New("invalid input")
)

// Hash identifies a packet by the truncated digest of its payload.
type Hash [HashSize]byte

// ZeroHash is the previous hash of a chain root.
var ZeroHash Hash

// String returns the hex encoding of the hash, which is also the key the
// packet is stored under.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// ParseHash parses a hex encoded hash.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: hash: %s", ErrInvalidInput, err)
	}
	return HashFromBytes(b)
}

// HashFromBytes copies b into a Hash. b must be exactly HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf(
			"%w: hash must be %d bytes, got %d", ErrInvalidInput, HashSize, len(b),
		)
	}
	copy(h[:], b)
	return h, nil
}

// Digest returns the packet hash of the given payload.
func Digest(payload []byte) Hash {
	sum := blake2b.Sum512(payload)
	var h Hash
	copy(h[:], sum[:HashSize])
	return h
}

// Packet is a decoded packet. Packets are immutable once created.
type Packet struct {
	Hash     Hash
	PrevHash Hash
	Critical bool
	Payload  []byte
}

// New creates a packet with the given previous hash and payload.
func New(prevHash Hash, critical bool, payload []byte) Packet {
	return Packet{
		Hash:     Digest(payload),
		PrevHash: prevHash,
		Critical: critical,
		Payload:  bytes.Clone(payload),
	}
}

// Key returns the key the packet is stored under.
func (p Packet) Key() string {
	return p.Hash.String()
}

// Bytes returns the wire encoding of the packet.
func (p Packet) Bytes() []byte {
	b := make([]byte, HeaderSize+len(p.Payload))
	copy(b[0:HashSize], p.Hash[:])
	copy(b[HashSize:HashSize*2], p.PrevHash[:])
	if p.Critical {
		b[HashSize*2] = 1
	}
	copy(b[HeaderSize:], p.Payload)
	return b
}

// Encode computes the hash of payload and returns the encoded packet.
//
// prevHash must be exactly HashSize bytes.
func Encode(prevHash []byte, critical bool, payload []byte) ([]byte, error) {
	prev, err := HashFromBytes(prevHash)
	if err != nil {
		return nil, fmt.Errorf("prev hash: %w", err)
	}
	return New(prev, critical, payload).Bytes(), nil
}

// Decode decodes the given encoded packet. Decode doesn't verify the hash,
// use Verify to check the packet integrity.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf(
			"%w: %d bytes is shorter than header", ErrMalformedPacket, len(b),
		)
	}

	var p Packet
	copy(p.Hash[:], b[0:HashSize])
	copy(p.PrevHash[:], b[HashSize:HashSize*2])
	p.Critical = b[HashSize*2] == 1
	p.Payload = bytes.Clone(b[HeaderSize:])
	return p, nil
}

// VerifyResult is the outcome of verifying an encoded packet.
type VerifyResult struct {
	// ValidHash is true if the embedded hash matches the payload.
	ValidHash bool
	// ValidPrev is true if the embedded previous hash matches the expected
	// previous hash.
	ValidPrev bool
	// Hash is the hash embedded in the packet.
	Hash Hash
}

// Verify recomputes the payload hash of the encoded packet b and compares it
// to the embedded hash, and compares the embedded previous hash to
// expectedPrev.
//
// A buffer shorter than the header is never valid.
func Verify(b []byte, expectedPrev []byte) VerifyResult {
	if len(b) < HeaderSize {
		return VerifyResult{}
	}

	var res VerifyResult
	copy(res.Hash[:], b[0:HashSize])
	recomputed := Digest(b[HeaderSize:])
	res.ValidHash = recomputed == res.Hash
	res.ValidPrev = bytes.Equal(b[HashSize:HashSize*2], expectedPrev)
	return res
}
