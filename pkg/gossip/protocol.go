package gossip

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/andydunstall/nanoledger/pkg/packet"
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrCorruptionDetected = errors.New("corruption detected")
)

type messageType uint8

const (
	messageTypeAnnounce messageType = iota + 1
	messageTypeRequest
	messageTypeResponse
)

func (t messageType) String() string {
	switch t {
	case messageTypeAnnounce:
		return "announce"
	case messageTypeRequest:
		return "request"
	case messageTypeResponse:
		return "response"
	default:
		return "unknown"
	}
}

const (
	supportedVersion uint8 = 0

	messageHeaderSize = 2
)

// message is a signed gossip message. Each message is encoded in a single
// datagram as:
//
//	type (1 byte) | version (1 byte) | msgpack body
//
// The signature covers the encoding of the message with an empty signature.
type message interface {
	messageType() messageType
	publicKey() []byte
	signature() []byte
	// setSignature sets the public key and signature fields.
	setSignature(publicKey, signature []byte)
	// validate checks the field lengths of a decoded message.
	validate() error
}

// Announce advertises the senders chain tip.
type Announce struct {
	NodeID    string `codec:"node_id"`
	LastHash  []byte `codec:"last_hash"`
	Timestamp int64  `codec:"timestamp"`
	PublicKey []byte `codec:"public_key"`
	Signature []byte `codec:"signature"`
}

func (m *Announce) messageType() messageType {
	return messageTypeAnnounce
}

func (m *Announce) publicKey() []byte {
	return m.PublicKey
}

func (m *Announce) signature() []byte {
	return m.Signature
}

func (m *Announce) setSignature(publicKey, signature []byte) {
	m.PublicKey = publicKey
	m.Signature = signature
}

func (m *Announce) validate() error {
	if m.NodeID == "" {
		return fmt.Errorf("missing node id")
	}
	if len(m.LastHash) != packet.HashSize {
		return fmt.Errorf("invalid last hash size: %d", len(m.LastHash))
	}
	return validateSignatureFields(m)
}

// Request asks the receiver for the packet with the given hash.
type Request struct {
	RequesterID string `codec:"requester_id"`
	WantHash    []byte `codec:"want_hash"`
	PublicKey   []byte `codec:"public_key"`
	Signature   []byte `codec:"signature"`
}

func (m *Request) messageType() messageType {
	return messageTypeRequest
}

func (m *Request) publicKey() []byte {
	return m.PublicKey
}

func (m *Request) signature() []byte {
	return m.Signature
}

func (m *Request) setSignature(publicKey, signature []byte) {
	m.PublicKey = publicKey
	m.Signature = signature
}

func (m *Request) validate() error {
	if m.RequesterID == "" {
		return fmt.Errorf("missing requester id")
	}
	if len(m.WantHash) != packet.HashSize {
		return fmt.Errorf("invalid want hash size: %d", len(m.WantHash))
	}
	return validateSignatureFields(m)
}

// Response delivers a requested packet. Payload contains the full encoded
// packet, including its header, so the receiver learns the previous hash.
type Response struct {
	ResponderID string `codec:"responder_id"`
	Hash        []byte `codec:"hash"`
	Payload     []byte `codec:"payload"`
	PublicKey   []byte `codec:"public_key"`
	Signature   []byte `codec:"signature"`
}

func (m *Response) messageType() messageType {
	return messageTypeResponse
}

func (m *Response) publicKey() []byte {
	return m.PublicKey
}

func (m *Response) signature() []byte {
	return m.Signature
}

func (m *Response) setSignature(publicKey, signature []byte) {
	m.PublicKey = publicKey
	m.Signature = signature
}

func (m *Response) validate() error {
	if m.ResponderID == "" {
		return fmt.Errorf("missing responder id")
	}
	if len(m.Hash) != packet.HashSize {
		return fmt.Errorf("invalid hash size: %d", len(m.Hash))
	}
	if len(m.Payload) < packet.HeaderSize {
		return fmt.Errorf("payload shorter than packet header: %d", len(m.Payload))
	}
	return validateSignatureFields(m)
}

func validateSignatureFields(m message) error {
	if len(m.publicKey()) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(m.publicKey()))
	}
	if len(m.signature()) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature size: %d", len(m.signature()))
	}
	return nil
}

var msgpackHandle codec.MsgpackHandle

func encodeMessage(m message) ([]byte, error) {
	// Add fixed header.
	var buf bytes.Buffer
	_ = buf.WriteByte(uint8(m.messageType()))
	_ = buf.WriteByte(supportedVersion)

	enc := codec.NewEncoder(&buf, &msgpackHandle)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeMessage decodes and validates a received datagram. The signature is
// not verified.
func decodeMessage(b []byte) (message, error) {
	if len(b) < messageHeaderSize {
		return nil, fmt.Errorf("%w: datagram too small: %d", ErrMalformedMessage, len(b))
	}

	messageType := messageType(b[0])
	version := b[1]
	if version != supportedVersion {
		return nil, fmt.Errorf("%w: unsupported version: %d", ErrMalformedMessage, version)
	}

	var m message
	switch messageType {
	case messageTypeAnnounce:
		m = &Announce{}
	case messageTypeRequest:
		m = &Request{}
	case messageTypeResponse:
		m = &Response{}
	default:
		return nil, fmt.Errorf("%w: unsupported message type: %d", ErrMalformedMessage, b[0])
	}

	dec := codec.NewDecoderBytes(b[messageHeaderSize:], &msgpackHandle)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %s", ErrMalformedMessage, messageType, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrMalformedMessage, messageType, err)
	}
	return m, nil
}

// signingBytes returns the bytes covered by the message signature, which is
// the encoding of the message with the signature field cleared.
func signingBytes(m message) ([]byte, error) {
	publicKey, signature := m.publicKey(), m.signature()
	m.setSignature(publicKey, nil)
	defer m.setSignature(publicKey, signature)

	return encodeMessage(m)
}

// signMessage signs the message with the given key and returns its encoding.
func signMessage(m message, key ed25519.PrivateKey) ([]byte, error) {
	m.setSignature(key.Public().(ed25519.PublicKey), nil)

	b, err := signingBytes(m)
	if err != nil {
		return nil, err
	}
	m.setSignature(m.publicKey(), ed25519.Sign(key, b))

	return encodeMessage(m)
}

// verifyMessage verifies the message signature against its embedded public
// key.
func verifyMessage(m message) error {
	if len(m.publicKey()) != ed25519.PublicKeySize {
		return ErrInvalidSignature
	}
	b, err := signingBytes(m)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if !ed25519.Verify(m.publicKey(), b, m.signature()) {
		return ErrInvalidSignature
	}
	return nil
}
