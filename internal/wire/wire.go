// Package wire implements the canonical, deterministic encoding used
// both for content-addressing (BlockId, qc_id, SubstateAddress preimages)
// and for the peer-to-peer gossip envelope described in §6: a
// length-prefixed frame carrying a discriminator byte followed by the
// canonically-encoded payload.
//
// Canonical encoding is CBOR in fxamacker/cbor's canonical mode
// (cbor.CanonicalEncOptions, RFC 7049 §3.9): map keys sorted, no
// indefinite-length items, shortest-form integers. Two semantically equal values always produce byte-identical
// output, which every node-local hash and every cross-node signature
// verification in this module depends on.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnknownDiscriminator is returned by Decode when a frame's
// discriminator byte does not match any registered message kind.
var ErrUnknownDiscriminator = errors.New("wire: unknown discriminator")

// ErrFrameTooLarge guards against a corrupt or hostile length prefix.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// MaxFrameSize bounds a single gossip frame's payload against a
// corrupt or hostile length prefix.
const MaxFrameSize = 16 << 20 // 16 MiB

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: invalid canonical encoding options: %v", err))
	}
	return mode
}

// Marshal canonically encodes v. Used both for wire payloads and for
// content-addressing preimages (hash the output to get a stable id).
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a canonically-encoded payload into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// Discriminator identifies a gossip message's payload type.
type Discriminator byte

// Frame is one length-prefixed gossip message: a discriminator byte
// followed by the canonical encoding of its payload.
type Frame struct {
	Kind    Discriminator
	Payload []byte
}

// WriteFrame writes length-prefixed(kind || payload) to w: a
// big-endian uint32 length, then the discriminator byte, then payload.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Payload)+1))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(f.Kind)}); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return Frame{}, fmt.Errorf("wire: empty frame")
	}
	if n > MaxFrameSize+1 { // n counts the discriminator byte as well as the payload
		return Frame{}, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	return Frame{Kind: Discriminator(body[0]), Payload: body[1:]}, nil
}

// EncodeFrame canonically encodes payload and wraps it with kind as a
// single byte slice (no length prefix), for in-process and testing use.
func EncodeFrame(kind Discriminator, payload interface{}) ([]byte, error) {
	body, err := Marshal(payload)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, len(body)+1))
	buf.WriteByte(byte(kind))
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeFrame splits a kind-prefixed byte slice and decodes its payload
// into v, failing with ErrUnknownDiscriminator if kind is not in known.
func DecodeFrame(data []byte, known map[Discriminator]bool, v interface{}) (Discriminator, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("wire: frame too short")
	}
	kind := Discriminator(data[0])
	if known != nil && !known[kind] {
		return kind, ErrUnknownDiscriminator
	}
	if err := Unmarshal(data[1:], v); err != nil {
		return kind, err
	}
	return kind, nil
}

// GossipTopic returns the "consensus-<start>-<end>" or
// "transactions-<start>-<end>" topic name for a shard-group range, per §6.
func GossipTopic(prefix string, shardStart, shardEnd int) string {
	return fmt.Sprintf("%s-%d-%d", prefix, shardStart, shardEnd)
}

const (
	TopicConsensus    = "consensus"
	TopicTransactions = "transactions"
)
