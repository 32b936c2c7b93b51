// Copyright 2026 The UStore Authors.
//
// Package chunk implements the immutable, content-addressed byte record
// (spec §4.2) and the narrow ChunkStore interface the Prolly tree and
// UCell layers are built on.
package chunk

import (
	"encoding/binary"
	"fmt"

	"github.com/ustoredb/ustore/hash"
)

// Type identifies the kind of payload a Chunk carries. The chunk layout
// itself (type byte, length, payload) is identical across all kinds; the
// type only tells readers how to interpret the payload.
type Type byte

const (
	// TypeCell is a UCell payload (ucell package).
	TypeCell Type = iota + 1
	// TypeMeta is an internal Prolly-tree node (a sequence of MetaEntry).
	TypeMeta
	// TypeBlobLeaf is a Blob tree leaf (raw bytes).
	TypeBlobLeaf
	// TypeStringLeaf is an inline String payload.
	TypeStringLeaf
	// TypeListLeaf is a List tree leaf (length-prefixed elements).
	TypeListLeaf
	// TypeMapLeaf is a Map tree leaf (key/value pairs).
	TypeMapLeaf
	// TypeSetLeaf is a Set tree leaf (keys only).
	TypeSetLeaf
)

func (t Type) String() string {
	switch t {
	case TypeCell:
		return "Cell"
	case TypeMeta:
		return "Meta"
	case TypeBlobLeaf:
		return "BlobLeaf"
	case TypeStringLeaf:
		return "StringLeaf"
	case TypeListLeaf:
		return "ListLeaf"
	case TypeMapLeaf:
		return "MapLeaf"
	case TypeSetLeaf:
		return "SetLeaf"
	default:
		return fmt.Sprintf("Type(%d)", byte(t))
	}
}

// headerLen is the fixed [type:1][len_le32:4] prefix length.
const headerLen = 1 + 4

// Chunk is an immutable, length-prefixed, typed byte record. Its Hash is
// the content digest of the full serialized record (header + payload),
// computed once at construction and cached.
type Chunk struct {
	h       hash.Hash
	typ     Type
	payload []byte
}

// New builds a Chunk of the given type wrapping payload, computing its
// hash. payload is not copied; callers must not mutate it afterwards —
// chunks are immutable by convention, not by defensive copy, matching the
// teacher's zero-copy chunk handling.
func New(typ Type, payload []byte) Chunk {
	c := Chunk{typ: typ, payload: payload}
	c.h = hash.Of(c.serialize())
	return c
}

// FromBytes parses a raw on-disk/on-wire record (as produced by Bytes)
// back into a Chunk, verifying the embedded length matches.
func FromBytes(b []byte) (Chunk, error) {
	if len(b) < headerLen {
		return Chunk{}, fmt.Errorf("chunk: record too short: %d bytes", len(b))
	}
	typ := Type(b[0])
	length := binary.LittleEndian.Uint32(b[1:5])
	if length < 9 {
		return Chunk{}, fmt.Errorf("chunk: length field %d is smaller than the fixed header", length)
	}
	payloadLen := int(length) - 9
	if headerLen+payloadLen != len(b) {
		return Chunk{}, fmt.Errorf("chunk: length field %d does not match record size %d", length, len(b))
	}
	payload := make([]byte, payloadLen)
	copy(payload, b[headerLen:])
	c := Chunk{typ: typ, payload: payload}
	c.h = hash.Of(b)
	return c, nil
}

// serialize renders the full on-disk record: type || len_le32 || payload,
// per spec §3's "[type:1][length:4 le][payload: length-9 bytes]" — the
// length field encodes len(payload)+9, so a reader recovers payload length
// as length-9.
func (c Chunk) serialize() []byte {
	out := make([]byte, headerLen+len(c.payload))
	out[0] = byte(c.typ)
	binary.LittleEndian.PutUint32(out[1:5], uint32(9+len(c.payload)))
	copy(out[headerLen:], c.payload)
	return out
}

// Bytes returns the full serialized record.
func (c Chunk) Bytes() []byte { return c.serialize() }

// Hash returns the content digest of the full record.
func (c Chunk) Hash() hash.Hash { return c.h }

// Type returns the chunk's payload type.
func (c Chunk) Type() Type { return c.typ }

// Payload returns the chunk's payload bytes. Callers must not mutate the
// returned slice.
func (c Chunk) Payload() []byte { return c.payload }

// Size is the number of bytes the full serialized record occupies.
func (c Chunk) Size() int { return headerLen + len(c.payload) }

// Empty reports whether c is the zero Chunk (no payload, no type) — used
// by callers representing "no chunk" without an extra bool, mirroring how
// hash.Null represents "no hash".
func (c Chunk) Empty() bool { return c.typ == 0 && c.payload == nil }
