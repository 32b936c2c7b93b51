// Copyright 2026 The UStore Authors.
//
// Package ucell implements UCell, the versioned metadata record that
// anchors a value's chunked representation into the history DAG (spec
// §4.7/C10). A UCell's own chunk hash is its version identifier.
package ucell

import (
	"encoding/binary"
	"fmt"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/ustoreerr"
)

// UType identifies which composite type a UCell's dataHash points at.
type UType byte

const (
	UTypeBlob UType = iota + 1
	UTypeString
	UTypeList
	UTypeMap
	UTypeSet
)

func (t UType) String() string {
	switch t {
	case UTypeBlob:
		return "Blob"
	case UTypeString:
		return "String"
	case UTypeList:
		return "List"
	case UTypeMap:
		return "Map"
	case UTypeSet:
		return "Set"
	default:
		return fmt.Sprintf("UType(%d)", byte(t))
	}
}

const flagMerged = 1 << 0

// UCell is the immutable payload of a Cell-typed chunk: version metadata
// forming a Git-style two-parent history DAG (spec §3/§4.7).
type UCell struct {
	h        hash.Hash
	typ      UType
	dataHash hash.Hash
	preHash1 hash.Hash
	preHash2 hash.Hash
	key      []byte
	ctx      []byte
}

// Spec bundles the fields needed to create a new UCell (spec §4.7:
// "Creation takes {type, dataHash, preHash1, preHash2 or kNull, key, ctx}").
type Spec struct {
	Type     UType
	DataHash hash.Hash
	PreHash1 hash.Hash
	PreHash2 hash.Hash // hash.Null unless this is a merge
	Key      []byte
	Ctx      []byte
}

// Create serializes spec into a Cell chunk, writes it through loader, and
// returns the resulting UCell. The chunk's hash is the new version.
func Create(spec Spec, loader *chunk.Loader) (*UCell, error) {
	if len(spec.Key) > 1<<16-1 {
		return nil, ustoreerr.New(ustoreerr.InvalidParameters, "ucell: key too long")
	}
	u := &UCell{
		typ:      spec.Type,
		dataHash: spec.DataHash,
		preHash1: spec.PreHash1,
		preHash2: spec.PreHash2,
		key:      append([]byte(nil), spec.Key...),
		ctx:      append([]byte(nil), spec.Ctx...),
	}
	c := chunk.New(chunk.TypeCell, u.encode())
	if err := loader.Put(c); err != nil {
		return nil, ustoreerr.Wrap(ustoreerr.FailedCreateUCell, err)
	}
	u.h = c.Hash()
	return u, nil
}

// Load decodes the UCell stored at version h.
func Load(h hash.Hash, loader *chunk.Loader) (*UCell, error) {
	c, ok, err := loader.Get(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ustoreerr.ErrUCellNotFound
	}
	if c.Type() != chunk.TypeCell {
		return nil, ustoreerr.New(ustoreerr.TypeMismatch, "ucell: chunk is not a Cell")
	}
	u, err := decode(c.Payload())
	if err != nil {
		return nil, err
	}
	u.h = h
	return u, nil
}

// Version returns this UCell's chunk hash, i.e. its version identifier.
func (u *UCell) Version() hash.Hash { return u.h }

// Type reports which composite type DataHash addresses.
func (u *UCell) Type() UType { return u.typ }

// DataHash addresses the root chunk of the value (the Prolly tree root
// for Blob/List/Map/Set, or the inline String leaf chunk).
func (u *UCell) DataHash() hash.Hash { return u.dataHash }

// PreHash1 is the first parent version (or hash.Null for a root UCell).
func (u *UCell) PreHash1() hash.Hash { return u.preHash1 }

// PreHash2 is the second parent version, only non-null for a merge.
func (u *UCell) PreHash2() hash.Hash { return u.preHash2 }

// Merged reports whether this UCell is the result of a merge (spec
// invariant: merged == (preHash2 != kNull)).
func (u *UCell) Merged() bool { return u.preHash2 != hash.Null }

// Key is the user key this UCell versions.
func (u *UCell) Key() []byte { return u.key }

// Ctx is caller-defined opaque context bytes.
func (u *UCell) Ctx() []byte { return u.ctx }

// encode renders the Cell chunk payload:
// [type:1][flags:1][preHash1:20][preHash2:20][dataHash:20][keyLen:2][key][ctx...]
func (u *UCell) encode() []byte {
	var flags byte
	if u.Merged() {
		flags |= flagMerged
	}
	fixedLen := 1 + 1 + hash.ByteLen*3 + 2
	buf := make([]byte, fixedLen+len(u.key)+len(u.ctx))
	buf[0] = byte(u.typ)
	buf[1] = flags
	off := 2
	copy(buf[off:off+hash.ByteLen], u.preHash1[:])
	off += hash.ByteLen
	copy(buf[off:off+hash.ByteLen], u.preHash2[:])
	off += hash.ByteLen
	copy(buf[off:off+hash.ByteLen], u.dataHash[:])
	off += hash.ByteLen
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(u.key)))
	off += 2
	copy(buf[off:off+len(u.key)], u.key)
	off += len(u.key)
	copy(buf[off:], u.ctx)
	return buf
}

func decode(b []byte) (*UCell, error) {
	fixedLen := 1 + 1 + hash.ByteLen*3 + 2
	if len(b) < fixedLen {
		return nil, ustoreerr.New(ustoreerr.ReadFailed, "ucell: payload too short")
	}
	u := &UCell{typ: UType(b[0])}
	off := 2
	copy(u.preHash1[:], b[off:off+hash.ByteLen])
	off += hash.ByteLen
	copy(u.preHash2[:], b[off:off+hash.ByteLen])
	off += hash.ByteLen
	copy(u.dataHash[:], b[off:off+hash.ByteLen])
	off += hash.ByteLen
	keyLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+keyLen {
		return nil, ustoreerr.New(ustoreerr.ReadFailed, "ucell: truncated key")
	}
	u.key = append([]byte(nil), b[off:off+keyLen]...)
	off += keyLen
	u.ctx = append([]byte(nil), b[off:]...)
	return u, nil
}
