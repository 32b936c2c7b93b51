// Copyright 2026 The UStore Authors.
//
// Package tree implements the Prolly tree: a content-defined B-tree whose
// node boundaries come from a rolling hash over serialized content, so
// that equal subsequences across versions share subtrees (spec §3/§4.4-6).
package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
)

// Kind identifies which composite type's tree a Node belongs to. All
// leaves of a given tree share one Kind (spec invariant).
type Kind byte

const (
	KindBlob Kind = iota
	KindList
	KindMap
	KindSet
)

func (k Kind) leafChunkType() chunk.Type {
	switch k {
	case KindBlob:
		return chunk.TypeBlobLeaf
	case KindList:
		return chunk.TypeListLeaf
	case KindMap:
		return chunk.TypeMapLeaf
	case KindSet:
		return chunk.TypeSetLeaf
	default:
		panic(fmt.Sprintf("tree: unknown Kind %d", k))
	}
}

// MetaEntry is one summarized child reference inside an internal (Meta)
// node (spec §3).
type MetaEntry struct {
	NumLeaves     uint64
	NumElements   uint64
	TargetHash    hash.Hash
	MaxOrderedKey OrderedKey
	NumBytes      uint64
}

// MapEntry is one key/value pair inside a Map leaf.
type MapEntry struct {
	Key   []byte
	Value []byte
}

// Node is a parsed view over a chunk of Meta or leaf type (spec's
// SeqNode). Exactly one of the leaf-payload fields is populated,
// determined by IsMeta and Kind.
type Node struct {
	h    hash.Hash
	kind Kind

	// Meta node: non-nil.
	entries []MetaEntry

	// Leaf node, populated according to kind:
	blob     []byte     // KindBlob
	listVals [][]byte   // KindList
	mapVals  []MapEntry // KindMap
	setVals  [][]byte   // KindSet
}

// IsMeta reports whether this is an internal node (summarizing children)
// rather than a leaf (holding actual data).
func (n *Node) IsMeta() bool { return n.entries != nil }

// IsLeaf is the complement of IsMeta.
func (n *Node) IsLeaf() bool { return !n.IsMeta() }

// Kind reports which composite type this node's tree belongs to.
func (n *Node) Kind() Kind { return n.kind }

// Hash returns the content hash of the chunk this Node was parsed from
// (or will serialize to).
func (n *Node) Hash() hash.Hash { return n.h }

// NumEntries is the count of entries at this node's own level: child
// references for a Meta node, elements for a leaf.
func (n *Node) NumEntries() int {
	if n.IsMeta() {
		return len(n.entries)
	}
	switch n.kind {
	case KindBlob:
		return len(n.blob)
	case KindList:
		return len(n.listVals)
	case KindMap:
		return len(n.mapVals)
	case KindSet:
		return len(n.setVals)
	}
	return 0
}

// NumElements is the total count of leaf-level elements summarized by
// this node's subtree (spec: "numElements = Σ child.numElements").
func (n *Node) NumElements() uint64 {
	if n.IsLeaf() {
		return uint64(n.NumEntries())
	}
	var total uint64
	for _, e := range n.entries {
		total += e.NumElements
	}
	return total
}

// NumLeaves is the total count of leaf nodes in this node's subtree
// (spec: "numLeaves = Σ child.numLeaves").
func (n *Node) NumLeaves() uint64 {
	if n.IsLeaf() {
		return 1
	}
	var total uint64
	for _, e := range n.entries {
		total += e.NumLeaves
	}
	return total
}

// MaxOrderedKey is the largest OrderedKey summarized by this node's
// subtree (spec: "maxOrderedKey = max(child.maxOrderedKey)").
func (n *Node) MaxOrderedKey() OrderedKey {
	if n.IsMeta() {
		max := n.entries[0].MaxOrderedKey
		for _, e := range n.entries[1:] {
			max = Max(max, e.MaxOrderedKey)
		}
		return max
	}
	return n.Key(n.NumEntries() - 1)
}

// Key returns the OrderedKey of the i-th entry: for a Meta node, the
// child's summarized MaxOrderedKey; for a leaf, the per-element ordered
// key (cumulative count for List/Blob, entry key bytes for Map/Set).
func (n *Node) Key(i int) OrderedKey {
	if n.IsMeta() {
		return n.entries[i].MaxOrderedKey
	}
	switch n.kind {
	case KindBlob, KindList:
		return NumKey(uint64(i + 1))
	case KindMap:
		return ByteKey(n.mapVals[i].Key)
	case KindSet:
		return ByteKey(n.setVals[i])
	}
	panic("tree: unreachable")
}

// ChildHash returns the i-th child's target hash. Valid only on a Meta
// node.
func (n *Node) ChildHash(i int) hash.Hash {
	return n.entries[i].TargetHash
}

// GetListValue returns the i-th element's value on a List leaf.
func (n *Node) GetListValue(i int) []byte { return n.listVals[i] }

// GetMapEntry returns the i-th key/value pair on a Map leaf.
func (n *Node) GetMapEntry(i int) MapEntry { return n.mapVals[i] }

// GetSetKey returns the i-th key on a Set leaf.
func (n *Node) GetSetKey(i int) []byte { return n.setVals[i] }

// BlobBytes returns the full payload of a Blob leaf.
func (n *Node) BlobBytes() []byte { return n.blob }

// ---- construction ----

// NewMetaNode builds an internal node from already-computed child
// summaries.
func NewMetaNode(kind Kind, entries []MetaEntry) *Node {
	n := &Node{kind: kind, entries: entries}
	c := n.toChunk()
	n.h = c.Hash()
	return n
}

// NewBlobLeaf builds a Blob leaf node from raw bytes.
func NewBlobLeaf(data []byte) *Node {
	n := &Node{kind: KindBlob, blob: append([]byte(nil), data...)}
	n.h = n.toChunk().Hash()
	return n
}

// NewListLeaf builds a List leaf node from element values.
func NewListLeaf(values [][]byte) *Node {
	n := &Node{kind: KindList, listVals: values}
	n.h = n.toChunk().Hash()
	return n
}

// NewMapLeaf builds a Map leaf node from key/value pairs, which must
// already be sorted by Key (spec: "entries are sorted by key bytes
// lexicographically inside leaves").
func NewMapLeaf(entries []MapEntry) *Node {
	n := &Node{kind: KindMap, mapVals: entries}
	n.h = n.toChunk().Hash()
	return n
}

// NewSetLeaf builds a Set leaf node from keys, which must already be
// sorted.
func NewSetLeaf(keys [][]byte) *Node {
	n := &Node{kind: KindSet, setVals: keys}
	n.h = n.toChunk().Hash()
	return n
}

// ---- serialization ----

// ToChunk serializes n into a storable Chunk.
func (n *Node) ToChunk() chunk.Chunk { return n.toChunk() }

func (n *Node) toChunk() chunk.Chunk {
	if n.IsMeta() {
		return chunk.New(chunk.TypeMeta, encodeMeta(n.entries))
	}
	switch n.kind {
	case KindBlob:
		return chunk.New(chunk.TypeBlobLeaf, append([]byte(nil), n.blob...))
	case KindList:
		return chunk.New(chunk.TypeListLeaf, encodeListLeaf(n.listVals))
	case KindMap:
		return chunk.New(chunk.TypeMapLeaf, encodeMapLeaf(n.mapVals))
	case KindSet:
		return chunk.New(chunk.TypeSetLeaf, encodeSetLeaf(n.setVals))
	}
	panic("tree: unreachable")
}

// ParseNode decodes a stored Chunk back into a Node. kind must be supplied
// by the caller (e.g. from the UCell's declared value type) since the
// chunk.Type only distinguishes Meta-vs-leaf, not which composite type a
// Meta node's subtree ultimately holds.
func ParseNode(c chunk.Chunk, kind Kind) (*Node, error) {
	n := &Node{kind: kind, h: c.Hash()}
	switch c.Type() {
	case chunk.TypeMeta:
		entries, err := decodeMeta(c.Payload())
		if err != nil {
			return nil, err
		}
		n.entries = entries
	case chunk.TypeBlobLeaf:
		if kind != KindBlob {
			return nil, fmt.Errorf("tree: chunk is a Blob leaf but kind is %d", kind)
		}
		n.blob = c.Payload()
	case chunk.TypeListLeaf:
		if kind != KindList {
			return nil, fmt.Errorf("tree: chunk is a List leaf but kind is %d", kind)
		}
		vals, err := decodeListLeaf(c.Payload())
		if err != nil {
			return nil, err
		}
		n.listVals = vals
	case chunk.TypeMapLeaf:
		if kind != KindMap {
			return nil, fmt.Errorf("tree: chunk is a Map leaf but kind is %d", kind)
		}
		entries, err := decodeMapLeaf(c.Payload())
		if err != nil {
			return nil, err
		}
		n.mapVals = entries
	case chunk.TypeSetLeaf:
		if kind != KindSet {
			return nil, fmt.Errorf("tree: chunk is a Set leaf but kind is %d", kind)
		}
		keys, err := decodeSetLeaf(c.Payload())
		if err != nil {
			return nil, err
		}
		n.setVals = keys
	default:
		return nil, fmt.Errorf("tree: chunk type %s is not a tree node", c.Type())
	}
	return n, nil
}

// --- Meta encoding: [count:4][entry...] ---
// entry: [numLeaves:8][numElements:8][targetHash:20][numBytes:8][keyTag:1]
//        byte-key:   [keyLen:2][keyBytes]
//        numeric key:[num:8]

// encodeOneMetaEntry is the per-entry encoding used both inside a
// serialized Meta chunk and as rolling-hash input while chunking the
// parent level (spec §4.4: "again rolls its own hasher over the
// serialized MetaEntries").
func encodeOneMetaEntry(e MetaEntry) []byte {
	fixedLen := 8 + 8 + hash.ByteLen + 8
	var buf []byte
	fixed := make([]byte, fixedLen)
	binary.LittleEndian.PutUint64(fixed[0:8], e.NumLeaves)
	binary.LittleEndian.PutUint64(fixed[8:16], e.NumElements)
	copy(fixed[16:16+hash.ByteLen], e.TargetHash[:])
	binary.LittleEndian.PutUint64(fixed[16+hash.ByteLen:], e.NumBytes)
	buf = append(buf, fixed...)
	if e.MaxOrderedKey.IsByteKey() {
		buf = append(buf, 1)
		kb := e.MaxOrderedKey.Bytes()
		var lb [2]byte
		binary.LittleEndian.PutUint16(lb[:], uint16(len(kb)))
		buf = append(buf, lb[:]...)
		buf = append(buf, kb...)
	} else {
		buf = append(buf, 0)
		var nb [8]byte
		binary.LittleEndian.PutUint64(nb[:], e.MaxOrderedKey.Num())
		buf = append(buf, nb[:]...)
	}
	return buf
}

func encodeMeta(entries []MetaEntry) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, encodeOneMetaEntry(e)...)
	}
	return buf
}

func decodeMeta(b []byte) ([]MetaEntry, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("tree: meta payload too short")
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	entries := make([]MetaEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		fixedLen := 8 + 8 + hash.ByteLen + 8
		if len(b) < fixedLen+1 {
			return nil, fmt.Errorf("tree: truncated meta entry %d", i)
		}
		var e MetaEntry
		e.NumLeaves = binary.LittleEndian.Uint64(b[0:8])
		e.NumElements = binary.LittleEndian.Uint64(b[8:16])
		copy(e.TargetHash[:], b[16:16+hash.ByteLen])
		e.NumBytes = binary.LittleEndian.Uint64(b[16+hash.ByteLen : fixedLen])
		b = b[fixedLen:]
		tag := b[0]
		b = b[1:]
		if tag == 1 {
			if len(b) < 2 {
				return nil, fmt.Errorf("tree: truncated meta entry key length")
			}
			kl := binary.LittleEndian.Uint16(b[0:2])
			b = b[2:]
			if len(b) < int(kl) {
				return nil, fmt.Errorf("tree: truncated meta entry key bytes")
			}
			e.MaxOrderedKey = ByteKey(b[:kl])
			b = b[kl:]
		} else {
			if len(b) < 8 {
				return nil, fmt.Errorf("tree: truncated meta entry numeric key")
			}
			e.MaxOrderedKey = NumKey(binary.LittleEndian.Uint64(b[0:8]))
			b = b[8:]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// --- List leaf encoding: [count:4][len32][bytes]... ---

// encodeListItem is the per-item encoding used both inside a serialized
// List leaf chunk and as the bytes fed to the rolling hasher while
// chunking, so hash boundaries always land on item boundaries.
func encodeListItem(v []byte) []byte {
	out := make([]byte, 4+len(v))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(v)))
	copy(out[4:], v)
	return out
}

func encodeListLeaf(values [][]byte) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(values)))
	for _, v := range values {
		buf = append(buf, encodeListItem(v)...)
	}
	return buf
}

func decodeListLeaf(b []byte) ([][]byte, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("tree: list leaf too short")
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("tree: truncated list element %d length", i)
		}
		l := binary.LittleEndian.Uint32(b[0:4])
		b = b[4:]
		if len(b) < int(l) {
			return nil, fmt.Errorf("tree: truncated list element %d bytes", i)
		}
		val := make([]byte, l)
		copy(val, b[:l])
		out = append(out, val)
		b = b[l:]
	}
	return out, nil
}

// --- Map leaf encoding: [count:4][keylen16][key][vallen32][val]... ---

// encodeMapItem is the per-entry encoding used both inside a serialized
// Map leaf chunk and as rolling-hash input.
func encodeMapItem(e MapEntry) []byte {
	out := make([]byte, 2+len(e.Key)+4+len(e.Value))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(e.Key)))
	copy(out[2:2+len(e.Key)], e.Key)
	rest := out[2+len(e.Key):]
	binary.LittleEndian.PutUint32(rest[0:4], uint32(len(e.Value)))
	copy(rest[4:], e.Value)
	return out
}

func encodeMapLeaf(entries []MapEntry) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, encodeMapItem(e)...)
	}
	return buf
}

func decodeMapLeaf(b []byte) ([]MapEntry, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("tree: map leaf too short")
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	out := make([]MapEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < 2 {
			return nil, fmt.Errorf("tree: truncated map entry %d key length", i)
		}
		kl := binary.LittleEndian.Uint16(b[0:2])
		b = b[2:]
		if len(b) < int(kl) {
			return nil, fmt.Errorf("tree: truncated map entry %d key bytes", i)
		}
		key := make([]byte, kl)
		copy(key, b[:kl])
		b = b[kl:]
		if len(b) < 4 {
			return nil, fmt.Errorf("tree: truncated map entry %d value length", i)
		}
		vl := binary.LittleEndian.Uint32(b[0:4])
		b = b[4:]
		if len(b) < int(vl) {
			return nil, fmt.Errorf("tree: truncated map entry %d value bytes", i)
		}
		val := make([]byte, vl)
		copy(val, b[:vl])
		b = b[vl:]
		out = append(out, MapEntry{Key: key, Value: val})
	}
	return out, nil
}

// --- Set leaf encoding: [count:4][keylen16][key]... ---

// encodeSetItem is the per-key encoding used both inside a serialized Set
// leaf chunk and as rolling-hash input.
func encodeSetItem(k []byte) []byte {
	out := make([]byte, 2+len(k))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(k)))
	copy(out[2:], k)
	return out
}

func encodeSetLeaf(keys [][]byte) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = append(buf, encodeSetItem(k)...)
	}
	return buf
}

func decodeSetLeaf(b []byte) ([][]byte, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("tree: set leaf too short")
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < 2 {
			return nil, fmt.Errorf("tree: truncated set entry %d key length", i)
		}
		kl := binary.LittleEndian.Uint16(b[0:2])
		b = b[2:]
		if len(b) < int(kl) {
			return nil, fmt.Errorf("tree: truncated set entry %d key bytes", i)
		}
		key := make([]byte, kl)
		copy(key, b[:kl])
		out = append(out, key)
		b = b[kl:]
	}
	return out, nil
}
