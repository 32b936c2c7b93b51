package tree

import (
	"bytes"
	"encoding/binary"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/rollinghash"
)

// Builder (re)chunks a flat leaf-level item sequence into a Prolly tree,
// writing every produced chunk through a Loader (spec §4.4/C7). It
// exposes two ways to produce a tree:
//
//   - BuildBlob/BuildList/BuildMap/BuildSet rechunk a value's entire
//     sequence from scratch, used the first time a value is created.
//   - Splice (and its typed wrappers SpliceBlob/SpliceList/
//     SpliceMapEntry/SpliceSetKey) takes the {rootHash, position,
//     num_delete, insert_segments} edit spec directly: it descends two
//     cursors to the edit's boundaries, rechunks only the leaf run the
//     edit actually touches, and splices the untouched MetaEntries on
//     both sides back in verbatim — so an edit touching O(1) elements
//     writes O(log n) new chunks, never decoding the chunks in between.
type Builder struct {
	loader  *chunk.Loader
	kind    Kind
	pattern uint32
	window  uint32
}

// NewBuilder constructs a Builder over loader using the default rolling
// hash parameters (spec §4.4).
func NewBuilder(loader *chunk.Loader, kind Kind) *Builder {
	return &Builder{loader: loader, kind: kind, pattern: rollinghash.DefaultPattern, window: rollinghash.DefaultWindow}
}

// WithParams overrides the rolling hash pattern/window, for tests that
// want smaller expected chunk sizes.
func (b *Builder) WithParams(pattern, window uint32) *Builder {
	b2 := *b
	b2.pattern = pattern
	b2.window = window
	return &b2
}

func (b *Builder) newHasher() *rollinghash.Hasher { return rollinghash.New(b.pattern, b.window) }

type elem struct {
	enc []byte
	key OrderedKey
}

// splitRuns groups items into chunk runs using the rolling-hash boundary
// predicate. The predicate is checked after an item's full encoded bytes
// have been fed, so a chunk boundary always coincides with an item
// boundary and never splits an item's bytes across two chunks.
func (b *Builder) splitRuns(items []elem) [][2]int {
	if len(items) == 0 {
		return nil
	}
	var runs [][2]int
	h := b.newHasher()
	start := 0
	for i, it := range items {
		boundary := false
		for _, by := range it.enc {
			if h.HashByte(by) {
				boundary = true
			}
		}
		if boundary || i == len(items)-1 {
			runs = append(runs, [2]int{start, i + 1})
			start = i + 1
			h.Reset()
		}
	}
	return runs
}

// leafPayload concatenates items' encoded bytes into a leaf chunk's
// payload: a bare concatenation for Blob (each item is one raw byte), a
// count-prefixed concatenation for List/Map/Set (matching
// encodeListLeaf/encodeMapLeaf/encodeSetLeaf's framing).
func (b *Builder) leafPayload(items []elem) []byte {
	if b.kind == KindBlob {
		buf := make([]byte, 0, len(items))
		for _, it := range items {
			buf = append(buf, it.enc...)
		}
		return buf
	}
	buf := make([]byte, 4, 4+len(items)*8)
	binary.LittleEndian.PutUint32(buf, uint32(len(items)))
	for _, it := range items {
		buf = append(buf, it.enc...)
	}
	return buf
}

// buildLeaf writes items as one leaf chunk and parses it back into a
// Node, so the chunk's typed fields (blob/listVals/mapVals/setVals) are
// populated directly from what was just serialized rather than tracked
// separately alongside the []elem bookkeeping.
func (b *Builder) buildLeaf(items []elem) (*Node, error) {
	c := chunk.New(b.kind.leafChunkType(), b.leafPayload(items))
	if err := b.loader.Put(c); err != nil {
		return nil, err
	}
	return ParseNode(c, b.kind)
}

// leafEntries splits items into rolling-hash-bounded runs and writes one
// leaf chunk per run, returning one MetaEntry per leaf. An empty items
// returns no entries at all (the caller decides whether that means "the
// whole value is empty" or "this edit deleted everything on this side").
func (b *Builder) leafEntries(items []elem) ([]MetaEntry, error) {
	if len(items) == 0 {
		return nil, nil
	}
	runs := b.splitRuns(items)
	entries := make([]MetaEntry, 0, len(runs))
	for _, r := range runs {
		leaf, err := b.buildLeaf(items[r[0]:r[1]])
		if err != nil {
			return nil, err
		}
		entries = append(entries, MetaEntry{
			NumLeaves:     1,
			NumElements:   uint64(r[1] - r[0]),
			TargetHash:    leaf.Hash(),
			MaxOrderedKey: items[r[1]-1].key,
			NumBytes:      uint64(leaf.ToChunk().Size()),
		})
	}
	return entries, nil
}

// metaLevel re-chunks a flat entries sequence one level up: it groups
// entries into rolling-hash-bounded runs, wraps each run as a Meta node,
// and returns one summarizing MetaEntry per resulting node (spec §4.4
// step 5, "the builder again rolls its own hasher over the serialized
// MetaEntries").
func (b *Builder) metaLevel(entries []MetaEntry) ([]MetaEntry, error) {
	metaItems := make([]elem, len(entries))
	for i, e := range entries {
		metaItems[i] = elem{enc: encodeOneMetaEntry(e), key: e.MaxOrderedKey}
	}
	runs := b.splitRuns(metaItems)
	next := make([]MetaEntry, 0, len(runs))
	for _, r := range runs {
		entry, err := b.wrapEntries(entries[r[0]:r[1]])
		if err != nil {
			return nil, err
		}
		next = append(next, entry)
	}
	return next, nil
}

// wrapEntries writes entries as a single Meta node and returns its
// summarizing MetaEntry. Used both by metaLevel (one run of entries
// grouped by the rolling hash) and by Splice's per-level splicing (one
// node directly replacing the old node at that level, without
// re-deciding chunk boundaries for the entries it verbatim-reuses).
func (b *Builder) wrapEntries(entries []MetaEntry) (MetaEntry, error) {
	node := NewMetaNode(b.kind, entries)
	c := node.ToChunk()
	if err := b.loader.Put(c); err != nil {
		return MetaEntry{}, err
	}
	var numLeaves, numElements uint64
	for _, e := range entries {
		numLeaves += e.NumLeaves
		numElements += e.NumElements
	}
	return MetaEntry{
		NumLeaves:     numLeaves,
		NumElements:   numElements,
		TargetHash:    node.Hash(),
		MaxOrderedKey: entries[len(entries)-1].MaxOrderedKey,
		NumBytes:      uint64(c.Size()),
	}, nil
}

// finish repeatedly applies metaLevel to entries until exactly one
// remains, whose TargetHash is the new root (spec §4.4 step 5). An
// entries-less result means the whole value is now empty.
func (b *Builder) finish(entries []MetaEntry) (hash.Hash, error) {
	if len(entries) == 0 {
		leaf, err := b.buildLeaf(nil)
		if err != nil {
			return hash.Hash{}, err
		}
		return leaf.Hash(), nil
	}
	var err error
	for len(entries) > 1 {
		entries, err = b.metaLevel(entries)
		if err != nil {
			return hash.Hash{}, err
		}
	}
	return entries[0].TargetHash, nil
}

func (b *Builder) build(items []elem) (hash.Hash, error) {
	entries, err := b.leafEntries(items)
	if err != nil {
		return hash.Hash{}, err
	}
	return b.finish(entries)
}

// BuildBlob builds a tree over data, one element per byte (spec: for
// Blob, OrderedKey is the cumulative byte-count prefix).
func (b *Builder) BuildBlob(data []byte) (hash.Hash, error) {
	items := make([]elem, len(data))
	for i := range data {
		items[i] = elem{enc: data[i : i+1], key: NumKey(uint64(i + 1))}
	}
	return b.build(items)
}

// BuildList builds a tree over values, one element per list entry.
func (b *Builder) BuildList(values [][]byte) (hash.Hash, error) {
	items := make([]elem, len(values))
	for i, v := range values {
		items[i] = elem{enc: encodeListItem(v), key: NumKey(uint64(i + 1))}
	}
	return b.build(items)
}

// BuildMap builds a tree over entries, which must already be sorted by
// Key (spec: "entries are sorted by key bytes lexicographically").
func (b *Builder) BuildMap(entries []MapEntry) (hash.Hash, error) {
	items := make([]elem, len(entries))
	for i, e := range entries {
		items[i] = elem{enc: encodeMapItem(e), key: ByteKey(e.Key)}
	}
	return b.build(items)
}

// BuildSet builds a tree over keys, which must already be sorted.
func (b *Builder) BuildSet(keys [][]byte) (hash.Hash, error) {
	items := make([]elem, len(keys))
	for i, k := range keys {
		items[i] = elem{enc: encodeSetItem(k), key: ByteKey(k)}
	}
	return b.build(items)
}

// ---- incremental splice ----

// nodeElems re-encodes a leaf node's own entries in [lo, hi) back into
// []elem, so they can be recombined with inserted items and re-chunked
// by leafEntries without decoding anything beyond this one leaf.
func nodeElems(n *Node, lo, hi int) []elem {
	out := make([]elem, 0, hi-lo)
	switch n.kind {
	case KindBlob:
		for i := lo; i < hi; i++ {
			out = append(out, elem{enc: n.blob[i : i+1], key: NumKey(uint64(i + 1))})
		}
	case KindList:
		for i := lo; i < hi; i++ {
			out = append(out, elem{enc: encodeListItem(n.listVals[i]), key: NumKey(uint64(i + 1))})
		}
	case KindMap:
		for i := lo; i < hi; i++ {
			e := n.mapVals[i]
			out = append(out, elem{enc: encodeMapItem(e), key: ByteKey(e.Key)})
		}
	case KindSet:
		for i := lo; i < hi; i++ {
			out = append(out, elem{enc: encodeSetItem(n.setVals[i]), key: ByteKey(n.setVals[i])})
		}
	}
	return out
}

// assignPositionalKeys renumbers items' NumKeys sequentially starting at
// base+1. Blob/List splices apply it to the rechunked leaf run only:
// MetaEntries reused verbatim to the right of the edit keep the
// MaxOrderedKey they had before it, so after a size-changing edit those
// keys no longer equal the cumulative element count. Map/Set keys are
// content-derived and never need this.
func assignPositionalKeys(items []elem, base uint64) {
	for i := range items {
		items[i].key = NumKey(base + uint64(i) + 1)
	}
}

func joinMeta(a, b, c []MetaEntry) []MetaEntry {
	out := make([]MetaEntry, 0, len(a)+len(b)+len(c))
	out = append(out, a...)
	out = append(out, b...)
	out = append(out, c...)
	return out
}

// splicer carries one Splice call's state through its recursive descent.
type splicer struct {
	b       *Builder
	left    *Cursor
	right   *Cursor
	insert  []elem
	leftPos uint64 // absolute position of left, only meaningful for Blob/List
}

func (s *splicer) positional() bool { return s.b.kind == KindBlob || s.b.kind == KindList }

// run walks left/right in lockstep from level down to the leaves,
// returning the new MetaEntry(ies) that should replace whatever the two
// cursors summarized at level in the parent's entries (or, at level 0,
// the new tree's top-level entries). Sibling entries outside
// [leftIdx, rightIdx) at every level are spliced back in verbatim,
// never loaded.
func (s *splicer) run(level int) ([]MetaEntry, error) {
	leftNode, leftIdx := s.left.AtLevel(level)
	rightNode, rightIdx := s.right.AtLevel(level)

	if leftNode.IsLeaf() {
		prefix := nodeElems(leftNode, 0, leftIdx)
		suffix := nodeElems(rightNode, rightIdx, rightNode.NumEntries())
		combined := make([]elem, 0, len(prefix)+len(s.insert)+len(suffix))
		combined = append(combined, prefix...)
		combined = append(combined, s.insert...)
		combined = append(combined, suffix...)
		if s.positional() {
			assignPositionalKeys(combined, s.leftPos)
		}
		return s.b.leafEntries(combined)
	}

	var merged []MetaEntry
	if leftNode.Hash() == rightNode.Hash() && leftIdx == rightIdx {
		child, err := s.run(level + 1)
		if err != nil {
			return nil, err
		}
		merged = joinMeta(leftNode.entries[:leftIdx], child, leftNode.entries[leftIdx+1:])
	} else {
		leftBubble, err := s.runPrefix(level + 1)
		if err != nil {
			return nil, err
		}
		rightBubble, err := s.runSuffix(level + 1)
		if err != nil {
			return nil, err
		}
		merged = joinMeta(leftNode.entries[:leftIdx], joinMeta(leftBubble, rightBubble, nil), rightNode.entries[rightIdx+1:])
	}
	return s.wrapIfAny(merged)
}

// runPrefix walks only the left cursor's own chain from level down to
// its leaf, keeping everything up to and including left's position plus
// the inserted items (appended exactly once, at the leaf).
func (s *splicer) runPrefix(level int) ([]MetaEntry, error) {
	node, idx := s.left.AtLevel(level)
	if node.IsLeaf() {
		prefix := nodeElems(node, 0, idx)
		combined := make([]elem, 0, len(prefix)+len(s.insert))
		combined = append(combined, prefix...)
		combined = append(combined, s.insert...)
		if s.positional() {
			assignPositionalKeys(combined, s.leftPos)
		}
		return s.b.leafEntries(combined)
	}
	child, err := s.runPrefix(level + 1)
	if err != nil {
		return nil, err
	}
	return s.wrapIfAny(joinMeta(node.entries[:idx], child, nil))
}

// runSuffix walks only the right cursor's own chain from level down to
// its leaf, keeping everything from right's position onward (no
// inserted items — those were already placed by runPrefix).
func (s *splicer) runSuffix(level int) ([]MetaEntry, error) {
	node, idx := s.right.AtLevel(level)
	if node.IsLeaf() {
		suffix := nodeElems(node, idx, node.NumEntries())
		if s.positional() {
			assignPositionalKeys(suffix, s.leftPos+uint64(len(s.insert)))
		}
		return s.b.leafEntries(suffix)
	}
	child, err := s.runSuffix(level + 1)
	if err != nil {
		return nil, err
	}
	return s.wrapIfAny(joinMeta(nil, child, node.entries[idx+1:]))
}

// wrapIfAny wraps a non-empty merged entries list as one new Meta node
// (replacing, 1-for-1, the node that used to occupy this slot), or
// returns no entries at all if the merge emptied out completely.
func (s *splicer) wrapIfAny(merged []MetaEntry) ([]MetaEntry, error) {
	if len(merged) == 0 {
		return nil, nil
	}
	entry, err := s.b.wrapEntries(merged)
	if err != nil {
		return nil, err
	}
	return []MetaEntry{entry}, nil
}

// Splice rewrites the tree rooted at left/right's shared root over the
// half-open range [left, right), replacing it with insert (the edit-spec
// {position, num_delete, insert_segments} of spec §4.4). left and right
// must be cursors into the same tree, with right at or after left.
func (b *Builder) Splice(left, right *Cursor, insert []elem) (hash.Hash, error) {
	s := &splicer{b: b, left: left, right: right, insert: insert}
	if s.positional() {
		s.leftPos = left.Index()
	}
	entries, err := s.run(0)
	if err != nil {
		return hash.Hash{}, err
	}
	return b.finish(entries)
}

// SpliceBlob replaces the del bytes starting at pos with insert.
func (b *Builder) SpliceBlob(root hash.Hash, pos, del uint64, insert []byte) (hash.Hash, error) {
	left, err := AtIndex(root, pos, KindBlob, b.loader)
	if err != nil {
		return hash.Hash{}, err
	}
	right, err := AtIndex(root, pos+del, KindBlob, b.loader)
	if err != nil {
		return hash.Hash{}, err
	}
	items := make([]elem, len(insert))
	for i := range insert {
		items[i] = elem{enc: insert[i : i+1]}
	}
	return b.Splice(left, right, items)
}

// SpliceList replaces the del elements starting at pos with insert.
func (b *Builder) SpliceList(root hash.Hash, pos, del uint64, insert [][]byte) (hash.Hash, error) {
	left, err := AtIndex(root, pos, KindList, b.loader)
	if err != nil {
		return hash.Hash{}, err
	}
	right, err := AtIndex(root, pos+del, KindList, b.loader)
	if err != nil {
		return hash.Hash{}, err
	}
	items := make([]elem, len(insert))
	for i, v := range insert {
		items[i] = elem{enc: encodeListItem(v)}
	}
	return b.Splice(left, right, items)
}

// SpliceMapEntry inserts or updates key's value, or (remove=true)
// deletes key if present — exactly one entry changes, so only the one
// leaf run it falls in and the O(log n) nodes above it are rewritten.
func (b *Builder) SpliceMapEntry(root hash.Hash, key, value []byte, remove bool) (hash.Hash, error) {
	bk := ByteKey(key)
	left, err := AtKey(root, bk, KindMap, b.loader)
	if err != nil {
		return hash.Hash{}, err
	}
	right := left.Clone()
	if !right.IsEnd() && bytes.Equal(right.CurrentMapEntry().Key, key) {
		if _, err := right.Advance(true); err != nil {
			return hash.Hash{}, err
		}
	}
	var insert []elem
	if !remove {
		insert = []elem{{enc: encodeMapItem(MapEntry{Key: key, Value: value}), key: bk}}
	}
	return b.Splice(left, right, insert)
}

// SpliceSetKey inserts key, or (remove=true) deletes it if present.
func (b *Builder) SpliceSetKey(root hash.Hash, key []byte, remove bool) (hash.Hash, error) {
	bk := ByteKey(key)
	left, err := AtKey(root, bk, KindSet, b.loader)
	if err != nil {
		return hash.Hash{}, err
	}
	right := left.Clone()
	if !right.IsEnd() && bytes.Equal(right.CurrentBytes(), key) {
		if _, err := right.Advance(true); err != nil {
			return hash.Hash{}, err
		}
	}
	var insert []elem
	if !remove {
		insert = []elem{{enc: encodeSetItem(key), key: bk}}
	}
	return b.Splice(left, right, insert)
}
