package values

import (
	"bytes"
	"sort"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/tree"
	"github.com/ustoredb/ustore/ustoreerr"
)

// Map is a versioned, key-sorted associative array backed by a Map-kind
// Prolly tree (spec §4.6).
type Map struct {
	root   hash.Hash
	loader *chunk.Loader
}

// NewMap wraps an existing Map tree root.
func NewMap(root hash.Hash, loader *chunk.Loader) *Map {
	return &Map{root: root, loader: loader}
}

// CreateMap builds a new Map tree from entries. Entries need not be
// pre-sorted; CreateMap sorts and dedups them itself (later duplicate
// key wins, spec §4.6: "the later value in the input list wins").
func CreateMap(entries []tree.MapEntry, loader *chunk.Loader) (*Map, error) {
	sorted := dedupLastWins(entries)
	root, err := tree.NewBuilder(loader, tree.KindMap).BuildMap(sorted)
	if err != nil {
		return nil, ustoreerr.Wrap(ustoreerr.FailedCreateSMap, err)
	}
	return &Map{root: root, loader: loader}, nil
}

// dedupLastWins sorts entries by key and, for duplicate keys, keeps the
// value from whichever entry appears later in the input (a stable sort
// followed by a last-occurrence-per-key pass achieves this).
func dedupLastWins(entries []tree.MapEntry) []tree.MapEntry {
	indexed := make([]struct {
		e   tree.MapEntry
		pos int
	}, len(entries))
	for i, e := range entries {
		indexed[i] = struct {
			e   tree.MapEntry
			pos int
		}{e, i}
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		return bytes.Compare(indexed[i].e.Key, indexed[j].e.Key) < 0
	})
	out := make([]tree.MapEntry, 0, len(indexed))
	for i := 0; i < len(indexed); i++ {
		if i+1 < len(indexed) && bytes.Equal(indexed[i].e.Key, indexed[i+1].e.Key) {
			continue // a later entry with the same key follows; skip this one
		}
		out = append(out, indexed[i].e)
	}
	return out
}

// Root returns the current root hash.
func (m *Map) Root() hash.Hash { return m.root }

// Size returns the entry count.
func (m *Map) Size() (uint64, error) {
	n, err := loadRoot(m.root, tree.KindMap, m.loader)
	if err != nil {
		return 0, err
	}
	return n.NumElements(), nil
}

// Get returns the value for key, or ok=false if absent.
func (m *Map) Get(key []byte) (value []byte, ok bool, err error) {
	cur, err := tree.AtKey(m.root, tree.ByteKey(key), tree.KindMap, m.loader)
	if err != nil {
		return nil, false, err
	}
	if cur.IsEnd() {
		return nil, false, nil
	}
	entry := cur.CurrentMapEntry()
	if !bytes.Equal(entry.Key, key) {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Set inserts or overwrites key with val, returning the new root hash.
func (m *Map) Set(key, val []byte) (hash.Hash, error) {
	return m.SetMany([][]byte{key}, [][]byte{val})
}

// Remove deletes key if present, returning the new root hash.
func (m *Map) Remove(key []byte) (hash.Hash, error) {
	root, err := tree.NewBuilder(m.loader, tree.KindMap).SpliceMapEntry(m.root, key, nil, true)
	if err != nil {
		return hash.Hash{}, ustoreerr.Wrap(ustoreerr.FailedModifySMap, err)
	}
	return root, nil
}

// SetMany applies a batch of key/value updates in input order — a later
// update for the same key overrides an earlier one in the same call
// (spec §4.6: "set_many applies updates in input order"). Each update is
// spliced in independently, threading the root forward update to
// update, so only the leaf runs the touched keys actually fall in (and
// the O(log n) nodes above them) are rewritten.
func (m *Map) SetMany(keys, vals [][]byte) (hash.Hash, error) {
	if len(keys) != len(vals) {
		return hash.Hash{}, ustoreerr.New(ustoreerr.InvalidParameters, "values: SetMany key/value count mismatch")
	}
	builder := tree.NewBuilder(m.loader, tree.KindMap)
	root := m.root
	for i := range keys {
		var err error
		root, err = builder.SpliceMapEntry(root, keys[i], vals[i], false)
		if err != nil {
			return hash.Hash{}, ustoreerr.Wrap(ustoreerr.FailedModifySMap, err)
		}
	}
	return root, nil
}

// Scan calls visit once per entry in ascending key order, stopping early
// (without error) if visit returns false.
func (m *Map) Scan(visit func(key, value []byte) (bool, error)) error {
	entries, err := tree.DecodeMap(m.root, m.loader)
	if err != nil {
		return err
	}
	for _, e := range entries {
		cont, err := visit(e.Key, e.Value)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
