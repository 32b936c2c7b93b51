package values

import (
	"bytes"
	"sort"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/tree"
	"github.com/ustoredb/ustore/ustoreerr"
)

// Set is a versioned, ordered collection of unique keys backed by a
// Set-kind Prolly tree.
type Set struct {
	root   hash.Hash
	loader *chunk.Loader
}

// NewSet wraps an existing Set tree root.
func NewSet(root hash.Hash, loader *chunk.Loader) *Set {
	return &Set{root: root, loader: loader}
}

// CreateSet builds a new Set tree from keys, sorting and deduplicating
// them first.
func CreateSet(keys [][]byte, loader *chunk.Loader) (*Set, error) {
	sorted := sortDedupKeys(keys)
	root, err := tree.NewBuilder(loader, tree.KindSet).BuildSet(sorted)
	if err != nil {
		return nil, ustoreerr.Wrap(ustoreerr.FailedCreateSList, err)
	}
	return &Set{root: root, loader: loader}, nil
}

func sortDedupKeys(keys [][]byte) [][]byte {
	cp := make([][]byte, len(keys))
	copy(cp, keys)
	sort.Slice(cp, func(i, j int) bool { return bytes.Compare(cp[i], cp[j]) < 0 })
	out := cp[:0:0]
	for i, k := range cp {
		if i > 0 && bytes.Equal(k, cp[i-1]) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Root returns the current root hash.
func (s *Set) Root() hash.Hash { return s.root }

// Size returns the key count.
func (s *Set) Size() (uint64, error) {
	n, err := loadRoot(s.root, tree.KindSet, s.loader)
	if err != nil {
		return 0, err
	}
	return n.NumElements(), nil
}

// Contains reports whether key is a member.
func (s *Set) Contains(key []byte) (bool, error) {
	cur, err := tree.AtKey(s.root, tree.ByteKey(key), tree.KindSet, s.loader)
	if err != nil {
		return false, err
	}
	if cur.IsEnd() {
		return false, nil
	}
	return bytes.Equal(cur.CurrentBytes(), key), nil
}

// Insert adds key if absent, returning the new root hash.
func (s *Set) Insert(key []byte) (hash.Hash, error) {
	root, err := tree.NewBuilder(s.loader, tree.KindSet).SpliceSetKey(s.root, key, false)
	if err != nil {
		return hash.Hash{}, ustoreerr.Wrap(ustoreerr.FailedModifySList, err)
	}
	return root, nil
}

// Remove deletes key if present, returning the new root hash.
func (s *Set) Remove(key []byte) (hash.Hash, error) {
	root, err := tree.NewBuilder(s.loader, tree.KindSet).SpliceSetKey(s.root, key, true)
	if err != nil {
		return hash.Hash{}, ustoreerr.Wrap(ustoreerr.FailedModifySList, err)
	}
	return root, nil
}

// Scan calls visit once per key in ascending order, stopping early
// (without error) if visit returns false.
func (s *Set) Scan(visit func(key []byte) (bool, error)) error {
	keys, err := tree.DecodeSet(s.root, s.loader)
	if err != nil {
		return err
	}
	for _, k := range keys {
		cont, err := visit(k)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
