package values

import (
	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/tree"
	"github.com/ustoredb/ustore/ustoreerr"
)

// List is a versioned, ordered sequence backed by a List-kind Prolly
// tree.
type List struct {
	root   hash.Hash
	loader *chunk.Loader
}

// NewList wraps an existing List tree root.
func NewList(root hash.Hash, loader *chunk.Loader) *List {
	return &List{root: root, loader: loader}
}

// CreateList chunks values into a new List tree.
func CreateList(values [][]byte, loader *chunk.Loader) (*List, error) {
	root, err := tree.NewBuilder(loader, tree.KindList).BuildList(values)
	if err != nil {
		return nil, ustoreerr.Wrap(ustoreerr.FailedCreateSList, err)
	}
	return &List{root: root, loader: loader}, nil
}

// Root returns the current root hash.
func (l *List) Root() hash.Hash { return l.root }

// Size returns the element count.
func (l *List) Size() (uint64, error) {
	n, err := loadRoot(l.root, tree.KindList, l.loader)
	if err != nil {
		return 0, err
	}
	return n.NumElements(), nil
}

// Get returns the element at index i.
func (l *List) Get(i uint64) ([]byte, error) {
	size, err := l.Size()
	if err != nil {
		return nil, err
	}
	if i >= size {
		return nil, ustoreerr.ErrIndexOutOfRange
	}
	cur, err := tree.AtIndex(l.root, i, tree.KindList, l.loader)
	if err != nil {
		return nil, err
	}
	return cur.CurrentBytes(), nil
}

// Iter calls visit once per element, in order, stopping early (without
// error) if visit returns false.
func (l *List) Iter(visit func(index uint64, value []byte) (bool, error)) error {
	vals, err := tree.DecodeList(l.root, l.loader)
	if err != nil {
		return err
	}
	for i, v := range vals {
		cont, err := visit(uint64(i), v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Splice deletes del elements starting at start and inserts values in
// their place, returning the new root hash.
func (l *List) Splice(start, del uint64, values [][]byte) (hash.Hash, error) {
	size, err := l.Size()
	if err != nil {
		return hash.Hash{}, err
	}
	if start > size || start+del > size {
		return hash.Hash{}, ustoreerr.New(ustoreerr.InvalidRange, "list: splice range out of bounds")
	}
	root, err := tree.NewBuilder(l.loader, tree.KindList).SpliceList(l.root, start, del, values)
	if err != nil {
		return hash.Hash{}, ustoreerr.Wrap(ustoreerr.FailedModifySList, err)
	}
	return root, nil
}
