// Copyright 2026 The UStore Authors.
//
// Package values implements the five user-facing composite types — Blob,
// String, List, Map, Set — layered over the Prolly tree substrate in
// package tree (spec §4.6/C9).
package values

import (
	"bytes"
	"io"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/tree"
	"github.com/ustoredb/ustore/ustoreerr"
)

// Blob is a versioned byte sequence backed by a Blob-kind Prolly tree.
type Blob struct {
	root   hash.Hash
	loader *chunk.Loader
}

// NewBlob wraps an existing Blob tree root for reading and editing.
func NewBlob(root hash.Hash, loader *chunk.Loader) *Blob {
	return &Blob{root: root, loader: loader}
}

// CreateBlob chunks data into a new Blob tree and returns the handle.
func CreateBlob(data []byte, loader *chunk.Loader) (*Blob, error) {
	root, err := tree.NewBuilder(loader, tree.KindBlob).BuildBlob(data)
	if err != nil {
		return nil, ustoreerr.Wrap(ustoreerr.FailedCreateSBlob, err)
	}
	return &Blob{root: root, loader: loader}, nil
}

// Root returns the current root hash of the Blob tree.
func (b *Blob) Root() hash.Hash { return b.root }

// Size returns the total byte length.
func (b *Blob) Size() (uint64, error) {
	n, err := loadRoot(b.root, tree.KindBlob, b.loader)
	if err != nil {
		return 0, err
	}
	return n.NumElements(), nil
}

// Read returns the len bytes starting at pos. It errors if the range
// exceeds the blob's size.
func (b *Blob) Read(pos, length uint64) ([]byte, error) {
	size, err := b.Size()
	if err != nil {
		return nil, err
	}
	if pos+length > size {
		return nil, ustoreerr.New(ustoreerr.InvalidRange, "blob: read range exceeds size")
	}
	data, err := tree.DecodeBlob(b.root, b.loader)
	if err != nil {
		return nil, err
	}
	return data[pos : pos+length], nil
}

// Splice deletes del bytes starting at pos and inserts insert in their
// place, returning the new root hash. The receiver is not mutated; Splice
// is a pure function from old root to new root, matching the rest of the
// tree layer's copy-on-write semantics.
func (b *Blob) Splice(pos, del uint64, insert []byte) (hash.Hash, error) {
	size, err := b.Size()
	if err != nil {
		return hash.Hash{}, err
	}
	if pos > size || pos+del > size {
		return hash.Hash{}, ustoreerr.New(ustoreerr.InvalidRange, "blob: splice range out of bounds")
	}
	root, err := tree.NewBuilder(b.loader, tree.KindBlob).SpliceBlob(b.root, pos, del, insert)
	if err != nil {
		return hash.Hash{}, ustoreerr.Wrap(ustoreerr.FailedModifySBlob, err)
	}
	return root, nil
}

// Reader returns an io.Reader streaming the blob's full content.
func (b *Blob) Reader() (io.Reader, error) {
	data, err := tree.DecodeBlob(b.root, b.loader)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func loadRoot(root hash.Hash, kind tree.Kind, loader *chunk.Loader) (*tree.Node, error) {
	c, ok, err := loader.Get(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ustoreerr.ErrChunkNotExists
	}
	return tree.ParseNode(c, kind)
}
