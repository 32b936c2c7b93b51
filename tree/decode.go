package tree

import (
	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
)

// walk recursively visits every leaf node of the tree rooted at root, in
// order, calling visit once per leaf.
func walk(root hash.Hash, kind Kind, loader *chunk.Loader, visit func(*Node) error) error {
	ch, ok, err := loader.Get(root)
	if err != nil {
		return err
	}
	if !ok {
		return errChunkNotFound(root)
	}
	n, err := ParseNode(ch, kind)
	if err != nil {
		return err
	}
	if n.IsLeaf() {
		return visit(n)
	}
	for i := 0; i < n.NumEntries(); i++ {
		if err := walk(n.ChildHash(i), kind, loader, visit); err != nil {
			return err
		}
	}
	return nil
}

func errChunkNotFound(h hash.Hash) error {
	return &chunkNotFoundError{h: h}
}

type chunkNotFoundError struct{ h hash.Hash }

func (e *chunkNotFoundError) Error() string { return "tree: chunk " + e.h.String() + " not found" }

// DecodeBlob materializes the full byte content of the Blob tree rooted
// at root.
func DecodeBlob(root hash.Hash, loader *chunk.Loader) ([]byte, error) {
	var out []byte
	err := walk(root, KindBlob, loader, func(n *Node) error {
		out = append(out, n.BlobBytes()...)
		return nil
	})
	return out, err
}

// DecodeList materializes every element of the List tree rooted at root,
// in order.
func DecodeList(root hash.Hash, loader *chunk.Loader) ([][]byte, error) {
	var out [][]byte
	err := walk(root, KindList, loader, func(n *Node) error {
		for i := 0; i < n.NumEntries(); i++ {
			out = append(out, n.GetListValue(i))
		}
		return nil
	})
	return out, err
}

// DecodeMap materializes every entry of the Map tree rooted at root, in
// ascending key order.
func DecodeMap(root hash.Hash, loader *chunk.Loader) ([]MapEntry, error) {
	var out []MapEntry
	err := walk(root, KindMap, loader, func(n *Node) error {
		for i := 0; i < n.NumEntries(); i++ {
			out = append(out, n.GetMapEntry(i))
		}
		return nil
	})
	return out, err
}

// DecodeSet materializes every key of the Set tree rooted at root, in
// ascending order.
func DecodeSet(root hash.Hash, loader *chunk.Loader) ([][]byte, error) {
	var out [][]byte
	err := walk(root, KindSet, loader, func(n *Node) error {
		for i := 0; i < n.NumEntries(); i++ {
			out = append(out, n.GetSetKey(i))
		}
		return nil
	})
	return out, err
}
