package values

import (
	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/ustoreerr"
)

// String is a small inline payload stored as a single leaf chunk — no
// Prolly tree, since the whole value is expected to fit in one chunk
// (spec §4.6: "Small inline payload (one Leaf chunk)").
type String struct {
	h       hash.Hash
	payload []byte
}

// CreateString writes s as a single TypeStringLeaf chunk and returns the
// handle addressed by its hash.
func CreateString(s string, loader *chunk.Loader) (*String, error) {
	c := chunk.New(chunk.TypeStringLeaf, []byte(s))
	if err := loader.Put(c); err != nil {
		return nil, ustoreerr.Wrap(ustoreerr.FailedCreateSString, err)
	}
	return &String{h: c.Hash(), payload: c.Payload()}, nil
}

// LoadString resolves an existing String value by its chunk hash.
func LoadString(h hash.Hash, loader *chunk.Loader) (*String, error) {
	c, ok, err := loader.Get(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ustoreerr.ErrChunkNotExists
	}
	if c.Type() != chunk.TypeStringLeaf {
		return nil, ustoreerr.New(ustoreerr.TypeMismatch, "values: chunk is not a String leaf")
	}
	return &String{h: h, payload: c.Payload()}, nil
}

// Root returns the chunk hash addressing this String (dataHash in a
// UCell referring to it).
func (s *String) Root() hash.Hash { return s.h }

// Len returns the byte length of the string payload.
func (s *String) Len() int { return len(s.payload) }

// Data returns the string's UTF-8 bytes decoded as a Go string.
func (s *String) Data() string { return string(s.payload) }
