package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListLeafRoundTrip(t *testing.T) {
	values := [][]byte{[]byte("The"), []byte("quick"), []byte("brown"), []byte("fox")}
	nd := NewListLeaf(values)
	assert.True(t, nd.IsLeaf())
	assert.Equal(t, len(values), nd.NumEntries())
	for i, v := range values {
		assert.Equal(t, v, nd.GetListValue(i))
		assert.Equal(t, NumKey(uint64(i+1)), nd.Key(i))
	}

	c := nd.ToChunk()
	parsed, err := ParseNode(c, KindList)
	require.NoError(t, err)
	assert.Equal(t, nd.NumEntries(), parsed.NumEntries())
	for i := range values {
		assert.Equal(t, values[i], parsed.GetListValue(i))
	}
}

func TestMapLeafRoundTripSortedKeys(t *testing.T) {
	entries := []MapEntry{
		{Key: []byte("The"), Value: []byte("v0")},
		{Key: []byte("brown"), Value: []byte("v1")},
		{Key: []byte("dog"), Value: []byte("v2")},
	}
	nd := NewMapLeaf(entries)
	c := nd.ToChunk()
	parsed, err := ParseNode(c, KindMap)
	require.NoError(t, err)
	for i, e := range entries {
		got := parsed.GetMapEntry(i)
		assert.Equal(t, e.Key, got.Key)
		assert.Equal(t, e.Value, got.Value)
	}
	assert.Equal(t, ByteKey([]byte("dog")), parsed.MaxOrderedKey())
}

func TestSetLeafRoundTrip(t *testing.T) {
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("z")}
	nd := NewSetLeaf(keys)
	c := nd.ToChunk()
	parsed, err := ParseNode(c, KindSet)
	require.NoError(t, err)
	for i, k := range keys {
		assert.Equal(t, k, parsed.GetSetKey(i))
	}
}

func TestBlobLeafRoundTrip(t *testing.T) {
	data := []byte("Edge of tomorrow")
	nd := NewBlobLeaf(data)
	c := nd.ToChunk()
	parsed, err := ParseNode(c, KindBlob)
	require.NoError(t, err)
	assert.Equal(t, data, parsed.BlobBytes())
}

func TestMetaNodeSummaries(t *testing.T) {
	leaf1 := NewListLeaf([][]byte{[]byte("a"), []byte("b")})
	leaf2 := NewListLeaf([][]byte{[]byte("c")})

	entries := []MetaEntry{
		{NumLeaves: 1, NumElements: 2, TargetHash: leaf1.Hash(), MaxOrderedKey: NumKey(2), NumBytes: uint64(leaf1.ToChunk().Size())},
		{NumLeaves: 1, NumElements: 1, TargetHash: leaf2.Hash(), MaxOrderedKey: NumKey(3), NumBytes: uint64(leaf2.ToChunk().Size())},
	}
	meta := NewMetaNode(KindList, entries)
	assert.True(t, meta.IsMeta())
	assert.Equal(t, uint64(2), meta.NumLeaves())
	assert.Equal(t, uint64(3), meta.NumElements())
	assert.Equal(t, NumKey(3), meta.MaxOrderedKey())
	assert.Equal(t, leaf1.Hash(), meta.ChildHash(0))
	assert.Equal(t, leaf2.Hash(), meta.ChildHash(1))
}

func TestOrderedKeyOrdering(t *testing.T) {
	assert.True(t, NumKey(1).Less(NumKey(2)))
	assert.False(t, NumKey(2).Less(NumKey(1)))
	assert.True(t, ByteKey([]byte("a")).Less(ByteKey([]byte("b"))))
	assert.Equal(t, NumKey(5), Max(NumKey(5), NumKey(3)))
	assert.Equal(t, ByteKey([]byte("z")), Max(ByteKey([]byte("a")), ByteKey([]byte("z"))))
}
