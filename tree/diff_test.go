package tree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffListSameRootShortCircuits(t *testing.T) {
	loader := newLoader()
	b := NewBuilder(loader, KindList)
	values := [][]byte{[]byte("a"), []byte("b")}
	root, err := b.BuildList(values)
	require.NoError(t, err)

	called := false
	err = DiffList(root, root, loader, func(i uint64, l, r []byte) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDiffListDetectsChangedAndAppended(t *testing.T) {
	loader := newLoader()
	b := NewBuilder(loader, KindList).WithParams((1<<6)-1, 16)

	left := make([][]byte, 100)
	for i := range left {
		left[i] = []byte(fmt.Sprintf("v%03d", i))
	}
	right := make([][]byte, 102)
	copy(right, left)
	right[50] = []byte("CHANGED")
	right[100] = []byte("extra-1")
	right[101] = []byte("extra-2")

	lroot, err := b.BuildList(left)
	require.NoError(t, err)
	rroot, err := b.BuildList(right)
	require.NoError(t, err)

	type diffEntry struct {
		idx  uint64
		l, r []byte
	}
	var got []diffEntry
	err = DiffList(lroot, rroot, loader, func(i uint64, l, r []byte) error {
		got = append(got, diffEntry{i, l, r})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, uint64(50), got[0].idx)
	assert.Equal(t, []byte("v050"), got[0].l)
	assert.Equal(t, []byte("CHANGED"), got[0].r)
	assert.Equal(t, uint64(100), got[1].idx)
	assert.Nil(t, got[1].l)
	assert.Equal(t, []byte("extra-1"), got[1].r)
}

func TestDiffMapKeyMergeJoin(t *testing.T) {
	loader := newLoader()
	b := NewBuilder(loader, KindMap)

	left := []MapEntry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("d"), Value: []byte("4")},
	}
	right := []MapEntry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2-changed")},
		{Key: []byte("c"), Value: []byte("3-new")},
	}
	lroot, err := b.BuildMap(left)
	require.NoError(t, err)
	rroot, err := b.BuildMap(right)
	require.NoError(t, err)

	type diffEntry struct {
		key, l, r []byte
	}
	var got []diffEntry
	err = DiffMap(lroot, rroot, loader, func(key, l, r []byte) error {
		got = append(got, diffEntry{key, l, r})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, []byte("b"), got[0].key)
	assert.Equal(t, []byte("2"), got[0].l)
	assert.Equal(t, []byte("2-changed"), got[0].r)
	assert.Equal(t, []byte("c"), got[1].key)
	assert.Nil(t, got[1].l)
	assert.Equal(t, []byte("3-new"), got[1].r)
	assert.Equal(t, []byte("d"), got[2].key)
	assert.Equal(t, []byte("4"), got[2].l)
	assert.Nil(t, got[2].r)
}
