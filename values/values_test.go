package values

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/tree"
)

func newLoader() *chunk.Loader {
	return chunk.NewLoader(chunk.NewMemStore())
}

func TestBlobReadAndSplice(t *testing.T) {
	loader := newLoader()
	b, err := CreateBlob([]byte("Edge of tomorrow"), loader)
	require.NoError(t, err)

	size, err := b.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(16), size)

	got, err := b.Read(5, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("of"), got)

	newRoot, err := b.Splice(0, 4, []byte("Dawn"))
	require.NoError(t, err)
	spliced := NewBlob(newRoot, loader)
	full, err := spliced.Read(0, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("Dawn of tomorrow"), full)

	_, err = b.Read(10, 100)
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	loader := newLoader()
	s, err := CreateString("The quick brown fox jumps over the lazy dog", loader)
	require.NoError(t, err)
	assert.Equal(t, 43, s.Len())

	loaded, err := LoadString(s.Root(), loader)
	require.NoError(t, err)
	assert.Equal(t, s.Data(), loaded.Data())
}

func TestListGetIterSplice(t *testing.T) {
	loader := newLoader()
	values := [][]byte{
		[]byte("The"), []byte("quick"), []byte("brown"), []byte("fox"),
		[]byte("jumps"), []byte("over"), []byte("the"), []byte("lazy"), []byte("dog"),
	}
	l, err := CreateList(values, loader)
	require.NoError(t, err)

	size, err := l.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), size)

	v, err := l.Get(3)
	require.NoError(t, err)
	assert.Equal(t, []byte("fox"), v)

	var collected [][]byte
	err = l.Iter(func(i uint64, val []byte) (bool, error) {
		collected = append(collected, val)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, values, collected)

	newRoot, err := l.Splice(9, 0, [][]byte{[]byte("delta")})
	require.NoError(t, err)
	spliced := NewList(newRoot, loader)
	got, err := spliced.Get(9)
	require.NoError(t, err)
	assert.Equal(t, []byte("delta"), got)
	newSize, err := spliced.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), newSize)
}

func TestMapSetManyAndScan(t *testing.T) {
	loader := newLoader()
	keys := []string{"The", "brown", "dog", "fox", "jumps", "lazy", "over", "quick", "the"}
	var entries []tree.MapEntry
	for _, k := range keys {
		entries = append(entries, tree.MapEntry{Key: []byte(k), Value: []byte("v-" + k)})
	}
	m, err := CreateMap(entries, loader)
	require.NoError(t, err)

	newRoot, err := m.Set([]byte("Z"), []byte("v_z"))
	require.NoError(t, err)
	m2 := NewMap(newRoot, loader)

	var scanned [][2]string
	err = m2.Scan(func(key, value []byte) (bool, error) {
		scanned = append(scanned, [2]string{string(key), string(value)})
		return true, nil
	})
	require.NoError(t, err)
	require.Len(t, scanned, 10)
	assert.Equal(t, "Z", scanned[len(scanned)-1][0])
	assert.Equal(t, "v_z", scanned[len(scanned)-1][1])

	removedRoot, err := m2.Remove([]byte("Z"))
	require.NoError(t, err)
	m3 := NewMap(removedRoot, loader)
	n, err := m3.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)
}

func TestMapSetManyDuplicateKeyLastWins(t *testing.T) {
	loader := newLoader()
	m, err := CreateMap(nil, loader)
	require.NoError(t, err)

	newRoot, err := m.SetMany(
		[][]byte{[]byte("k"), []byte("k")},
		[][]byte{[]byte("first"), []byte("second")},
	)
	require.NoError(t, err)
	m2 := NewMap(newRoot, loader)
	val, ok, err := m2.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), val)
}

func TestMapGetMissingKey(t *testing.T) {
	loader := newLoader()
	m, err := CreateMap([]tree.MapEntry{{Key: []byte("a"), Value: []byte("1")}}, loader)
	require.NoError(t, err)
	_, ok, err := m.Get([]byte("zzz"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetInsertContainsRemove(t *testing.T) {
	loader := newLoader()
	var keys [][]byte
	for i := 0; i < 50; i++ {
		keys = append(keys, []byte(fmt.Sprintf("k%02d", i)))
	}
	s, err := CreateSet(keys, loader)
	require.NoError(t, err)

	ok, err := s.Contains([]byte("k25"))
	require.NoError(t, err)
	assert.True(t, ok)

	newRoot, err := s.Insert([]byte("k99"))
	require.NoError(t, err)
	s2 := NewSet(newRoot, loader)
	ok, err = s2.Contains([]byte("k99"))
	require.NoError(t, err)
	assert.True(t, ok)

	removedRoot, err := s2.Remove([]byte("k25"))
	require.NoError(t, err)
	s3 := NewSet(removedRoot, loader)
	ok, err = s3.Contains([]byte("k25"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetInsertDuplicateIsNoop(t *testing.T) {
	loader := newLoader()
	s, err := CreateSet([][]byte{[]byte("a"), []byte("b")}, loader)
	require.NoError(t, err)
	newRoot, err := s.Insert([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, s.Root(), newRoot)
}
