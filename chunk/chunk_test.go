package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHashIsDeterministic(t *testing.T) {
	a := New(TypeBlobLeaf, []byte("same payload"))
	b := New(TypeBlobLeaf, []byte("same payload"))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestNewHashDependsOnTypeAndPayload(t *testing.T) {
	base := New(TypeBlobLeaf, []byte("payload"))
	diffType := New(TypeListLeaf, []byte("payload"))
	diffPayload := New(TypeBlobLeaf, []byte("other"))
	assert.NotEqual(t, base.Hash(), diffType.Hash())
	assert.NotEqual(t, base.Hash(), diffPayload.Hash())
}

func TestBytesRoundTripsThroughFromBytes(t *testing.T) {
	c := New(TypeMapLeaf, []byte("some map leaf bytes"))
	parsed, err := FromBytes(c.Bytes())
	require.NoError(t, err)
	assert.Equal(t, c.Hash(), parsed.Hash())
	assert.Equal(t, c.Type(), parsed.Type())
	assert.Equal(t, c.Payload(), parsed.Payload())
}

func TestFromBytesRejectsTruncatedRecord(t *testing.T) {
	c := New(TypeSetLeaf, []byte("abc"))
	_, err := FromBytes(c.Bytes()[:3])
	assert.Error(t, err)
}

func TestFromBytesRejectsLengthMismatch(t *testing.T) {
	c := New(TypeSetLeaf, []byte("abc"))
	b := c.Bytes()
	b[1] = 0xff // corrupt the length field
	_, err := FromBytes(b)
	assert.Error(t, err)
}

func TestEmptyChunk(t *testing.T) {
	var c Chunk
	assert.True(t, c.Empty())
	assert.False(t, New(TypeCell, []byte("x")).Empty())
}

func TestMemStorePutGetExists(t *testing.T) {
	s := NewMemStore()
	c := New(TypeBlobLeaf, []byte("hello"))

	ok, err := s.Exists(c.Hash())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(c.Hash(), c))

	ok, err = s.Exists(c.Hash())
	require.NoError(t, err)
	assert.True(t, ok)

	got, ok, err := s.Get(c.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Payload(), got.Payload())
}

func TestMemStorePutIsIdempotent(t *testing.T) {
	s := NewMemStore()
	c := New(TypeBlobLeaf, []byte("hello"))
	require.NoError(t, s.Put(c.Hash(), c))
	require.NoError(t, s.Put(c.Hash(), c)) // same hash, same content: no-op

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.ChunksTotal)
}

func TestMemStorePutRejectsHashMismatch(t *testing.T) {
	s := NewMemStore()
	c := New(TypeBlobLeaf, []byte("hello"))
	other := New(TypeBlobLeaf, []byte("goodbye"))
	assert.Error(t, s.Put(other.Hash(), c))
}

func TestMemStoreInfoTracksBytesAndCount(t *testing.T) {
	s := NewMemStore()
	c1 := New(TypeBlobLeaf, []byte("aaaa"))
	c2 := New(TypeBlobLeaf, []byte("bbbbbbbb"))
	require.NoError(t, s.Put(c1.Hash(), c1))
	require.NoError(t, s.Put(c2.Hash(), c2))

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.ChunksTotal)
	assert.Equal(t, uint64(c1.Size()+c2.Size()), info.ChunkBytesTotal)
	assert.NotEmpty(t, info.String())
}

func TestLoaderCachesAfterGet(t *testing.T) {
	s := NewMemStore()
	c := New(TypeBlobLeaf, []byte("cached"))
	require.NoError(t, s.Put(c.Hash(), c))

	l := NewLoader(s)
	got, ok, err := l.Get(c.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Payload(), got.Payload())

	// A second Get should hit the loader's own cache, not the store, but
	// must still return the identical chunk.
	got2, ok, err := l.Get(c.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, got.Hash(), got2.Hash())
}

func TestLoaderPutPrimesCache(t *testing.T) {
	s := NewMemStore()
	l := NewLoader(s)
	c := New(TypeListLeaf, []byte("primed"))
	require.NoError(t, l.Put(c))

	exists, err := s.Exists(c.Hash())
	require.NoError(t, err)
	assert.True(t, exists, "Put must write through to the backing store")

	got, ok, err := l.Get(c.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Payload(), got.Payload())
}

func TestLoaderGetMissReturnsNotOK(t *testing.T) {
	s := NewMemStore()
	l := NewLoader(s)
	_, ok, err := l.Get(New(TypeBlobLeaf, []byte("never stored")).Hash())
	require.NoError(t, err)
	assert.False(t, ok)
}
