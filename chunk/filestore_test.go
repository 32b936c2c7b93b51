package chunk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutGetExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	c := New(TypeBlobLeaf, []byte("file store payload"))
	require.NoError(t, s.Put(c.Hash(), c))

	ok, err := s.Exists(c.Hash())
	require.NoError(t, err)
	assert.True(t, ok)

	got, ok, err := s.Get(c.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Payload(), got.Payload())
	assert.Equal(t, c.Type(), got.Type())
}

func TestFileStorePutIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	c := New(TypeBlobLeaf, []byte("dup"))
	require.NoError(t, s.Put(c.Hash(), c))
	require.NoError(t, s.Put(c.Hash(), c))

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.ChunksTotal)
}

// TestFileStoreReplaySurvivesReopen writes several chunks, closes the
// store, reopens it at the same path, and checks every chunk is still
// readable — the append-only file plus in-memory index rebuilt from a
// full scan, per spec §4.2/§4.12's recovery pattern.
func TestFileStoreReplaySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	s, err := OpenFileStore(path)
	require.NoError(t, err)

	chunks := []Chunk{
		New(TypeBlobLeaf, []byte("one")),
		New(TypeListLeaf, []byte("two")),
		New(TypeMapLeaf, []byte("three")),
	}
	for _, c := range chunks {
		require.NoError(t, s.Put(c.Hash(), c))
	}
	require.NoError(t, s.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	info, err := reopened.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(len(chunks)), info.ChunksTotal)

	for _, want := range chunks {
		got, ok, err := reopened.Get(want.Hash())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want.Payload(), got.Payload())
	}
}

func TestFileStoreGetMissingReturnsNotOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(New(TypeBlobLeaf, []byte("never written")).Hash())
	require.NoError(t, err)
	assert.False(t, ok)
}
