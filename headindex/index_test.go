package headindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustoredb/ustore/hash"
)

func withIndexes(t *testing.T, run func(t *testing.T, idx Index)) {
	t.Helper()
	t.Run("MemIndex", func(t *testing.T) {
		run(t, NewMemIndex())
	})
	t.Run("BoltIndex", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.bolt")
		idx, err := OpenBoltIndex(path)
		require.NoError(t, err)
		defer idx.Close()
		run(t, idx)
	})
}

func TestBranchLifecycle(t *testing.T) {
	withIndexes(t, func(t *testing.T, idx Index) {
		v1 := hash.Of([]byte("v1"))
		require.NoError(t, idx.PutBranch("k1", "master", v1))

		got, ok, err := idx.GetBranch("k1", "master")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, v1, got)

		isHead, err := idx.IsBranchHead("k1", "master", v1)
		require.NoError(t, err)
		assert.True(t, isHead)

		exists, err := idx.ExistsBranch("k1", "master")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, idx.RemoveBranch("k1", "master"))
		_, ok, err = idx.GetBranch("k1", "master")
		require.NoError(t, err)
		assert.False(t, ok)

		err = idx.RemoveBranch("k1", "master")
		assert.Error(t, err)
	})
}

func TestRenameBranch(t *testing.T) {
	withIndexes(t, func(t *testing.T, idx Index) {
		v1 := hash.Of([]byte("v1"))
		require.NoError(t, idx.PutBranch("k1", "dev", v1))
		require.NoError(t, idx.RenameBranch("k1", "dev", "feature"))

		_, ok, err := idx.GetBranch("k1", "dev")
		require.NoError(t, err)
		assert.False(t, ok)

		got, ok, err := idx.GetBranch("k1", "feature")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, v1, got)

		err = idx.RenameBranch("k1", "nonexistent", "x")
		assert.Error(t, err)

		require.NoError(t, idx.PutBranch("k1", "master", v1))
		err = idx.RenameBranch("k1", "feature", "master")
		assert.Error(t, err)
	})
}

func TestListBranchesAndKeys(t *testing.T) {
	withIndexes(t, func(t *testing.T, idx Index) {
		v := hash.Of([]byte("v"))
		require.NoError(t, idx.PutBranch("k1", "master", v))
		require.NoError(t, idx.PutBranch("k1", "dev", v))
		require.NoError(t, idx.PutBranch("k2", "master", v))

		branches, err := idx.ListBranches("k1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"master", "dev"}, branches)

		keys, err := idx.ListKeys()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"k1", "k2"}, keys)
	})
}

func TestLatestSetTracksTips(t *testing.T) {
	withIndexes(t, func(t *testing.T, idx Index) {
		v1 := hash.Of([]byte("v1"))
		require.NoError(t, idx.PutLatest("k1", hash.Null, hash.Null, v1))

		latest, err := idx.GetLatest("k1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []hash.Hash{v1}, latest)

		isLatest, err := idx.IsLatest("k1", v1)
		require.NoError(t, err)
		assert.True(t, isLatest)

		v2 := hash.Of([]byte("v2"))
		require.NoError(t, idx.PutLatest("k1", v1, hash.Null, v2))

		latest, err = idx.GetLatest("k1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []hash.Hash{v2}, latest)

		isLatest, err = idx.IsLatest("k1", v1)
		require.NoError(t, err)
		assert.False(t, isLatest, "superseded parent should drop out of the latest set")
	})
}

func TestLatestSetMergeKeepsMultipleTipsUntilMerged(t *testing.T) {
	withIndexes(t, func(t *testing.T, idx Index) {
		va := hash.Of([]byte("a"))
		vb := hash.Of([]byte("b"))
		require.NoError(t, idx.PutLatest("k1", hash.Null, hash.Null, va))
		require.NoError(t, idx.PutLatest("k1", hash.Null, hash.Null, vb))

		latest, err := idx.GetLatest("k1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []hash.Hash{va, vb}, latest)

		vmerged := hash.Of([]byte("merged"))
		require.NoError(t, idx.PutLatest("k1", va, vb, vmerged))

		latest, err = idx.GetLatest("k1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []hash.Hash{vmerged}, latest)
	})
}

func TestExists(t *testing.T) {
	withIndexes(t, func(t *testing.T, idx Index) {
		ok, err := idx.Exists("missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, idx.PutBranch("present", "master", hash.Of([]byte("v"))))
		ok, err = idx.Exists("present")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
