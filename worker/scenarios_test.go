package worker

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/headindex"
	"github.com/ustoredb/ustore/recovery"
	"github.com/ustoredb/ustore/ucell"
	"github.com/ustoredb/ustore/values"
)

// TestScenarioListSplice implements scenario S5 (spec §8): splicing a
// single element into a List value at its tail and reading it back.
func TestScenarioListSplice(t *testing.T) {
	w, loader := newTestWorker(t)

	words := []string{"The", "quick", "brown", "fox", "jumps", "over", "the", "lazy", "dog"}
	vals := make([][]byte, len(words))
	for i, s := range words {
		vals[i] = []byte(s)
	}
	list, err := values.CreateList(vals, loader)
	require.NoError(t, err)
	_, err = w.Put("l1", Value{Type: ucell.UTypeList, DataHash: list.Root()}, "master")
	require.NoError(t, err)

	newRoot, err := list.Splice(9, 0, [][]byte{[]byte("delta")})
	require.NoError(t, err)
	updated := values.NewList(newRoot, loader)

	v, err := updated.Get(9)
	require.NoError(t, err)
	assert.Equal(t, "delta", string(v))

	size, err := updated.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), size)
}

// TestScenarioRecoveryLog implements scenario S6 (spec §8): a sequence of
// mutations followed by a simulated crash and restart, replaying the
// recovery log into a fresh index and verifying it matches.
func TestScenarioRecoveryLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "recovery.log")
	store := chunk.NewMemStore()
	loader := chunk.NewLoader(store)

	log1, err := recovery.Open(logPath, recovery.StrongSync())
	require.NoError(t, err)
	idx1 := headindex.NewMemIndex()
	w1 := New(store, idx1, log1, nil)

	_, err = w1.Put("k", stringValue(t, loader, "v1"), "master")
	require.NoError(t, err)
	v2, err := w1.Put("k", stringValue(t, loader, "v2"), "master")
	require.NoError(t, err)
	require.NoError(t, w1.Rename("k", "master", "main"))
	require.NoError(t, log1.Close()) // simulated crash point

	// Restart: replay the recovery log into a fresh index.
	idx2 := headindex.NewMemIndex()
	err = recovery.Replay(logPath, func(r recovery.Record) error {
		switch r.Cmd {
		case recovery.CmdUpdate:
			return idx2.PutBranch(r.Key, r.Branch, r.Ver)
		case recovery.CmdRename:
			return idx2.RenameBranch(r.Key, r.Branch, r.NewKey)
		case recovery.CmdRemove:
			return idx2.RemoveBranch(r.Key, r.Branch)
		}
		return nil
	})
	require.NoError(t, err)

	head, ok, err := idx2.GetBranch("k", "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v2, head)

	_, ok, err = idx2.GetBranch("k", "master")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestHistoryDAGAfterMerge implements testable invariant 5 (spec §8):
// v1 = Put(k,a,br); v2 = Put(k,b,br); v3 = Merge(k,c,br,v1) yields
// preHash1==v2, preHash2==v1, merged==true.
func TestHistoryDAGAfterMerge(t *testing.T) {
	w, loader := newTestWorker(t)

	v1, err := w.Put("k", stringValue(t, loader, "a"), "br")
	require.NoError(t, err)
	v2, err := w.Put("k", stringValue(t, loader, "b"), "br")
	require.NoError(t, err)

	v3, err := w.MergeWithVersion("k", stringValue(t, loader, "c"), "br", v1)
	require.NoError(t, err)

	u3, err := w.GetVersion(v3)
	require.NoError(t, err)
	assert.Equal(t, v2, u3.PreHash1())
	assert.Equal(t, v1, u3.PreHash2())
	assert.True(t, u3.Merged())
}

// TestLatestInvariant implements testable invariant 6: latest(k) equals
// exactly the UCells not referenced as a parent by any other UCell of k,
// after a Put/Put/Merge sequence.
func TestLatestInvariant(t *testing.T) {
	w, loader := newTestWorker(t)

	v1, err := w.Put("k", stringValue(t, loader, "a"), "br")
	require.NoError(t, err)
	v2, err := w.Put("k", stringValue(t, loader, "b"), "br")
	require.NoError(t, err)
	v3, err := w.MergeWithVersion("k", stringValue(t, loader, "c"), "br", v1)
	require.NoError(t, err)

	latest, err := w.GetLatestVersions("k")
	require.NoError(t, err)
	assert.ElementsMatch(t, []hash.Hash{v3}, latest)

	for _, v := range []hash.Hash{v1, v2} {
		isLatest, err := w.IsLatest("k", v)
		require.NoError(t, err)
		assert.False(t, isLatest)
	}
}
