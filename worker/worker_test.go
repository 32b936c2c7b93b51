package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/headindex"
	"github.com/ustoredb/ustore/tree"
	"github.com/ustoredb/ustore/ucell"
	"github.com/ustoredb/ustore/ustoreerr"
	"github.com/ustoredb/ustore/values"
)

func newTestWorker(t *testing.T) (*Worker, *chunk.Loader) {
	store := chunk.NewMemStore()
	loader := chunk.NewLoader(store)
	w := New(store, headindex.NewMemIndex(), nil, nil)
	return w, loader
}

func stringValue(t *testing.T, loader *chunk.Loader, s string) Value {
	t.Helper()
	sv, err := values.CreateString(s, loader)
	require.NoError(t, err)
	return Value{Type: ucell.UTypeString, DataHash: sv.Root()}
}

// TestPutStringAndGet implements scenario S1 (spec §8): put a String
// value on a fresh branch and read it back.
func TestPutStringAndGet(t *testing.T) {
	w, loader := newTestWorker(t)

	v1, err := w.Put("doc", stringValue(t, loader, "hello"), "master")
	require.NoError(t, err)

	u, err := w.Get("doc", "master")
	require.NoError(t, err)
	assert.Equal(t, v1, u.Version())
	assert.Equal(t, ucell.UTypeString, u.Type())
	assert.False(t, u.Merged())

	s, err := values.LoadString(u.DataHash(), loader)
	require.NoError(t, err)
	assert.Equal(t, "hello", s.Data())

	head, ok, err := w.GetBranchHead("doc", "master")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, v1, head)
}

// TestPutBlobAndDiverge implements scenario S2: two Puts on the same
// branch chain the new UCell from the prior head, and the old head is no
// longer a latest tip once superseded.
func TestPutBlobAndDiverge(t *testing.T) {
	w, loader := newTestWorker(t)

	blob1, err := values.CreateBlob([]byte("aaaa"), loader)
	require.NoError(t, err)
	v1, err := w.Put("b", Value{Type: ucell.UTypeBlob, DataHash: blob1.Root()}, "master")
	require.NoError(t, err)

	blob2, err := values.CreateBlob([]byte("bbbb"), loader)
	require.NoError(t, err)
	v2, err := w.Put("b", Value{Type: ucell.UTypeBlob, DataHash: blob2.Root()}, "master")
	require.NoError(t, err)

	u2, err := w.GetVersion(v2)
	require.NoError(t, err)
	assert.Equal(t, v1, u2.PreHash1())

	isLatest1, err := w.IsLatest("b", v1)
	require.NoError(t, err)
	assert.False(t, isLatest1, "superseded version should no longer be a tip")

	isLatest2, err := w.IsLatest("b", v2)
	require.NoError(t, err)
	assert.True(t, isLatest2)
}

// TestBranchAndFastForwardMerge implements scenario S3: branching off
// master, advancing only feature, then merging feature back into master
// is a pure fast-forward (no new UCell).
func TestBranchAndFastForwardMerge(t *testing.T) {
	w, loader := newTestWorker(t)

	v1, err := w.Put("doc", stringValue(t, loader, "v1"), "master")
	require.NoError(t, err)
	require.NoError(t, w.Branch("doc", "master", "feature"))

	v2, err := w.Put("doc", stringValue(t, loader, "v2"), "feature")
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	merged, err := w.Merge("doc", NoValue, "master", "feature")
	require.NoError(t, err)
	assert.Equal(t, v2, merged, "fast-forward merge should adopt the descendant version as-is")

	head, _, err := w.GetBranchHead("doc", "master")
	require.NoError(t, err)
	assert.Equal(t, v2, head)
}

// TestMergeConflictingStringsRequiresOverride merges two divergent String
// edits from a common ancestor: automatic resolution is impossible, so
// Merge without an override fails with MergeConflict, and succeeds once
// an override value is supplied.
func TestMergeConflictingStringsRequiresOverride(t *testing.T) {
	w, loader := newTestWorker(t)

	_, err := w.Put("doc", stringValue(t, loader, "base"), "master")
	require.NoError(t, err)
	require.NoError(t, w.Branch("doc", "master", "feature"))

	_, err = w.Put("doc", stringValue(t, loader, "master-edit"), "master")
	require.NoError(t, err)
	_, err = w.Put("doc", stringValue(t, loader, "feature-edit"), "feature")
	require.NoError(t, err)

	_, err = w.Merge("doc", NoValue, "master", "feature")
	assert.ErrorIs(t, err, ustoreerr.ErrMergeConflict)

	resolved := stringValue(t, loader, "resolved")
	merged, err := w.Merge("doc", resolved, "master", "feature")
	require.NoError(t, err)

	u, err := w.GetVersion(merged)
	require.NoError(t, err)
	assert.True(t, u.Merged())
	s, err := values.LoadString(u.DataHash(), loader)
	require.NoError(t, err)
	assert.Equal(t, "resolved", s.Data())
}

// TestMergeMapNonConflictingKeys implements a Map three-way merge where
// the two branches touch disjoint keys: both sides' edits should survive
// with no override needed.
func TestMergeMapNonConflictingKeys(t *testing.T) {
	w, loader := newTestWorker(t)

	base, err := values.CreateMap([]tree.MapEntry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}, loader)
	require.NoError(t, err)
	_, err = w.Put("m", Value{Type: ucell.UTypeMap, DataHash: base.Root()}, "master")
	require.NoError(t, err)
	require.NoError(t, w.Branch("m", "master", "feature"))

	masterMap := values.NewMap(base.Root(), loader)
	masterRoot, err := masterMap.Set([]byte("a"), []byte("1-master"))
	require.NoError(t, err)
	_, err = w.Put("m", Value{Type: ucell.UTypeMap, DataHash: masterRoot}, "master")
	require.NoError(t, err)

	featureMap := values.NewMap(base.Root(), loader)
	featureRoot, err := featureMap.Set([]byte("c"), []byte("3-feature"))
	require.NoError(t, err)
	_, err = w.Put("m", Value{Type: ucell.UTypeMap, DataHash: featureRoot}, "feature")
	require.NoError(t, err)

	mergedVer, err := w.Merge("m", NoValue, "master", "feature")
	require.NoError(t, err)

	u, err := w.GetVersion(mergedVer)
	require.NoError(t, err)
	finalMap := values.NewMap(u.DataHash(), loader)

	v, ok, err := finalMap.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1-master", string(v))

	v, ok, err = finalMap.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(v))

	v, ok, err = finalMap.Get([]byte("c"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3-feature", string(v))
}

// TestRenameAndDelete exercises branch rename and deletion (no GC).
func TestRenameAndDelete(t *testing.T) {
	w, loader := newTestWorker(t)
	v1, err := w.Put("doc", stringValue(t, loader, "x"), "master")
	require.NoError(t, err)

	require.NoError(t, w.Rename("doc", "master", "main"))
	_, ok, err := w.GetBranchHead("doc", "master")
	require.NoError(t, err)
	assert.False(t, ok)
	head, ok, err := w.GetBranchHead("doc", "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v1, head)

	require.NoError(t, w.Delete("doc", "main"))
	_, ok, err = w.GetBranchHead("doc", "main")
	require.NoError(t, err)
	assert.False(t, ok)

	// The UCell chunk itself is still reachable (no GC, Open Question b).
	u, err := w.GetVersion(v1)
	require.NoError(t, err)
	assert.Equal(t, v1, u.Version())
}

// TestListBranchesAndKeys exercises the listing operations.
func TestListBranchesAndKeys(t *testing.T) {
	w, loader := newTestWorker(t)
	_, err := w.Put("doc", stringValue(t, loader, "x"), "master")
	require.NoError(t, err)
	require.NoError(t, w.Branch("doc", "master", "feature"))

	branches, err := w.ListBranches("doc")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"master", "feature"}, branches)

	keys, err := w.ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, keys)
}
