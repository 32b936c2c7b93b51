// Copyright 2026 The UStore Authors.
//
// Three-way merge (spec §4.10/C13): locate the common ancestor of two
// versions, detect fast-forward, and otherwise combine per composite
// type, falling back to MergeConflict wherever the two sides disagree
// and the caller supplied no override value.
package worker

import (
	"bytes"
	"sort"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/recovery"
	"github.com/ustoredb/ustore/tree"
	"github.com/ustoredb/ustore/ucell"
	"github.com/ustoredb/ustore/ustoreerr"
)

func recordUpdate(key, branch string, v hash.Hash) recovery.Record {
	return recovery.Record{Cmd: recovery.CmdUpdate, Key: key, Branch: branch, Ver: v}
}

// Merge combines branch tgtBranch's head with branch refBranch's head and
// advances tgtBranch to the resulting version.
func (w *Worker) Merge(key string, override Value, tgtBranch, refBranch string) (hash.Hash, error) {
	p1, ok, err := w.index.GetBranch(key, tgtBranch)
	if err != nil {
		return hash.Hash{}, err
	}
	if !ok {
		return hash.Hash{}, ustoreerr.ErrBranchNotExists
	}
	p2, ok, err := w.index.GetBranch(key, refBranch)
	if err != nil {
		return hash.Hash{}, err
	}
	if !ok {
		return hash.Hash{}, ustoreerr.ErrBranchNotExists
	}
	newVer, err := w.merge(key, override, p1, p2)
	if err != nil {
		return hash.Hash{}, err
	}
	if err := w.appendLog(recordUpdate(key, tgtBranch, newVer)); err != nil {
		return hash.Hash{}, err
	}
	if err := w.index.PutBranch(key, tgtBranch, newVer); err != nil {
		return hash.Hash{}, err
	}
	return newVer, nil
}

// MergeWithVersion combines tgtBranch's head with an explicit reference
// version and advances tgtBranch.
func (w *Worker) MergeWithVersion(key string, override Value, tgtBranch string, refVersion hash.Hash) (hash.Hash, error) {
	p1, ok, err := w.index.GetBranch(key, tgtBranch)
	if err != nil {
		return hash.Hash{}, err
	}
	if !ok {
		return hash.Hash{}, ustoreerr.ErrBranchNotExists
	}
	newVer, err := w.merge(key, override, p1, refVersion)
	if err != nil {
		return hash.Hash{}, err
	}
	if err := w.appendLog(recordUpdate(key, tgtBranch, newVer)); err != nil {
		return hash.Hash{}, err
	}
	return newVer, w.index.PutBranch(key, tgtBranch, newVer)
}

// MergeVersions combines two explicit versions and returns the merged
// version without updating any branch head (a detached merge).
func (w *Worker) MergeVersions(key string, override Value, refVer1, refVer2 hash.Hash) (hash.Hash, error) {
	return w.merge(key, override, refVer1, refVer2)
}

func (w *Worker) merge(key string, override Value, p1, p2 hash.Hash) (hash.Hash, error) {
	if p1 == p2 {
		return p1, nil
	}
	loader := w.newLoader()

	anc1, err := ancestors(p1, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	anc2, err := ancestors(p2, loader)
	if err != nil {
		return hash.Hash{}, err
	}

	// A true fast-forward (reusing the descendant's version as-is, with
	// no new UCell at all) only applies when the caller supplied no
	// override: a Merge call carrying an explicit value always records a
	// real merge commit, even if one parent happens to be an ancestor of
	// the other (spec §8 invariant 5 merges a branch head with one of its
	// own ancestors and still expects a two-parent merge UCell).
	if !override.has() {
		if anc1[p2] {
			// p2 is an ancestor of p1: p1 already contains p2's history.
			return w.fastForward(key, p1, p2)
		}
		if anc2[p1] {
			return w.fastForward(key, p2, p1)
		}
	}

	lca, err := findLCA(p1, p2, anc1, anc2, loader)
	if err != nil {
		return hash.Hash{}, err
	}

	u1, err := ucell.Load(p1, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	u2, err := ucell.Load(p2, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	if u1.Type() != u2.Type() {
		return hash.Hash{}, ustoreerr.New(ustoreerr.TypeMismatch, "worker: cannot merge differing composite types")
	}

	var baseDataHash hash.Hash
	if lca != hash.Null {
		ub, err := ucell.Load(lca, loader)
		if err != nil {
			return hash.Hash{}, err
		}
		baseDataHash = ub.DataHash()
	}

	newDataHash, err := combine(u1.Type(), baseDataHash, u1.DataHash(), u2.DataHash(), override, loader)
	if err != nil {
		return hash.Hash{}, err
	}

	u, err := ucell.Create(ucell.Spec{
		Type:     u1.Type(),
		DataHash: newDataHash,
		PreHash1: p1,
		PreHash2: p2,
		Key:      []byte(key),
	}, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	newVer := u.Version()
	if err := w.index.PutLatest(key, p1, p2, newVer); err != nil {
		return hash.Hash{}, err
	}
	return newVer, nil
}

// fastForward records descendant as the new tip without minting a new
// UCell — a fast-forward merge just adopts the already-existing version.
func (w *Worker) fastForward(key string, descendant, ancestor hash.Hash) (hash.Hash, error) {
	if err := w.index.PutLatest(key, ancestor, hash.Null, descendant); err != nil {
		return hash.Hash{}, err
	}
	return descendant, nil
}

// ancestors walks the UCell parent chain (both preHash1 and preHash2)
// from v, returning the set of every version reachable, including v
// itself.
func ancestors(v hash.Hash, loader *chunk.Loader) (map[hash.Hash]bool, error) {
	seen := map[hash.Hash]bool{}
	queue := []hash.Hash{v}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == hash.Null || seen[h] {
			continue
		}
		seen[h] = true
		u, err := ucell.Load(h, loader)
		if err != nil {
			return nil, err
		}
		if u.PreHash1() != hash.Null {
			queue = append(queue, u.PreHash1())
		}
		if u.PreHash2() != hash.Null {
			queue = append(queue, u.PreHash2())
		}
	}
	return seen, nil
}

// findLCA performs a BFS from p1 outward through its ancestor chain
// (both parents of every version), returning the first version that is
// also in p2's ancestor set anc2; the walk goes in parent-generation order
// so the result is the common ancestor fewest hops from p1. Returns
// hash.Null if the two histories
// share no ancestor (an unrelated-roots merge).
func findLCA(p1, p2 hash.Hash, anc1, anc2 map[hash.Hash]bool, loader *chunk.Loader) (hash.Hash, error) {
	// anc1/anc2 already hold the full ancestor sets; the most recent
	// common ancestor is whichever shared version has the fewest hops
	// from p1, discovered via a generation-ordered BFS over p1's chain.
	visited := map[hash.Hash]bool{}
	queue := []hash.Hash{p1}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == hash.Null || visited[h] {
			continue
		}
		visited[h] = true
		if anc2[h] {
			return h, nil
		}
		u, err := ucell.Load(h, loader)
		if err != nil {
			return hash.Hash{}, err
		}
		if u.PreHash1() != hash.Null {
			queue = append(queue, u.PreHash1())
		}
		if u.PreHash2() != hash.Null {
			queue = append(queue, u.PreHash2())
		}
	}
	return hash.Null, nil
}

// combine merges the two sides' data roots per composite type.
func combine(typ ucell.UType, base, left, right hash.Hash, override Value, loader *chunk.Loader) (hash.Hash, error) {
	switch typ {
	case ucell.UTypeBlob, ucell.UTypeString:
		if left == right {
			return left, nil
		}
		if override.has() {
			return override.DataHash, nil
		}
		return hash.Hash{}, ustoreerr.ErrMergeConflict

	case ucell.UTypeList:
		return combineList(base, left, right, override, loader)

	case ucell.UTypeMap:
		return combineMap(base, left, right, override, loader)

	case ucell.UTypeSet:
		return combineSet(base, left, right, override, loader)

	default:
		return hash.Hash{}, ustoreerr.New(ustoreerr.TypeUnsupported, "worker: unknown composite type")
	}
}

func combineList(base, left, right hash.Hash, override Value, loader *chunk.Loader) (hash.Hash, error) {
	if left == right {
		return left, nil
	}
	baseVals, err := decodeListOrEmpty(base, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	leftVals, err := tree.DecodeList(left, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	rightVals, err := tree.DecodeList(right, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	var overrideVals [][]byte
	if override.has() {
		overrideVals, err = tree.DecodeList(override.DataHash, loader)
		if err != nil {
			return hash.Hash{}, err
		}
	}

	n := len(leftVals)
	if len(rightVals) > n {
		n = len(rightVals)
	}
	if len(leftVals) != len(rightVals) && !override.has() {
		// The two sides differ in length; without an override this
		// positional merge reports a conflict.
		return hash.Hash{}, ustoreerr.ErrMergeConflict
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		var bv, lv, rv []byte
		if i < len(baseVals) {
			bv = baseVals[i]
		}
		if i < len(leftVals) {
			lv = leftVals[i]
		}
		if i < len(rightVals) {
			rv = rightVals[i]
		}
		switch {
		case bytes.Equal(lv, rv):
			out = append(out, lv)
		case bytes.Equal(bv, lv):
			out = append(out, rv)
		case bytes.Equal(bv, rv):
			out = append(out, lv)
		case override.has() && i < len(overrideVals):
			out = append(out, overrideVals[i])
		default:
			return hash.Hash{}, ustoreerr.ErrMergeConflict
		}
	}
	return tree.NewBuilder(loader, tree.KindList).BuildList(out)
}

func combineMap(base, left, right hash.Hash, override Value, loader *chunk.Loader) (hash.Hash, error) {
	if left == right {
		return left, nil
	}
	baseEntries, err := decodeMapOrEmpty(base, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	leftEntries, err := tree.DecodeMap(left, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	rightEntries, err := tree.DecodeMap(right, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	baseByKey := entriesToMap(baseEntries)
	combined := map[string][]byte{}
	for k, v := range entriesToMap(leftEntries) {
		combined[k] = v
	}

	changedLeft := diffEntries(baseByKey, entriesToMap(leftEntries))
	changedRight := diffEntries(baseByKey, entriesToMap(rightEntries))

	var overrideEntries []tree.MapEntry
	overrideByKey := map[string][]byte{}
	if override.has() {
		overrideEntries, err = tree.DecodeMap(override.DataHash, loader)
		if err != nil {
			return hash.Hash{}, err
		}
		for _, e := range overrideEntries {
			overrideByKey[string(e.Key)] = e.Value
		}
	}

	keys := map[string]bool{}
	for k := range changedLeft {
		keys[k] = true
	}
	for k := range changedRight {
		keys[k] = true
	}
	for k := range keys {
		l, lok := changedLeft[k]
		r, rok := changedRight[k]
		switch {
		case lok && rok:
			if bytes.Equal(l[1], r[1]) {
				setOrDelete(combined, k, l[1])
				continue
			}
			if v, ok := overrideByKey[k]; ok {
				setOrDelete(combined, k, v)
				continue
			}
			return hash.Hash{}, ustoreerr.ErrMergeConflict
		case lok:
			setOrDelete(combined, k, l[1])
		case rok:
			setOrDelete(combined, k, r[1])
		}
	}

	out := make([]tree.MapEntry, 0, len(combined))
	for k, v := range combined {
		out = append(out, tree.MapEntry{Key: []byte(k), Value: v})
	}
	sortMapEntries(out)
	return tree.NewBuilder(loader, tree.KindMap).BuildMap(out)
}

func combineSet(base, left, right hash.Hash, override Value, loader *chunk.Loader) (hash.Hash, error) {
	if left == right {
		return left, nil
	}
	present := map[string]bool{}
	baseKeys, err := decodeSetOrEmpty(base, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	for _, k := range baseKeys {
		present[string(k)] = true
	}
	leftKeys, err := tree.DecodeSet(left, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	rightKeys, err := tree.DecodeSet(right, loader)
	if err != nil {
		return hash.Hash{}, err
	}
	leftSet := toSet(leftKeys)
	rightSet := toSet(rightKeys)
	baseSet := toSet(baseKeys)

	for k := range leftSet {
		if !baseSet[k] {
			present[k] = true // added on the left
		}
	}
	for k := range rightSet {
		if !baseSet[k] {
			present[k] = true // added on the right
		}
	}
	for k := range baseSet {
		removedLeft := !leftSet[k]
		removedRight := !rightSet[k]
		if removedLeft || removedRight {
			delete(present, k)
		}
	}

	out := make([][]byte, 0, len(present))
	for k := range present {
		out = append(out, []byte(k))
	}
	sortByteSlices(out)
	return tree.NewBuilder(loader, tree.KindSet).BuildSet(out)
}

func setOrDelete(m map[string][]byte, key string, val []byte) {
	if val == nil {
		delete(m, key)
		return
	}
	m[key] = val
}

func entriesToMap(entries []tree.MapEntry) map[string][]byte {
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		out[string(e.Key)] = e.Value
	}
	return out
}

// diffEntries returns, for every key present in either base or other with
// a differing (or one-sided) value, {baseVal, otherVal} — otherVal is nil
// for a key removed in other.
func diffEntries(base, other map[string][]byte) map[string][2][]byte {
	out := map[string][2][]byte{}
	for k, bv := range base {
		if ov, ok := other[k]; !ok {
			out[k] = [2][]byte{bv, nil}
		} else if !bytes.Equal(bv, ov) {
			out[k] = [2][]byte{bv, ov}
		}
	}
	for k, ov := range other {
		if _, ok := base[k]; !ok {
			out[k] = [2][]byte{nil, ov}
		}
	}
	return out
}

func sortMapEntries(entries []tree.MapEntry) {
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })
}

func sortByteSlices(s [][]byte) {
	sort.Slice(s, func(i, j int) bool { return bytes.Compare(s[i], s[j]) < 0 })
}

func decodeListOrEmpty(root hash.Hash, loader *chunk.Loader) ([][]byte, error) {
	if root == hash.Null {
		return nil, nil
	}
	return tree.DecodeList(root, loader)
}

func decodeMapOrEmpty(root hash.Hash, loader *chunk.Loader) ([]tree.MapEntry, error) {
	if root == hash.Null {
		return nil, nil
	}
	return tree.DecodeMap(root, loader)
}

func decodeSetOrEmpty(root hash.Hash, loader *chunk.Loader) ([][]byte, error) {
	if root == hash.Null {
		return nil, nil
	}
	return tree.DecodeSet(root, loader)
}

func toSet(keys [][]byte) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[string(k)] = true
	}
	return out
}
