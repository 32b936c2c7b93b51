package tree

import (
	"bytes"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
)

// DiffList yields one callback per index where the two List trees
// disagree (spec §4.6): (index, leftVal, rightVal), with whichever side
// is out of range passed as nil. Identical roots short-circuit to no
// callbacks at all, reusing the whole-subtree-equal-by-hash rule without
// descending.
func DiffList(left, right hash.Hash, loader *chunk.Loader, emit func(index uint64, left, right []byte) error) error {
	if left == right {
		return nil
	}
	lvals, err := DecodeList(left, loader)
	if err != nil {
		return err
	}
	rvals, err := DecodeList(right, loader)
	if err != nil {
		return err
	}
	n := len(lvals)
	if len(rvals) > n {
		n = len(rvals)
	}
	for i := 0; i < n; i++ {
		var lv, rv []byte
		if i < len(lvals) {
			lv = lvals[i]
		}
		if i < len(rvals) {
			rv = rvals[i]
		}
		if !bytes.Equal(lv, rv) {
			if err := emit(uint64(i), lv, rv); err != nil {
				return err
			}
		}
	}
	return nil
}

// DiffMap yields one callback per key present in either Map tree with
// differing (or one-sided) values, in ascending key order (spec §4.6), a
// key-merge walk over the two sorted entry sequences. Identical roots
// short-circuit to no callbacks.
func DiffMap(left, right hash.Hash, loader *chunk.Loader, emit func(key []byte, left, right []byte) error) error {
	if left == right {
		return nil
	}
	lentries, err := DecodeMap(left, loader)
	if err != nil {
		return err
	}
	rentries, err := DecodeMap(right, loader)
	if err != nil {
		return err
	}
	i, j := 0, 0
	for i < len(lentries) && j < len(rentries) {
		c := bytes.Compare(lentries[i].Key, rentries[j].Key)
		switch {
		case c < 0:
			if err := emit(lentries[i].Key, lentries[i].Value, nil); err != nil {
				return err
			}
			i++
		case c > 0:
			if err := emit(rentries[j].Key, nil, rentries[j].Value); err != nil {
				return err
			}
			j++
		default:
			if !bytes.Equal(lentries[i].Value, rentries[j].Value) {
				if err := emit(lentries[i].Key, lentries[i].Value, rentries[j].Value); err != nil {
					return err
				}
			}
			i++
			j++
		}
	}
	for ; i < len(lentries); i++ {
		if err := emit(lentries[i].Key, lentries[i].Value, nil); err != nil {
			return err
		}
	}
	for ; j < len(rentries); j++ {
		if err := emit(rentries[j].Key, nil, rentries[j].Value); err != nil {
			return err
		}
	}
	return nil
}
