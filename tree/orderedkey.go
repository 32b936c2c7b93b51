package tree

import "bytes"

// OrderedKey is the per-entry ordering key the Prolly tree's Meta layer
// summarizes as MaxOrderedKey (spec §3). For List/Blob trees it is the
// cumulative element-count prefix (an integer); for Map/Set trees it is
// the byte-key of the entry (spec: "for Map/Set it is the byte-key of the
// last entry in that subtree").
type OrderedKey struct {
	byBytes bool
	num     uint64
	bytes   []byte
}

// NumKey builds an integer-valued OrderedKey (List/Blob trees).
func NumKey(n uint64) OrderedKey { return OrderedKey{num: n} }

// ByteKey builds a byte-slice-valued OrderedKey (Map/Set trees).
func ByteKey(b []byte) OrderedKey { return OrderedKey{byBytes: true, bytes: append([]byte(nil), b...)} }

// IsByteKey reports whether this key orders by byte content rather than
// by integer value.
func (k OrderedKey) IsByteKey() bool { return k.byBytes }

// Num returns the integer value of a numeric OrderedKey. Meaningless on a
// byte-keyed OrderedKey.
func (k OrderedKey) Num() uint64 { return k.num }

// Bytes returns the byte value of a byte-keyed OrderedKey. Meaningless on
// a numeric OrderedKey.
func (k OrderedKey) Bytes() []byte { return k.bytes }

// Less reports whether k sorts strictly before o. Both must be of the
// same kind (both numeric or both byte-keyed) — comparing across kinds is
// a programming error within a single tree, since a tree's leaves all
// share one element type (spec invariant).
func (k OrderedKey) Less(o OrderedKey) bool {
	if k.byBytes {
		return bytes.Compare(k.bytes, o.bytes) < 0
	}
	return k.num < o.num
}

// Compare returns -1, 0, 1 as k is less than, equal to, or greater than o.
func (k OrderedKey) Compare(o OrderedKey) int {
	if k.byBytes {
		return bytes.Compare(k.bytes, o.bytes)
	}
	switch {
	case k.num < o.num:
		return -1
	case k.num > o.num:
		return 1
	default:
		return 0
	}
}

// Max returns whichever of k, o sorts later — used when folding child
// MaxOrderedKeys up into a parent MetaEntry (spec: "maxOrderedKey = max(child.maxOrderedKey)").
func Max(k, o OrderedKey) OrderedKey {
	if k.Less(o) {
		return o
	}
	return k
}
