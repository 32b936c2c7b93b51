// Copyright 2026 The UStore Authors.
//
// Package hash implements the 20-byte content digest used to address every
// chunk in the store. Values are lexicographically comparable and have a
// stable Base32 text form.
package hash

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ByteLen is the fixed digest length.
const ByteLen = 20

// alphabet is the Base32 alphabet the wire format and human-readable
// printing use: digits then uppercase letters up to V, so every character
// is a single base-32 symbol and the whole 20-byte hash prints as exactly
// 32 characters.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUV"

var reverseAlphabet [256]int8

func init() {
	for i := range reverseAlphabet {
		reverseAlphabet[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		reverseAlphabet[alphabet[i]] = int8(i)
	}
}

// StringLen is the length of the Base32 text encoding of a Hash.
const StringLen = 32 // 20 bytes * 8 bits / 5 bits-per-symbol, rounded up

// Hash is a 20-byte content digest. The zero value is kNull, the
// distinguished "no parent" / "empty data" sentinel.
type Hash [ByteLen]byte

// Null is the distinguished all-zero sentinel denoting "no parent" or
// "empty data" (spec: kNull).
var Null = Hash{}

// Of computes the content hash of b: a BLAKE2b digest configured for a
// 20-byte (160-bit) output.
func Of(b []byte) Hash {
	h, err := blake2b.New(ByteLen, nil)
	if err != nil {
		// Only fails for invalid size/key arguments, which are fixed
		// constants here; a failure means the binary is broken.
		panic(fmt.Sprintf("hash: blake2b-160 unavailable: %v", err))
	}
	h.Write(b)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// New is an alias for Of, matching the naming some callers expect.
func New(b []byte) Hash { return Of(b) }

// IsEmpty reports whether h is the Null sentinel.
func (h Hash) IsEmpty() bool { return h == Null }

// Less reports whether h sorts strictly before o under lexicographic byte
// ordering.
func (h Hash) Less(o Hash) bool { return bytesLess(h[:], o[:]) }

// Compare returns -1, 0 or 1 as h is less than, equal to, or greater than o.
func (h Hash) Compare(o Hash) int {
	if h == o {
		return 0
	}
	if h.Less(o) {
		return -1
	}
	return 1
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Equal reports byte-for-byte equality in constant time, useful when a
// hash comparison gates an access-control decision elsewhere in a
// deployment (the core itself never needs constant time, but the helper
// costs nothing to expose).
func Equal(a, b Hash) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// String renders h as its 32-character Base32 text form.
func (h Hash) String() string {
	return encode(h[:])
}

func encode(b []byte) string {
	// 20 bytes = 160 bits = 32 * 5 bits, so this divides evenly; no
	// padding logic is needed the way general base32 needs it.
	out := make([]byte, StringLen)
	var bitBuf uint64
	var bitCount uint
	oi := 0
	for _, by := range b {
		bitBuf = (bitBuf << 8) | uint64(by)
		bitCount += 8
		for bitCount >= 5 {
			bitCount -= 5
			out[oi] = alphabet[(bitBuf>>bitCount)&0x1F]
			oi++
		}
	}
	if bitCount > 0 {
		out[oi] = alphabet[(bitBuf<<(5-bitCount))&0x1F]
		oi++
	}
	return string(out[:oi])
}

// Parse decodes a 32-character Base32 string into a Hash, panicking on
// malformed input. Use MaybeParse when the input is untrusted.
func Parse(s string) Hash {
	h, ok := MaybeParse(s)
	if !ok {
		panic(fmt.Sprintf("hash: invalid base32 hash string %q", s))
	}
	return h
}

// MaybeParse decodes s into a Hash, returning ok=false (and the zero Hash)
// if s is not a well-formed 32-character Base32 hash.
func MaybeParse(s string) (h Hash, ok bool) {
	if len(s) != StringLen {
		return Hash{}, false
	}
	var bitBuf uint64
	var bitCount uint
	out := make([]byte, 0, ByteLen)
	for i := 0; i < len(s); i++ {
		v := reverseAlphabet[s[i]]
		if v < 0 {
			return Hash{}, false
		}
		bitBuf = (bitBuf << 5) | uint64(v)
		bitCount += 5
		if bitCount >= 8 {
			bitCount -= 8
			out = append(out, byte(bitBuf>>bitCount))
		}
	}
	if len(out) != ByteLen {
		return Hash{}, false
	}
	copy(h[:], out)
	return h, true
}

// Slice is a sortable slice of Hash, used by the partitioning table and by
// tests that want a total order over a set of hashes.
type Slice []Hash

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
