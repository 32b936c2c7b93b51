// Copyright 2026 The UStore Authors.
//
// Package partition implements the client-side key-to-worker routing
// table (spec §4.11/C14): a sorted list of hash ranges, each owned by one
// worker address. This package owns only the data structure; the
// zero-copy cluster transport that consumes it is out of scope.
package partition

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ustoredb/ustore/hash"
)

// Range is one partition entry. Address serves the keys whose hash is at
// or above the previous entry's StartHash and below this entry's
// StartHash; the first entry also serves the keys whose hash is at or
// above the last entry's StartHash (wrap-around).
type Range struct {
	StartHash hash.Hash
	Address   string
}

// ParseRange decodes a Base32 start-hash string into a Range.
func ParseRange(startHashBase32, address string) (Range, error) {
	h, ok := hash.MaybeParse(startHashBase32)
	if !ok {
		return Range{}, fmt.Errorf("partition: invalid start hash %q", startHashBase32)
	}
	return Range{StartHash: h, Address: address}, nil
}

// Table is a routing table mapping keys to worker addresses by sorted
// hash ranges (spec §4.11). It is safe for concurrent use; Refresh swaps
// the whole range list atomically.
type Table struct {
	mu     sync.RWMutex
	ranges []Range // sorted ascending by StartHash
}

// NewTable builds a Table from ranges, sorting them by StartHash.
func NewTable(ranges []Range) *Table {
	t := &Table{}
	t.set(ranges)
	return t
}

func (t *Table) set(ranges []Range) {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartHash.Less(sorted[j].StartHash) })
	t.mu.Lock()
	t.ranges = sorted
	t.mu.Unlock()
}

// Refresh replaces the table's ranges wholesale — called after a routing
// error forces the client to re-fetch the worker list (spec §4.11: "The
// mapping is refreshed on routing errors").
func (t *Table) Refresh(ranges []Range) {
	t.set(ranges)
}

// Resolve picks the address owning key: "the first range whose start >
// hash(k), falling back to range 0 (wrap-around)" per spec §4.11 — a
// Chord-style ring walk where a node owns the keys clockwise up to, but
// not including, its own start point.
func (t *Table) Resolve(key string) (Range, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.ranges) == 0 {
		return Range{}, false
	}
	h := hash.Of([]byte(key))
	i := sort.Search(len(t.ranges), func(i int) bool { return h.Less(t.ranges[i].StartHash) })
	if i == len(t.ranges) {
		return t.ranges[0], true
	}
	return t.ranges[i], true
}

// Ranges returns a snapshot of the current range list, sorted by
// StartHash.
func (t *Table) Ranges() []Range {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Range(nil), t.ranges...)
}
