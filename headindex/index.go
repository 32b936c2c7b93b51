// Copyright 2026 The UStore Authors.
//
// Package headindex implements the head-version index (spec §4.8/C11):
// the authoritative mapping from (key, branch) to the branch's head
// version, and from key to its set of "latest" (tip) versions. Two
// interchangeable implementations are provided: MemIndex (in-memory maps)
// and BoltIndex (an embedded go.etcd.io/bbolt store), matching the two
// alternatives the spec names.
package headindex

import (
	"sort"

	"github.com/ustoredb/ustore/hash"
)

// Index is the head-version index contract (spec §4.8).
type Index interface {
	GetBranch(key, branch string) (hash.Hash, bool, error)
	PutBranch(key, branch string, v hash.Hash) error
	RemoveBranch(key, branch string) error
	RenameBranch(key, oldBranch, newBranch string) error
	Exists(key string) (bool, error)
	ExistsBranch(key, branch string) (bool, error)
	ListBranches(key string) ([]string, error)
	ListKeys() ([]string, error)

	GetLatest(key string) ([]hash.Hash, error)
	// PutLatest records v as a new tip of key, removing pre1 and pre2 from
	// the latest set if present (spec §3: a Put/Merge's parents are no
	// longer tips once superseded).
	PutLatest(key string, pre1, pre2 hash.Hash, v hash.Hash) error
	IsLatest(key string, v hash.Hash) (bool, error)
	IsBranchHead(key, branch string, v hash.Hash) (bool, error)
}

func sortedCopy(keys map[string]bool) []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
