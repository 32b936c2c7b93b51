package headindex

import (
	"sync"

	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/ustoreerr"
)

// MemIndex is a process-local, in-memory Index backed by Go maps — the
// "in-memory hash maps" alternative of spec §4.8.
type MemIndex struct {
	mu       sync.RWMutex
	branches map[string]map[string]hash.Hash // key -> branch -> head version
	latest   map[string]map[hash.Hash]bool   // key -> set of tip versions
}

// NewMemIndex constructs an empty MemIndex.
func NewMemIndex() *MemIndex {
	return &MemIndex{
		branches: make(map[string]map[string]hash.Hash),
		latest:   make(map[string]map[hash.Hash]bool),
	}
}

func (m *MemIndex) GetBranch(key, branch string) (hash.Hash, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bs, ok := m.branches[key]
	if !ok {
		return hash.Hash{}, false, nil
	}
	v, ok := bs[branch]
	return v, ok, nil
}

func (m *MemIndex) PutBranch(key, branch string, v hash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs, ok := m.branches[key]
	if !ok {
		bs = make(map[string]hash.Hash)
		m.branches[key] = bs
	}
	bs[branch] = v
	return nil
}

func (m *MemIndex) RemoveBranch(key, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs, ok := m.branches[key]
	if !ok {
		return ustoreerr.ErrBranchNotExists
	}
	if _, ok := bs[branch]; !ok {
		return ustoreerr.ErrBranchNotExists
	}
	delete(bs, branch)
	return nil
}

func (m *MemIndex) RenameBranch(key, oldBranch, newBranch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs, ok := m.branches[key]
	if !ok {
		return ustoreerr.ErrBranchNotExists
	}
	v, ok := bs[oldBranch]
	if !ok {
		return ustoreerr.ErrBranchNotExists
	}
	if _, exists := bs[newBranch]; exists {
		return ustoreerr.ErrBranchExists
	}
	delete(bs, oldBranch)
	bs[newBranch] = v
	return nil
}

func (m *MemIndex) Exists(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.branches[key]
	if ok {
		return true, nil
	}
	_, ok = m.latest[key]
	return ok, nil
}

func (m *MemIndex) ExistsBranch(key, branch string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bs, ok := m.branches[key]
	if !ok {
		return false, nil
	}
	_, ok = bs[branch]
	return ok, nil
}

func (m *MemIndex) ListBranches(key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bs, ok := m.branches[key]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(bs))
	for b := range bs {
		out = append(out, b)
	}
	return out, nil
}

func (m *MemIndex) ListKeys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool, len(m.branches)+len(m.latest))
	for k := range m.branches {
		seen[k] = true
	}
	for k := range m.latest {
		seen[k] = true
	}
	return sortedCopy(seen), nil
}

func (m *MemIndex) GetLatest(key string) ([]hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.latest[key]
	if !ok {
		return nil, nil
	}
	out := make([]hash.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out, nil
}

func (m *MemIndex) PutLatest(key string, pre1, pre2 hash.Hash, v hash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.latest[key]
	if !ok {
		set = make(map[hash.Hash]bool)
		m.latest[key] = set
	}
	if pre1 != hash.Null {
		delete(set, pre1)
	}
	if pre2 != hash.Null {
		delete(set, pre2)
	}
	set[v] = true
	return nil
}

func (m *MemIndex) IsLatest(key string, v hash.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.latest[key]
	if !ok {
		return false, nil
	}
	return set[v], nil
}

func (m *MemIndex) IsBranchHead(key, branch string, v hash.Hash) (bool, error) {
	head, ok, err := m.GetBranch(key, branch)
	if err != nil || !ok {
		return false, err
	}
	return head == v, nil
}
