package chunk

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/ustoredb/ustore/hash"
)

// StorageInfo reports approximate store occupancy, per spec §4.2's
// info() operation.
type StorageInfo struct {
	ChunkBytesTotal uint64
	ChunksTotal     uint64
}

// String renders a human-readable summary, e.g. "1,024 chunks, 4.2 MB".
func (s StorageInfo) String() string {
	return fmt.Sprintf("%s chunks, %s",
		humanize.Comma(int64(s.ChunksTotal)),
		humanize.Bytes(s.ChunkBytesTotal))
}

// Store is the content-addressed ChunkStore contract consumed by the
// Prolly tree and UCell layers (spec §4.2/§6). Implementations must be
// append-only: Put is idempotent when the caller supplies the hash that
// actually matches the chunk, and previously-put chunks are never removed
// or mutated.
type Store interface {
	// Put writes c under h. If a chunk already exists at h, Put is a
	// no-op as long as h == c.Hash(); otherwise it is an error (a hash
	// collision on non-identical content, which should never happen in
	// practice but is still checked).
	Put(h hash.Hash, c Chunk) error
	// Get returns the chunk stored at h, or ok=false if none exists.
	Get(h hash.Hash) (c Chunk, ok bool, err error)
	// Exists reports whether a chunk is stored at h, without fetching its
	// payload.
	Exists(h hash.Hash) (bool, error)
	// Info reports approximate occupancy.
	Info() (StorageInfo, error)
}

// MemStore is a process-local, in-memory ChunkStore backed by a map. It
// is the simplest of the two alternatives spec §4.2 names ("process-local
// append-only file + in-memory index"/"embedded key-value store") reduced
// to just the in-memory index, useful for tests and for an all-in-memory
// deployment.
type MemStore struct {
	mu     sync.RWMutex
	chunks map[hash.Hash]Chunk
	bytes  uint64
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{chunks: make(map[hash.Hash]Chunk)}
}

func (s *MemStore) Put(h hash.Hash, c Chunk) error {
	if c.Hash() != h {
		return fmt.Errorf("chunk: put hash mismatch: claimed %s, actual %s", h, c.Hash())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chunks[h]; exists {
		return nil // idempotent
	}
	s.chunks[h] = c
	s.bytes += uint64(c.Size())
	return nil
}

func (s *MemStore) Get(h hash.Hash) (Chunk, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[h]
	return c, ok, nil
}

func (s *MemStore) Exists(h hash.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[h]
	return ok, nil
}

func (s *MemStore) Info() (StorageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StorageInfo{ChunkBytesTotal: s.bytes, ChunksTotal: uint64(len(s.chunks))}, nil
}
