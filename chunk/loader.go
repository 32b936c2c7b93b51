package chunk

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ustoredb/ustore/hash"
)

// defaultLoaderCap bounds a single Loader's cache so a pathological
// single-request traversal (e.g. a cursor walking a very deep parent
// chain) cannot grow it without limit. This is purely a memory cap on one
// request-scoped loader, not a cross-request cache.
const defaultLoaderCap = 4096

// Loader is the request-scoped cache mapping Hash→Chunk sitting in front
// of a Store (spec §4.3/C4). A Loader is created per logical operation
// (Get, Put, Merge), populated lazily, and discarded — it amortizes
// repeated traversals within one operation (e.g. a cursor's parent chain)
// without globally caching decoded nodes. A Loader is never shared across
// concurrent operations: it holds no synchronization of its own.
type Loader struct {
	store Store
	cache *lru.Cache[hash.Hash, Chunk]
}

// NewLoader creates a Loader backed by store, scoped to a single logical
// operation.
func NewLoader(store Store) *Loader {
	c, _ := lru.New[hash.Hash, Chunk](defaultLoaderCap) // fixed positive size, cannot error
	return &Loader{store: store, cache: c}
}

// Get resolves h to its Chunk, consulting the local cache before falling
// through to the backing Store.
func (l *Loader) Get(h hash.Hash) (Chunk, bool, error) {
	if c, ok := l.cache.Get(h); ok {
		return c, true, nil
	}
	c, ok, err := l.store.Get(h)
	if err != nil {
		return Chunk{}, false, err
	}
	if ok {
		l.cache.Add(h, c)
	}
	return c, ok, nil
}

// Put writes c to the backing Store and primes the local cache with it,
// so a subsequent Get within the same operation (e.g. re-reading a node
// just written by NodeBuilder) avoids a round trip.
func (l *Loader) Put(c Chunk) error {
	if err := l.store.Put(c.Hash(), c); err != nil {
		return err
	}
	l.cache.Add(c.Hash(), c)
	return nil
}

// Store exposes the backing store, for callers that need to perform a
// direct Exists/Info call that does not benefit from caching.
func (l *Loader) Store() Store { return l.store }
