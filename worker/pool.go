// Copyright 2026 The UStore Authors.
//
// Pool implements the worker-side concurrency model (spec §5): requests
// for different keys run fully in parallel, while requests for the same
// key serialize so a read-modify-write sequence (e.g. Put's
// read-head/create-UCell/update-index) never races with itself.
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool serializes access per key while allowing unrelated keys to
// proceed concurrently.
type Pool struct {
	w     *Worker
	locks sync.Map // key string -> *sync.Mutex
}

// NewPool wraps w with per-key serialization.
func NewPool(w *Worker) *Pool {
	return &Pool{w: w}
}

func (p *Pool) lockFor(key string) *sync.Mutex {
	v, _ := p.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Do runs fn with exclusive access to key, blocking until any other
// in-flight operation on the same key completes.
func (p *Pool) Do(key string, fn func(*Worker) error) error {
	mu := p.lockFor(key)
	mu.Lock()
	defer mu.Unlock()
	return fn(p.w)
}

// DoEach runs fn once per key in keys, concurrently across keys (each
// individually serialized against other operations on that same key),
// and returns the first error encountered (spec §5: "a batch spans
// multiple keys, each key's portion runs independently").
func (p *Pool) DoEach(ctx context.Context, keys []string, fn func(*Worker, string) error) error {
	g, _ := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			return p.Do(key, func(w *Worker) error { return fn(w, key) })
		})
	}
	return g.Wait()
}
