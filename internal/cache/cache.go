// Package cache is a small typed read-through cache on top of patrickmn/go-cache.
package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = 5 * time.Minute

// LoadFunc fetches the value for key on a miss.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// ReadThrough caches successful loads for ttl. Errors are never cached.
// A ttl <= 0 disables caching and every Get calls load.
// A load that overlaps an Invalidate or Flush of its key is returned but not stored.
type ReadThrough[V any] struct {
	cache *gocache.Cache
	load  LoadFunc[V]
	ttl   time.Duration

	mu    sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

// NewReadThrough creates a read-through cache around load.
func NewReadThrough[V any](ttl time.Duration, load LoadFunc[V]) *ReadThrough[V] {
	return &ReadThrough[V]{
		cache: gocache.New(ttl, DefaultCleanupInterval),
		load:  load,
		ttl:   ttl,
		gens:  make(map[string]uint64),
	}
}

// Get returns the cached value for key, loading and storing it on a miss.
func (r *ReadThrough[V]) Get(ctx context.Context, key string) (V, error) {
	if r.ttl <= 0 {
		return r.load(ctx, key)
	}

	if value, found := r.cache.Get(key); found {
		if v, ok := value.(V); ok {
			return v, nil
		}
	}

	epoch, gen := r.generation(key)
	v, err := r.load(ctx, key)
	if err != nil {
		return v, err
	}

	r.mu.Lock()
	if r.epoch == epoch && r.gens[key] == gen {
		r.cache.Set(key, v, r.ttl)
	}
	r.mu.Unlock()
	return v, nil
}

func (r *ReadThrough[V]) generation(key string) (uint64, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch, r.gens[key]
}

// Invalidate drops key so the next Get reloads it.
// Loads of key already in flight are not stored.
func (r *ReadThrough[V]) Invalidate(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		r.gens[key]++
		r.cache.Delete(key)
	}
}

// Flush drops every entry.
func (r *ReadThrough[V]) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	clear(r.gens)
	r.cache.Flush()
}

// Len returns the number of cached entries, expired ones included until cleanup.
func (r *ReadThrough[V]) Len() int {
	return r.cache.ItemCount()
}
