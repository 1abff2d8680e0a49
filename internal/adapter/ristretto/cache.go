// Package ristretto implements the cache port using dgraph-io/ristretto as
// the in-process L1. Tenant contexts and catalog listings live here between
// invalidations; staleness is bounded by the TTLs the services pass in.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache as the in-process L1.
type Cache struct {
	store *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed cache sized in megabytes. Cached values are
// charged their byte length, so maxSizeMB caps total resident cache memory.
func New(maxSizeMB int64) (*Cache, error) {
	maxCost := maxSizeMB * 1024 * 1024
	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Tenant contexts and catalog payloads average ~1KB; budget
		// counters for 10x the item count the byte budget implies.
		NumCounters: maxCost / 1024 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

// Get reads key from the cache. A miss is not an error.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.store.Get(key)
	return val, ok, nil
}

// Set stores value under key, charging its byte length against the cache
// budget. Ristretto buffers writes; Wait flushes them.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.store.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes key from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.store.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied. Lookups right after a Set
// (key rotation, catalog invalidation) need this; steady-state reads do not.
func (c *Cache) Wait() {
	c.store.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.store.Close()
}
