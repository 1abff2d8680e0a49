// Package tiered implements the cache port as an L1/L2 pair: a per-instance
// cache in front of one shared by the fleet.
package tiered

import (
	"context"
	"time"

	"github.com/daybookhq/daybook/internal/port/cache"
)

// Cache reads through a local L1 before the shared L2 and promotes L2 hits
// into L1. Writes and deletes go to the shared level first and the local
// level second, so an instance never holds an entry the fleet cannot see.
type Cache struct {
	local      cache.Cache
	shared     cache.Cache
	promoteTTL time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New combines a local and a shared cache. promoteTTL bounds how long a
// promoted entry lives locally, which is also how long this instance may
// keep serving an entry the fleet has already invalidated.
func New(local, shared cache.Cache, promoteTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, promoteTTL: promoteTTL}
}

// Get checks the local level, then the shared one, promoting shared hits.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.local.Get(ctx, key); err != nil || ok {
		return val, ok, err
	}

	val, ok, err := c.shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = c.local.Set(ctx, key, val, c.promoteTTL)
	return val, true, nil
}

// Set writes through both levels, shared first.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, key, value, ttl)
}

// Delete invalidates both levels, shared first, so a racing Get on this
// instance cannot re-promote the entry being removed.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.shared.Delete(ctx, key); err != nil {
		return err
	}
	return c.local.Delete(ctx, key)
}
