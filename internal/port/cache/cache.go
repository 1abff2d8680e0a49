// Package cache defines the port interface for caching and the tenant-scoped
// key scheme all cached reads share.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. Caches are read-through
// conveniences, never authoritative: correctness-critical reads (commission
// rate at booking time, slot availability) always go to the store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Every cached value is keyed under its tenant so an invalidation or a lookup
// can never cross tenants. Keys stick to the JetStream KV charset (dots as
// separators) because the shared L2 lives in a KV bucket.

// TenantKey keys a resolved tenant context by raw public API key.
func TenantKey(publicKey string) string {
	return "tenant.key." + publicKey
}

// PackagesKey keys a tenant's active package list.
func PackagesKey(tenantID string) string {
	return "catalog." + tenantID + ".packages"
}

// PackageKey keys a single package by slug within a tenant.
func PackageKey(tenantID, slug string) string {
	return "catalog." + tenantID + ".package." + slug
}

// AddOnsKey keys the add-on list of a package within a tenant.
func AddOnsKey(tenantID, packageID string) string {
	return "catalog." + tenantID + ".addons." + packageID
}
