package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/port/cache"
	"github.com/daybookhq/daybook/internal/port/database"
)

// DirectoryService resolves API keys to tenant contexts. Public key lookups
// go through a read-through cache; secret key checks always hit the store
// because they bcrypt-compare against the stored hash.
type DirectoryService struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewDirectoryService creates a new DirectoryService. ttl bounds how long a
// resolved tenant context may be served from cache.
func NewDirectoryService(store database.Store, c cache.Cache, ttl time.Duration) *DirectoryService {
	return &DirectoryService{store: store, cache: c, ttl: ttl}
}

// Resolve maps a public API key to the owning tenant's context. Malformed
// keys fail before any lookup; unknown keys and deactivated tenants come back
// as the same ErrUnauthorized, so a caller cannot probe which keys exist.
func (s *DirectoryService) Resolve(ctx context.Context, publicKey string) (tenant.Context, error) {
	if _, err := tenant.ParsePublicKey(publicKey); err != nil {
		return tenant.Context{}, err
	}

	key := cache.TenantKey(publicKey)
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("tenant cache read failed", "error", err)
	} else if ok {
		var tc tenant.Context
		if err := json.Unmarshal(raw, &tc); err == nil {
			return tc, nil
		}
		// An undecodable entry is dropped so the next lookup repopulates it.
		_ = s.cache.Delete(ctx, key)
	}

	t, err := s.store.GetTenantByPublicKey(ctx, publicKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("unknown public key presented")
			return tenant.Context{}, fmt.Errorf("resolve tenant key: %w", domain.ErrUnauthorized)
		}
		return tenant.Context{}, err
	}
	if !t.Active {
		slog.Warn("key presented for deactivated tenant", "tenant", t.ID)
		return tenant.Context{}, fmt.Errorf("resolve tenant key: %w", domain.ErrUnauthorized)
	}

	tc := tenant.ContextOf(*t)
	if data, err := json.Marshal(tc); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("tenant cache write failed", "tenant", t.ID, "error", err)
		}
	}
	return tc, nil
}

// VerifySecret authenticates a server-to-server secret key. The slug embedded
// in the key picks the tenant row; the full key is bcrypt-compared against
// the stored hash.
func (s *DirectoryService) VerifySecret(ctx context.Context, secretKey string) (tenant.Context, error) {
	slug, err := tenant.ParseSecretKey(secretKey)
	if err != nil {
		return tenant.Context{}, err
	}

	t, err := s.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("secret key presented for unknown tenant", "slug", slug)
			return tenant.Context{}, fmt.Errorf("verify secret key: %w", domain.ErrUnauthorized)
		}
		return tenant.Context{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(t.SecretKeyHash), []byte(secretKey)); err != nil {
		slog.Warn("secret key mismatch", "tenant", t.ID)
		return tenant.Context{}, fmt.Errorf("verify secret key: %w", domain.ErrUnauthorized)
	}
	if !t.Active {
		slog.Warn("secret key presented for deactivated tenant", "tenant", t.ID)
		return tenant.Context{}, fmt.Errorf("verify secret key: %w", domain.ErrUnauthorized)
	}
	return tenant.ContextOf(*t), nil
}

// Invalidate drops a cached key resolution. Called on deactivation, key
// rotation, and onboarding changes so stale contexts never outlive the event.
func (s *DirectoryService) Invalidate(ctx context.Context, publicKey string) error {
	return s.cache.Delete(ctx, cache.TenantKey(publicKey))
}
