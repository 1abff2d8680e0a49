package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/commission"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/port/database"
)

// TenantService provisions and administers tenants. It is the platform
// operator's surface, driven by the admin CLI rather than the HTTP API, and
// is the only place plaintext secret keys exist: they are minted here,
// returned once, and only their bcrypt hash is stored.
type TenantService struct {
	store     database.Store
	directory *DirectoryService
}

// NewTenantService creates a new TenantService. The directory is needed so
// key-affecting changes evict the cached resolution for the old key.
func NewTenantService(store database.Store, directory *DirectoryService) *TenantService {
	return &TenantService{store: store, directory: directory}
}

// Create provisions a tenant with a fresh key pair. The returned secret key
// is shown to the operator exactly once and cannot be recovered later, only
// rotated.
func (s *TenantService) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, string, error) {
	if req.Name == "" {
		return nil, "", fmt.Errorf("tenant name is required: %w", domain.ErrValidation)
	}
	if !commission.RateInBounds(req.CommissionRateBps) {
		return nil, "", fmt.Errorf("commission rate %d outside [%d, %d] bps: %w",
			req.CommissionRateBps, commission.MinRateBps, commission.MaxRateBps, domain.ErrValidation)
	}

	publicKey, secretKey, err := tenant.NewKeyPair(req.Slug)
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secretKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash secret key: %w", err)
	}

	created, err := s.store.CreateTenant(ctx, tenant.Tenant{
		Slug:              req.Slug,
		Name:              req.Name,
		CommissionRateBps: req.CommissionRateBps,
		PublicKey:         publicKey,
		SecretKeyHash:     string(hash),
		GatewayAccountID:  req.GatewayAccountID,
		EmbedOrigin:       req.EmbedOrigin,
	})
	if err != nil {
		return nil, "", err
	}
	slog.Info("tenant created", "tenant", created.ID, "slug", created.Slug)
	return created, secretKey, nil
}

// Get returns a tenant by slug.
func (s *TenantService) Get(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return s.store.GetTenantBySlug(ctx, slug)
}

// List returns all tenants, oldest first.
func (s *TenantService) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Update applies the set fields of req to the tenant with the given slug and
// evicts the cached key resolution, so commission, branding and deactivation
// changes take effect on the next request rather than at cache expiry.
func (s *TenantService) Update(ctx context.Context, slug string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	if req.CommissionRateBps != nil && !commission.RateInBounds(*req.CommissionRateBps) {
		return nil, fmt.Errorf("commission rate %d outside [%d, %d] bps: %w",
			*req.CommissionRateBps, commission.MinRateBps, commission.MaxRateBps, domain.ErrValidation)
	}

	t, err := s.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateTenant(ctx, t.ID, req)
	if err != nil {
		return nil, err
	}
	if err := s.directory.Invalidate(ctx, updated.PublicKey); err != nil {
		slog.Warn("tenant cache invalidation failed", "tenant", updated.ID, "error", err)
	}
	slog.Info("tenant updated", "tenant", updated.ID, "slug", updated.Slug, "active", updated.Active)
	return updated, nil
}

// RotateKeys replaces both API keys for the tenant with the given slug. The
// old public key stops resolving immediately; the new secret key is returned
// once alongside the new public key.
func (s *TenantService) RotateKeys(ctx context.Context, slug string) (publicKey, secretKey string, err error) {
	t, err := s.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		return "", "", err
	}
	oldKey := t.PublicKey

	publicKey, secretKey, err = tenant.NewKeyPair(slug)
	if err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secretKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash secret key: %w", err)
	}
	if err := s.store.RotateTenantKeys(ctx, t.ID, publicKey, string(hash)); err != nil {
		return "", "", err
	}
	if err := s.directory.Invalidate(ctx, oldKey); err != nil {
		slog.Warn("tenant cache invalidation failed", "tenant", t.ID, "error", err)
	}
	slog.Info("tenant keys rotated", "tenant", t.ID, "slug", t.Slug)
	return publicKey, secretKey, nil
}
