package postgres

import (
	"context"
	"fmt"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/tenant"
)

const tenantColumns = `id, slug, name, commission_rate_bps, public_key, secret_key_hash,
	gateway_account_id, onboarding_complete, branding, embed_origin, active, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(
		&t.ID, &t.Slug, &t.Name, &t.CommissionRateBps, &t.PublicKey, &t.SecretKeyHash,
		&t.GatewayAccountID, &t.OnboardingComplete, &t.Branding, &t.EmbedOrigin,
		&t.Active, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (s *Store) CreateTenant(ctx context.Context, t tenant.Tenant) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (slug, name, commission_rate_bps, public_key, secret_key_hash, gateway_account_id, embed_origin)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+tenantColumns,
		t.Slug, t.Name, t.CommissionRateBps, t.PublicKey, t.SecretKeyHash, t.GatewayAccountID, t.EmbedOrigin)

	created, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("tenant slug %s already exists: %w", t.Slug, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return &created, nil
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", slug)
	}
	return &t, nil
}

func (s *Store) GetTenantByPublicKey(ctx context.Context, publicKey string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE public_key = $1`, publicKey)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant by key")
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// UpdateTenant applies the non-nil fields of req. Nil pointers and empty
// strings leave the stored value untouched.
func (s *Store) UpdateTenant(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE tenants SET
			name = COALESCE(NULLIF($2, ''), name),
			commission_rate_bps = COALESCE($3, commission_rate_bps),
			branding = COALESCE($4, branding),
			embed_origin = COALESCE(NULLIF($5, ''), embed_origin),
			active = COALESCE($6, active),
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+tenantColumns,
		id, req.Name, req.CommissionRateBps, req.Branding, req.EmbedOrigin, req.Active)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "update tenant %s", id)
	}
	return &t, nil
}

func (s *Store) RotateTenantKeys(ctx context.Context, id, publicKey, secretKeyHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET public_key = $2, secret_key_hash = $3, updated_at = now()
		 WHERE id = $1`,
		id, publicKey, secretKeyHash)
	return execExpectOne(tag, err, "rotate keys for tenant %s", id)
}

// SetTenantOnboarding flips the onboarding flag for the tenant owning the
// given gateway account. Driven by account.updated webhook deliveries.
func (s *Store) SetTenantOnboarding(ctx context.Context, gatewayAccountID string, complete bool) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE tenants SET onboarding_complete = $2, updated_at = now()
		 WHERE gateway_account_id = $1
		 RETURNING `+tenantColumns,
		gatewayAccountID, complete)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "set onboarding for account %s", gatewayAccountID)
	}
	return &t, nil
}
