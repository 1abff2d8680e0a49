package postgres

import (
	"context"
	"fmt"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/catalog"
)

const packageColumns = `id, tenant_id, slug, name, description, price, duration_mins,
	capacity, display_order, active, created_at, updated_at`

func scanPackage(row scannable) (catalog.Package, error) {
	var p catalog.Package
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Slug, &p.Name, &p.Description, &p.Price,
		&p.DurationMins, &p.Capacity, &p.DisplayOrder, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *Store) ListPackages(ctx context.Context, tenantID string, includeInactive bool) ([]catalog.Package, error) {
	q := `SELECT ` + packageColumns + ` FROM packages WHERE tenant_id = $1`
	if !includeInactive {
		q += ` AND active`
	}
	q += ` ORDER BY display_order ASC, created_at ASC`

	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var packages []catalog.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return orEmpty(packages), rows.Err()
}

func (s *Store) GetPackageBySlug(ctx context.Context, tenantID, slug string) (*catalog.Package, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE tenant_id = $1 AND slug = $2`,
		tenantID, slug)

	p, err := scanPackage(row)
	if err != nil {
		return nil, notFoundWrap(err, "get package %s", slug)
	}
	return &p, nil
}

func (s *Store) GetPackage(ctx context.Context, tenantID, id string) (*catalog.Package, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)

	p, err := scanPackage(row)
	if err != nil {
		return nil, notFoundWrap(err, "get package %s", id)
	}
	return &p, nil
}

func (s *Store) CreatePackage(ctx context.Context, tenantID string, req catalog.CreatePackageRequest) (*catalog.Package, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO packages (tenant_id, slug, name, description, price, duration_mins, capacity, display_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+packageColumns,
		tenantID, req.Slug, req.Name, req.Description, req.Price,
		req.DurationMins, req.Capacity, req.DisplayOrder)

	p, err := scanPackage(row)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("package slug %s already exists: %w", req.Slug, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create package: %w", err)
	}
	return &p, nil
}

// UpdatePackage applies the non-nil fields of req. Nil pointers and empty
// strings leave the stored value untouched.
func (s *Store) UpdatePackage(ctx context.Context, tenantID, id string, req catalog.UpdatePackageRequest) (*catalog.Package, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE packages SET
			name = COALESCE(NULLIF($3, ''), name),
			description = COALESCE(NULLIF($4, ''), description),
			price = COALESCE($5, price),
			duration_mins = COALESCE($6, duration_mins),
			capacity = COALESCE($7, capacity),
			display_order = COALESCE($8, display_order),
			active = COALESCE($9, active),
			updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+packageColumns,
		tenantID, id, req.Name, req.Description, req.Price,
		req.DurationMins, req.Capacity, req.DisplayOrder, req.Active)

	p, err := scanPackage(row)
	if err != nil {
		return nil, notFoundWrap(err, "update package %s", id)
	}
	return &p, nil
}

func (s *Store) DeactivatePackage(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE packages SET active = FALSE, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	return execExpectOne(tag, err, "deactivate package %s", id)
}
