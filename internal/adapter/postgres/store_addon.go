package postgres

import (
	"context"
	"fmt"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/catalog"
)

const addOnColumns = `id, tenant_id, package_id, name, price, active, created_at`

func scanAddOn(row scannable) (catalog.AddOn, error) {
	var a catalog.AddOn
	err := row.Scan(&a.ID, &a.TenantID, &a.PackageID, &a.Name, &a.Price, &a.Active, &a.CreatedAt)
	return a, err
}

// ListAddOns returns the active add-ons attached to a package.
func (s *Store) ListAddOns(ctx context.Context, tenantID, packageID string) ([]catalog.AddOn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+addOnColumns+` FROM add_ons
		 WHERE tenant_id = $1 AND package_id = $2 AND active
		 ORDER BY created_at ASC`,
		tenantID, packageID)
	if err != nil {
		return nil, fmt.Errorf("list add-ons: %w", err)
	}
	defer rows.Close()

	var addOns []catalog.AddOn
	for rows.Next() {
		a, err := scanAddOn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan add-on: %w", err)
		}
		addOns = append(addOns, a)
	}
	return orEmpty(addOns), rows.Err()
}

func (s *Store) CreateAddOn(ctx context.Context, tenantID string, req catalog.CreateAddOnRequest) (*catalog.AddOn, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO add_ons (tenant_id, package_id, name, price)
		 SELECT $1, p.id, $3, $4 FROM packages p
		 WHERE p.tenant_id = $1 AND p.id = $2
		 RETURNING `+addOnColumns,
		tenantID, req.PackageID, req.Name, req.Price)

	a, err := scanAddOn(row)
	if err != nil {
		// The INSERT .. SELECT returns no row when the package does not
		// belong to this tenant.
		return nil, notFoundWrap(err, "create add-on under package %s", req.PackageID)
	}
	return &a, nil
}

// DeactivateAddOn retires an add-on and returns it so the caller can
// invalidate the owning package's cached add-on list.
func (s *Store) DeactivateAddOn(ctx context.Context, tenantID, id string) (*catalog.AddOn, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE add_ons SET active = FALSE WHERE tenant_id = $1 AND id = $2
		 RETURNING `+addOnColumns,
		tenantID, id)

	a, err := scanAddOn(row)
	if err != nil {
		return nil, notFoundWrap(err, "deactivate add-on %s", id)
	}
	return &a, nil
}

// priceAddOns resolves the requested add-on ids to their prices inside a
// reserve transaction. Every id must name an active add-on of the given
// package owned by the given tenant; anything else fails the whole set.
func priceAddOns(ctx context.Context, q querier, tenantID, packageID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	rows, err := q.Query(ctx,
		`SELECT id::text, price FROM add_ons
		 WHERE tenant_id = $1 AND package_id = $2 AND active AND id::text = ANY($3)`,
		tenantID, packageID, textArray(ids))
	if err != nil {
		return 0, fmt.Errorf("price add-ons: %w", err)
	}
	defer rows.Close()

	var sum int64
	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		var price int64
		if err := rows.Scan(&id, &price); err != nil {
			return 0, fmt.Errorf("scan add-on price: %w", err)
		}
		found[id] = struct{}{}
		sum += price
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(found) != len(ids) {
		var missing []string
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				missing = append(missing, id)
			}
		}
		return 0, &domain.InvalidAddOnError{AddOnIDs: missing}
	}
	return sum, nil
}
