package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/catalog"
)

func (s *Store) ListBlackouts(ctx context.Context, tenantID string, from, to time.Time) ([]catalog.Blackout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, day, reason, created_at FROM blackouts
		 WHERE tenant_id = $1 AND day >= $2 AND day < $3
		 ORDER BY day ASC`,
		tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blackouts: %w", err)
	}
	defer rows.Close()

	var blackouts []catalog.Blackout
	for rows.Next() {
		var b catalog.Blackout
		if err := rows.Scan(&b.TenantID, &b.Date, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blackout: %w", err)
		}
		blackouts = append(blackouts, b)
	}
	return orEmpty(blackouts), rows.Err()
}

func (s *Store) CreateBlackout(ctx context.Context, tenantID string, date time.Time, reason string) (*catalog.Blackout, error) {
	var b catalog.Blackout
	err := s.pool.QueryRow(ctx,
		`INSERT INTO blackouts (tenant_id, day, reason)
		 VALUES ($1, $2, $3)
		 RETURNING tenant_id, day, reason, created_at`,
		tenantID, date, reason,
	).Scan(&b.TenantID, &b.Date, &b.Reason, &b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("blackout on %s already exists: %w",
				date.Format("2006-01-02"), domain.ErrConflict)
		}
		return nil, fmt.Errorf("create blackout: %w", err)
	}
	return &b, nil
}

func (s *Store) DeleteBlackout(ctx context.Context, tenantID string, date time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM blackouts WHERE tenant_id = $1 AND day = $2`,
		tenantID, date)
	return execExpectOne(tag, err, "delete blackout %s", date.Format("2006-01-02"))
}
