package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/daybookhq/daybook/internal/domain"
)

// Postgres error code for unique_violation.
const uniqueViolationCode = "23505"

// scannable abstracts pgx.Row and pgx.Rows so each store shares one scan
// function between single-row and list queries.
type scannable interface {
	Scan(dest ...any) error
}

// querier is the query surface shared by pgxpool.Pool and pgx.Tx. Helpers
// written against it work the same inside and outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// nullIfEmpty maps "" to SQL NULL for nullable text and UUID columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// textArray hands pgx a non-nil slice; a nil slice would write SQL NULL
// where the schema wants an empty text[].
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// orEmpty normalizes a nil result slice to an empty one, so handlers encode
// [] instead of null when a list query matches nothing.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// notFoundWrap translates pgx.ErrNoRows into domain.ErrNotFound under the
// given message; any other error is wrapped as is.
func notFoundWrap(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// execExpectOne treats an Exec that touched no rows as domain.ErrNotFound.
// Updates and deletes keyed by id use it to surface missing rows.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	switch {
	case err != nil:
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrNotFound)
	default:
		return nil
	}
}

// isUniqueViolation reports whether err is a Postgres unique violation,
// optionally pinned to one constraint. An empty name matches any.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
