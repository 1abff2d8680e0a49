package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/domain/commission"
)

const bookingColumns = `id, tenant_id, package_id, event_date, guest_name, guest_email,
	guest_phone, guest_note, add_on_ids, total, commission, commission_rate_bps,
	payment_intent_id, client_secret, status, expires_at, created_at, confirmed_at, canceled_at`

func scanBooking(row scannable) (booking.Booking, error) {
	var b booking.Booking
	err := row.Scan(
		&b.ID, &b.TenantID, &b.PackageID, &b.EventDate, &b.Guest.Name, &b.Guest.Email,
		&b.Guest.Phone, &b.Guest.Note, &b.AddOnIDs, &b.Total, &b.Commission, &b.CommissionRateBps,
		&b.PaymentIntentID, &b.ClientSecret, &b.Status, &b.ExpiresAt, &b.CreatedAt,
		&b.ConfirmedAt, &b.CanceledAt,
	)
	return b, err
}

// ReserveBooking atomically takes the (tenant, date) slot. The whole
// operation runs in one transaction: resolve the package, price the add-ons,
// snapshot the tenant's current commission rate, release an expired hold on
// the same date, and insert the PENDING row. Concurrency is settled by the
// partial unique index on live bookings, never by a prior read.
func (s *Store) ReserveBooking(ctx context.Context, p booking.ReserveParams) (*booking.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var (
		pkgID   string
		price   int64
		rateBps int32
	)
	err = tx.QueryRow(ctx,
		`SELECT p.id, p.price, t.commission_rate_bps
		 FROM packages p
		 JOIN tenants t ON t.id = p.tenant_id
		 WHERE p.tenant_id = $1 AND p.slug = $2 AND p.active`,
		p.TenantID, p.PackageSlug,
	).Scan(&pkgID, &price, &rateBps)
	if err != nil {
		return nil, notFoundWrap(err, "resolve package %s", p.PackageSlug)
	}

	addOnTotal, err := priceAddOns(ctx, tx, p.TenantID, pkgID, p.AddOnIDs)
	if err != nil {
		return nil, err
	}

	var blackedOut bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blackouts WHERE tenant_id = $1 AND day = $2)`,
		p.TenantID, p.Date,
	).Scan(&blackedOut)
	if err != nil {
		return nil, fmt.Errorf("check blackout: %w", err)
	}
	if blackedOut {
		return nil, fmt.Errorf("date %s is blacked out: %w",
			p.Date.Format(booking.DateLayout), domain.ErrDateUnavailable)
	}

	// Release an expired hold on this date so the insert below can take the
	// slot without waiting for the sweeper.
	_, err = tx.Exec(ctx,
		`UPDATE bookings SET status = 'canceled', canceled_at = now()
		 WHERE tenant_id = $1 AND event_date = $2 AND status = 'pending' AND expires_at <= now()`,
		p.TenantID, p.Date)
	if err != nil {
		return nil, fmt.Errorf("release expired hold: %w", err)
	}

	total := price + addOnTotal
	fee := commission.Fee(rateBps, total)
	expiresAt := time.Now().UTC().Add(p.HoldTTL)

	row := tx.QueryRow(ctx,
		`INSERT INTO bookings (tenant_id, package_id, event_date, guest_name, guest_email,
			guest_phone, guest_note, add_on_ids, total, commission, commission_rate_bps, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+bookingColumns,
		p.TenantID, pkgID, p.Date, p.Guest.Name, p.Guest.Email, p.Guest.Phone, p.Guest.Note,
		textArray(p.AddOnIDs), total, fee, rateBps, expiresAt)

	b, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err, "idx_bookings_live_date") {
			return nil, fmt.Errorf("date %s already booked: %w",
				p.Date.Format(booking.DateLayout), domain.ErrDateUnavailable)
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	return &b, nil
}

func (s *Store) GetBooking(ctx context.Context, tenantID, id string) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)

	b, err := scanBooking(row)
	if err != nil {
		return nil, notFoundWrap(err, "get booking %s", id)
	}
	return &b, nil
}

func (s *Store) GetBookingByIntent(ctx context.Context, intentID string) (*booking.Booking, error) {
	if intentID == "" {
		return nil, fmt.Errorf("get booking by intent: empty intent id: %w", domain.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE payment_intent_id = $1`, intentID)

	b, err := scanBooking(row)
	if err != nil {
		return nil, notFoundWrap(err, "get booking by intent")
	}
	return &b, nil
}

func (s *Store) ListBookings(ctx context.Context, tenantID string, f booking.ListFilter) ([]booking.Booking, error) {
	args := []any{tenantID}
	conditions := []string{"tenant_id = $1"}
	argIdx := 2

	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(f.Status))
		argIdx++
	}
	if !f.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("event_date >= $%d", argIdx))
		args = append(args, f.From)
		argIdx++
	}
	if !f.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("event_date < $%d", argIdx))
		args = append(args, f.To)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s ORDER BY event_date ASC, created_at ASC LIMIT $%d`,
		bookingColumns, strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit)
	argIdx++

	if f.Offset > 0 {
		q += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return orEmpty(bookings), rows.Err()
}

// ListBookedDates returns the dates in [from, to) holding a live booking.
// Pending holds past their expiry no longer count.
func (s *Store) ListBookedDates(ctx context.Context, tenantID string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_date FROM bookings
		 WHERE tenant_id = $1 AND event_date >= $2 AND event_date < $3
		   AND (status = 'confirmed' OR (status = 'pending' AND expires_at > now()))
		 ORDER BY event_date ASC`,
		tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list booked dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan booked date: %w", err)
		}
		dates = append(dates, d)
	}
	return orEmpty(dates), rows.Err()
}

func (s *Store) SetBookingPayment(ctx context.Context, tenantID, id, intentID, clientSecret string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bookings SET payment_intent_id = $3, client_secret = $4
		 WHERE tenant_id = $1 AND id = $2 AND status = 'pending'`,
		tenantID, id, intentID, clientSecret)
	return execExpectOne(tag, err, "set payment on booking %s", id)
}

// ConfirmBookingByIntent flips the booking for the given payment intent from
// PENDING to CONFIRMED. The bool result reports whether this call changed the
// row; a replayed confirmation or a booking already out of PENDING returns
// the current row with changed == false.
func (s *Store) ConfirmBookingByIntent(ctx context.Context, intentID string) (*booking.Booking, bool, error) {
	if intentID == "" {
		return nil, false, fmt.Errorf("confirm booking: empty intent id: %w", domain.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE bookings SET status = 'confirmed', confirmed_at = now()
		 WHERE payment_intent_id = $1 AND status = 'pending'
		 RETURNING `+bookingColumns, intentID)

	b, err := scanBooking(row)
	if err == nil {
		return &b, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("confirm booking by intent: %w", err)
	}

	existing, err := s.GetBookingByIntent(ctx, intentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) CancelBooking(ctx context.Context, tenantID, id string) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE bookings SET status = 'canceled', canceled_at = now()
		 WHERE tenant_id = $1 AND id = $2 AND status IN ('pending', 'confirmed')
		 RETURNING `+bookingColumns,
		tenantID, id)

	b, err := scanBooking(row)
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cancel booking %s: %w", id, err)
	}

	existing, gerr := s.GetBooking(ctx, tenantID, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, fmt.Errorf("booking %s is %s: %w", id, existing.Status, domain.ErrConflict)
}

func (s *Store) MarkBookingRefunded(ctx context.Context, tenantID, id string) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE bookings SET status = 'refunded'
		 WHERE tenant_id = $1 AND id = $2 AND status = 'confirmed'
		 RETURNING `+bookingColumns,
		tenantID, id)

	b, err := scanBooking(row)
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark booking %s refunded: %w", id, err)
	}

	existing, gerr := s.GetBooking(ctx, tenantID, id)
	if gerr != nil {
		return nil, gerr
	}
	if existing.Status == booking.StatusRefunded {
		return existing, nil
	}
	return nil, fmt.Errorf("booking %s is %s: %w", id, existing.Status, domain.ErrConflict)
}

// ExpireBookings cancels up to limit PENDING holds whose expiry passed the
// cutoff and returns the released rows. SKIP LOCKED keeps concurrent sweeps
// from fighting over the same batch.
func (s *Store) ExpireBookings(ctx context.Context, cutoff time.Time, limit int32) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE bookings SET status = 'canceled', canceled_at = now()
		 WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'pending' AND expires_at <= $1
			ORDER BY expires_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+bookingColumns,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("expire bookings: %w", err)
	}
	defer rows.Close()

	var expired []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired booking: %w", err)
		}
		expired = append(expired, b)
	}
	return expired, rows.Err()
}
