package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/daybookhq/daybook/internal/adapter/otel"
	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/port/broadcast"
	"github.com/daybookhq/daybook/internal/port/database"
	"github.com/daybookhq/daybook/internal/port/messagequeue"
)

// BookingService owns the booking lifecycle around the store's atomic
// reserve: validation in front, lifecycle events and widget broadcasts
// behind. The store settles date contention; this layer never pre-checks
// availability.
type BookingService struct {
	store   database.Store
	queue   messagequeue.Queue
	events  broadcast.Broadcaster
	metrics *otel.Metrics
	holdTTL time.Duration
}

// NewBookingService creates a new BookingService.
func NewBookingService(store database.Store, queue messagequeue.Queue, events broadcast.Broadcaster, metrics *otel.Metrics, holdTTL time.Duration) *BookingService {
	return &BookingService{store: store, queue: queue, events: events, metrics: metrics, holdTTL: holdTTL}
}

// Create validates the request and reserves the (tenant, date) slot. On
// success the booking is PENDING with a payment hold of holdTTL; the caller
// initiates payment separately.
func (s *BookingService) Create(ctx context.Context, tc tenant.Context, req booking.CreateRequest) (*booking.Booking, error) {
	date, err := req.Validate()
	if err != nil {
		return nil, err
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if date.Before(today) {
		return nil, fmt.Errorf("date %s is in the past: %w", req.Date, domain.ErrValidation)
	}

	ctx, span := otel.StartReserveSpan(ctx, tc.ID, req.PackageSlug, req.Date)
	defer span.End()

	b, err := s.store.ReserveBooking(ctx, booking.ReserveParams{
		TenantID:    tc.ID,
		PackageSlug: req.PackageSlug,
		Date:        date,
		Guest:       req.Guest,
		AddOnIDs:    req.AddOnIDs,
		HoldTTL:     s.holdTTL,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingsReserved.Add(ctx, 1)
	s.metrics.CommissionAmount.Record(ctx, b.Commission)
	slog.Info("booking reserved",
		"booking", b.ID, "tenant", b.TenantID, "date", req.Date,
		"total", b.Total, "commission", b.Commission)

	publishEvent(ctx, s.queue, messagequeue.SubjectBookingCreated, b)
	s.events.BroadcastEvent(ctx, tc.ID, broadcast.EventBookingCreated, broadcast.BookingCreatedEvent{
		BookingID: b.ID,
		EventDate: b.EventDate.Format(booking.DateLayout),
		Status:    string(b.Status),
	})
	return b, nil
}

// Get returns one booking of the tenant.
func (s *BookingService) Get(ctx context.Context, tenantID, id string) (*booking.Booking, error) {
	return s.store.GetBooking(ctx, tenantID, id)
}

// List returns the tenant's bookings narrowed by filter.
func (s *BookingService) List(ctx context.Context, tenantID string, f booking.ListFilter) ([]booking.Booking, error) {
	return s.store.ListBookings(ctx, tenantID, f)
}

// Cancel releases a booking's date slot. PENDING and CONFIRMED bookings
// cancel; terminal ones come back as ErrConflict.
func (s *BookingService) Cancel(ctx context.Context, tenantID, id string) (*booking.Booking, error) {
	b, err := s.store.CancelBooking(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	s.metrics.BookingsCanceled.Add(ctx, 1)
	slog.Info("booking canceled", "booking", b.ID, "tenant", b.TenantID)
	publishEvent(ctx, s.queue, messagequeue.SubjectBookingCanceled, b)
	return b, nil
}

// publishEvent puts a lifecycle event on the stream. Publish failures are
// logged, never propagated: the booking state in the store is the truth and
// external consumers catch up from the stream when it recovers.
func publishEvent(ctx context.Context, q messagequeue.Queue, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal lifecycle event", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.Error("publish lifecycle event", "subject", subject, "error", err)
	}
}
