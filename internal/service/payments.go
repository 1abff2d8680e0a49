package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daybookhq/daybook/internal/adapter/otel"
	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/domain/commission"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/port/broadcast"
	"github.com/daybookhq/daybook/internal/port/database"
	"github.com/daybookhq/daybook/internal/port/gateway"
	"github.com/daybookhq/daybook/internal/port/messagequeue"
)

// PaymentService drives money movement for bookings. The synchronous gateway
// response is treated as provisional everywhere: only the verified webhook
// confirms a booking, and only a successful gateway refund call marks one
// refunded.
type PaymentService struct {
	store    database.Store
	gateway  gateway.Gateway
	queue    messagequeue.Queue
	events   broadcast.Broadcaster
	metrics  *otel.Metrics
	currency string
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(store database.Store, gw gateway.Gateway, queue messagequeue.Queue, events broadcast.Broadcaster, metrics *otel.Metrics, currency string) *PaymentService {
	return &PaymentService{store: store, gateway: gw, queue: queue, events: events, metrics: metrics, currency: currency}
}

// Initiate creates (or replays) the payment intent for a PENDING booking and
// returns the booking with the client secret the widget needs. Retrying is
// safe: a booking that already carries an intent short-circuits, and the
// gateway idempotency key derives from the booking id, so even a lost
// response converges on one intent.
func (s *PaymentService) Initiate(ctx context.Context, tc tenant.Context, bookingID string) (*booking.Booking, error) {
	if !tc.OnboardingComplete {
		return nil, fmt.Errorf("tenant %s cannot take payments yet: %w", tc.ID, domain.ErrNotOnboarded)
	}

	b, err := s.store.GetBooking(ctx, tc.ID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != booking.StatusPending {
		return nil, fmt.Errorf("booking %s is %s, not payable: %w", b.ID, b.Status, domain.ErrConflict)
	}
	if !b.ExpiresAt.IsZero() && time.Now().UTC().After(b.ExpiresAt) {
		return nil, fmt.Errorf("booking %s hold has expired: %w", b.ID, domain.ErrConflict)
	}
	if b.PaymentIntentID != "" && b.ClientSecret != "" {
		return b, nil
	}

	ctx, span := otel.StartPaymentSpan(ctx, "create_intent", b.ID)
	defer span.End()

	start := time.Now()
	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		Amount:         b.Total,
		Currency:       s.currency,
		AccountID:      tc.GatewayAccountID,
		ApplicationFee: b.Commission,
		IdempotencyKey: "pay_" + b.ID,
		Description:    fmt.Sprintf("booking %s on %s", b.ID, b.EventDate.Format(booking.DateLayout)),
		Metadata: map[string]string{
			"booking_id": b.ID,
			"tenant_id":  b.TenantID,
		},
	})
	s.metrics.GatewayDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		// The booking stays PENDING; the caller may retry while the hold lasts.
		slog.Warn("create intent failed", "booking", b.ID, "tenant", b.TenantID,
			"retryable", domain.IsRetryableGateway(err), "error", err)
		return nil, err
	}

	if err := s.store.SetBookingPayment(ctx, tc.ID, b.ID, intent.ID, intent.ClientSecret); err != nil {
		return nil, err
	}
	slog.Info("payment intent created", "booking", b.ID, "tenant", b.TenantID, "intent", intent.ID)

	b.PaymentIntentID = intent.ID
	b.ClientSecret = intent.ClientSecret
	return b, nil
}

// Confirm transitions the booking behind a payment intent to CONFIRMED.
// Called by the webhook ingestor after signature verification; replays return
// the booking with changed == false and cause no second round of side
// effects.
func (s *PaymentService) Confirm(ctx context.Context, intentID string) (*booking.Booking, bool, error) {
	b, changed, err := s.store.ConfirmBookingByIntent(ctx, intentID)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		if b.Status == booking.StatusCanceled {
			// Payment landed after the hold was released. The money is in;
			// the slot may be gone. Needs a human.
			slog.Error("payment succeeded for canceled booking, manual reconciliation needed",
				"booking", b.ID, "tenant", b.TenantID, "intent", intentID)
		} else {
			slog.Info("confirm replayed", "booking", b.ID, "status", b.Status)
		}
		return b, false, nil
	}

	s.metrics.BookingsConfirmed.Add(ctx, 1)
	slog.Info("booking confirmed", "booking", b.ID, "tenant", b.TenantID, "intent", intentID)
	publishEvent(ctx, s.queue, messagequeue.SubjectBookingConfirmed, b)
	s.events.BroadcastEvent(ctx, b.TenantID, broadcast.EventBookingCompleted, broadcast.BookingCompletedEvent{
		BookingID: b.ID,
		Status:    string(b.Status),
	})
	return b, true, nil
}

// Refund reverses a confirmed booking's payment, amount zero meaning the full
// total. The platform fee is reversed proportionally. The gateway call runs
// first: if it fails, the booking keeps its status and the error goes back to
// the operator for manual reconciliation. Only a full refund moves the
// booking to REFUNDED.
func (s *PaymentService) Refund(ctx context.Context, tc tenant.Context, bookingID string, amount int64, reason string) (*booking.Booking, error) {
	b, err := s.store.GetBooking(ctx, tc.ID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != booking.StatusConfirmed {
		return nil, fmt.Errorf("booking %s is %s, only confirmed bookings refund: %w", b.ID, b.Status, domain.ErrConflict)
	}
	if b.PaymentIntentID == "" {
		return nil, fmt.Errorf("booking %s has no payment intent: %w", b.ID, domain.ErrConflict)
	}
	if amount == 0 {
		amount = b.Total
	}
	if amount < 0 || amount > b.Total {
		return nil, fmt.Errorf("refund amount %d out of range for total %d: %w", amount, b.Total, domain.ErrValidation)
	}

	feeRefund := commission.RefundFee(b.Commission, amount, b.Total)

	ctx, span := otel.StartPaymentSpan(ctx, "refund", b.ID)
	defer span.End()

	start := time.Now()
	refund, err := s.gateway.RefundIntent(ctx, gateway.RefundParams{
		IntentID:       b.PaymentIntentID,
		AccountID:      tc.GatewayAccountID,
		Amount:         amount,
		FeeRefund:      feeRefund,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("refund_%s_%d", b.ID, amount),
	})
	s.metrics.GatewayDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Error("refund failed, booking left untouched", "booking", b.ID,
			"amount", amount, "error", err)
		return nil, err
	}
	slog.Info("refund accepted", "booking", b.ID, "refund", refund.ID,
		"amount", amount, "fee_refund", feeRefund)

	if amount < b.Total {
		// Partial refund: the booking keeps its date and stays CONFIRMED.
		return b, nil
	}

	refunded, err := s.store.MarkBookingRefunded(ctx, tc.ID, b.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.BookingsRefunded.Add(ctx, 1)
	publishEvent(ctx, s.queue, messagequeue.SubjectBookingRefunded, refunded)
	return refunded, nil
}
