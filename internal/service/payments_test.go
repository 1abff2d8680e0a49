package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/port/broadcast"
	"github.com/daybookhq/daybook/internal/port/gateway"
	"github.com/daybookhq/daybook/internal/port/messagequeue"
)

// mockGateway records calls and mints deterministic intents.
type mockGateway struct {
	mu          sync.Mutex
	createCalls []gateway.CreateIntentParams
	refundCalls []gateway.RefundParams
	createErr   error
	refundErr   error
}

var _ gateway.Gateway = (*mockGateway)(nil)

func (g *mockGateway) CreateIntent(_ context.Context, p gateway.CreateIntentParams) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.createCalls = append(g.createCalls, p)
	return &gateway.Intent{
		ID:           fmt.Sprintf("pi_%d", len(g.createCalls)),
		ClientSecret: fmt.Sprintf("pi_%d_secret", len(g.createCalls)),
		Status:       "requires_payment_method",
	}, nil
}

func (g *mockGateway) RefundIntent(_ context.Context, p gateway.RefundParams) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refundCalls = append(g.refundCalls, p)
	return &gateway.Refund{ID: fmt.Sprintf("re_%d", len(g.refundCalls)), Status: "succeeded"}, nil
}

// paymentFixture wires a PaymentService over a store seeded with one booking
// in the given status, totals matching the standard fixture package plus its
// add-on.
func paymentFixture(t *testing.T, status booking.Status, intentID string) (*PaymentService, *mockStore, *mockGateway, *mockQueue, *mockBroadcaster) {
	t.Helper()
	store := seedCatalog()
	b := booking.Booking{
		ID:                "bk1",
		TenantID:          "t1",
		PackageID:         "p1",
		EventDate:         mustDate(t, "2027-06-15"),
		AddOnIDs:          []string{"a1"},
		Total:             60000,
		Commission:        7500,
		CommissionRateBps: 1250,
		PaymentIntentID:   intentID,
		Status:            status,
		CreatedAt:         time.Now().UTC(),
	}
	if status == booking.StatusPending {
		b.ExpiresAt = time.Now().UTC().Add(30 * time.Minute)
	}
	store.bookings = []booking.Booking{b}

	gw := &mockGateway{}
	queue := &mockQueue{}
	events := &mockBroadcaster{}
	svc := NewPaymentService(store, gw, queue, events, newTestMetrics(t), "usd")
	return svc, store, gw, queue, events
}

func TestPaymentInitiate(t *testing.T) {
	svc, store, gw, _, _ := paymentFixture(t, booking.StatusPending, "")

	b, err := svc.Initiate(context.Background(), bellaContext(), "bk1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.PaymentIntentID != "pi_1" || b.ClientSecret != "pi_1_secret" {
		t.Fatalf("booking intent = %q secret = %q", b.PaymentIntentID, b.ClientSecret)
	}

	if len(gw.createCalls) != 1 {
		t.Fatalf("gateway called %d times, want 1", len(gw.createCalls))
	}
	p := gw.createCalls[0]
	if p.Amount != 60000 || p.ApplicationFee != 7500 {
		t.Fatalf("charge = %d fee = %d, want 60000 and 7500", p.Amount, p.ApplicationFee)
	}
	if p.AccountID != "acct_1" {
		t.Fatalf("account = %s, want acct_1", p.AccountID)
	}
	if p.Currency != "usd" {
		t.Fatalf("currency = %s, want usd", p.Currency)
	}
	if p.IdempotencyKey != "pay_bk1" {
		t.Fatalf("idempotency key = %s, want pay_bk1", p.IdempotencyKey)
	}
	if p.Metadata["booking_id"] != "bk1" || p.Metadata["tenant_id"] != "t1" {
		t.Fatalf("metadata = %v", p.Metadata)
	}

	if store.bookings[0].PaymentIntentID != "pi_1" {
		t.Fatal("intent not persisted on the booking row")
	}
}

func TestPaymentInitiateNotOnboarded(t *testing.T) {
	svc, _, gw, _, _ := paymentFixture(t, booking.StatusPending, "")

	tc := bellaContext()
	tc.OnboardingComplete = false
	if _, err := svc.Initiate(context.Background(), tc, "bk1"); !errors.Is(err, domain.ErrNotOnboarded) {
		t.Fatalf("expected ErrNotOnboarded, got %v", err)
	}
	if len(gw.createCalls) != 0 {
		t.Fatal("gateway must not be called before onboarding completes")
	}
}

func TestPaymentInitiateReplay(t *testing.T) {
	svc, store, gw, _, _ := paymentFixture(t, booking.StatusPending, "pi_prev")
	store.bookings[0].ClientSecret = "pi_prev_secret"

	b, err := svc.Initiate(context.Background(), bellaContext(), "bk1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.PaymentIntentID != "pi_prev" {
		t.Fatalf("intent = %s, want the existing pi_prev", b.PaymentIntentID)
	}
	if len(gw.createCalls) != 0 {
		t.Fatal("replay must not create a second intent")
	}
}

func TestPaymentInitiateExpiredHold(t *testing.T) {
	svc, store, gw, _, _ := paymentFixture(t, booking.StatusPending, "")
	store.bookings[0].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	if _, err := svc.Initiate(context.Background(), bellaContext(), "bk1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(gw.createCalls) != 0 {
		t.Fatal("expired hold must not reach the gateway")
	}
}

func TestPaymentInitiateWrongStatus(t *testing.T) {
	svc, _, _, _, _ := paymentFixture(t, booking.StatusConfirmed, "pi_done")

	if _, err := svc.Initiate(context.Background(), bellaContext(), "bk1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPaymentInitiateGatewayFailure(t *testing.T) {
	svc, store, gw, _, _ := paymentFixture(t, booking.StatusPending, "")
	gw.createErr = &domain.GatewayError{Retryable: true, Code: "rate_limited", Message: "slow down"}

	_, err := svc.Initiate(context.Background(), bellaContext(), "bk1")
	if !domain.IsRetryableGateway(err) {
		t.Fatalf("expected a retryable gateway error, got %v", err)
	}
	if store.bookings[0].Status != booking.StatusPending || store.bookings[0].PaymentIntentID != "" {
		t.Fatalf("failed initiate must leave the booking untouched: %+v", store.bookings[0])
	}

	// The hold is still live, so a retry succeeds.
	gw.createErr = nil
	if _, err := svc.Initiate(context.Background(), bellaContext(), "bk1"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestPaymentConfirm(t *testing.T) {
	svc, store, _, queue, events := paymentFixture(t, booking.StatusPending, "pi_1")

	b, changed, err := svc.Confirm(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed || b.Status != booking.StatusConfirmed {
		t.Fatalf("changed = %v status = %s", changed, b.Status)
	}
	if store.bookings[0].ConfirmedAt == nil {
		t.Fatal("confirmed timestamp not set")
	}

	// Replays acknowledge without a second round of side effects.
	b, changed, err = svc.Confirm(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed || b.Status != booking.StatusConfirmed {
		t.Fatalf("replay changed = %v status = %s", changed, b.Status)
	}
	if got := queue.count(messagequeue.SubjectBookingConfirmed); got != 1 {
		t.Fatalf("bookings.confirmed published %d times, want 1", got)
	}
	if got := len(events.byType(broadcast.EventBookingCompleted)); got != 1 {
		t.Fatalf("BOOKING_COMPLETED broadcast %d times, want 1", got)
	}
}

func TestPaymentConfirmUnknownIntent(t *testing.T) {
	svc, _, _, _, _ := paymentFixture(t, booking.StatusPending, "pi_1")

	if _, _, err := svc.Confirm(context.Background(), "pi_ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPaymentRefundFull(t *testing.T) {
	svc, store, gw, queue, _ := paymentFixture(t, booking.StatusConfirmed, "pi_1")

	b, err := svc.Refund(context.Background(), bellaContext(), "bk1", 0, "event canceled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != booking.StatusRefunded {
		t.Fatalf("status = %s, want refunded", b.Status)
	}

	if len(gw.refundCalls) != 1 {
		t.Fatalf("gateway called %d times, want 1", len(gw.refundCalls))
	}
	p := gw.refundCalls[0]
	if p.Amount != 60000 || p.FeeRefund != 7500 {
		t.Fatalf("refund = %d fee refund = %d, want 60000 and 7500", p.Amount, p.FeeRefund)
	}
	if p.IntentID != "pi_1" || p.AccountID != "acct_1" {
		t.Fatalf("refund params = %+v", p)
	}
	if p.IdempotencyKey != "refund_bk1_60000" {
		t.Fatalf("idempotency key = %s", p.IdempotencyKey)
	}
	if p.Reason != "event canceled" {
		t.Fatalf("reason = %s", p.Reason)
	}

	if store.bookings[0].Status != booking.StatusRefunded {
		t.Fatal("refund not persisted")
	}
	if got := queue.count(messagequeue.SubjectBookingRefunded); got != 1 {
		t.Fatalf("bookings.refunded published %d times, want 1", got)
	}
}

func TestPaymentRefundPartial(t *testing.T) {
	svc, store, gw, queue, _ := paymentFixture(t, booking.StatusConfirmed, "pi_1")

	b, err := svc.Refund(context.Background(), bellaContext(), "bk1", 15000, "late cancellation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != booking.StatusConfirmed {
		t.Fatalf("partial refund flipped status to %s", b.Status)
	}

	p := gw.refundCalls[0]
	if p.Amount != 15000 {
		t.Fatalf("refund amount = %d, want 15000", p.Amount)
	}
	// Proportional fee reversal: 7500 * 15000 / 60000.
	if p.FeeRefund != 1875 {
		t.Fatalf("fee refund = %d, want 1875", p.FeeRefund)
	}

	if store.bookings[0].Status != booking.StatusConfirmed {
		t.Fatal("partial refund must keep the booking confirmed")
	}
	if got := queue.count(messagequeue.SubjectBookingRefunded); got != 0 {
		t.Fatalf("partial refund published bookings.refunded %d times", got)
	}
}

func TestPaymentRefundGatewayFailure(t *testing.T) {
	svc, store, gw, queue, _ := paymentFixture(t, booking.StatusConfirmed, "pi_1")
	gw.refundErr = &domain.GatewayError{Retryable: false, Code: "charge_disputed", Message: "open dispute"}

	if _, err := svc.Refund(context.Background(), bellaContext(), "bk1", 0, ""); err == nil {
		t.Fatal("expected gateway error")
	}
	if store.bookings[0].Status != booking.StatusConfirmed {
		t.Fatalf("failed refund moved status to %s", store.bookings[0].Status)
	}
	if got := queue.count(messagequeue.SubjectBookingRefunded); got != 0 {
		t.Fatal("failed refund must not publish")
	}
}

func TestPaymentRefundWrongStatus(t *testing.T) {
	svc, _, gw, _, _ := paymentFixture(t, booking.StatusPending, "pi_1")

	if _, err := svc.Refund(context.Background(), bellaContext(), "bk1", 0, ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(gw.refundCalls) != 0 {
		t.Fatal("gateway must not be called for a non-confirmed booking")
	}
}

func TestPaymentRefundNoIntent(t *testing.T) {
	svc, _, _, _, _ := paymentFixture(t, booking.StatusConfirmed, "")

	if _, err := svc.Refund(context.Background(), bellaContext(), "bk1", 0, ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPaymentRefundAmountOutOfRange(t *testing.T) {
	svc, _, gw, _, _ := paymentFixture(t, booking.StatusConfirmed, "pi_1")

	for _, amount := range []int64{-1, 60001} {
		if _, err := svc.Refund(context.Background(), bellaContext(), "bk1", amount, ""); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("amount %d: expected validation error, got %v", amount, err)
		}
	}
	if len(gw.refundCalls) != 0 {
		t.Fatal("out-of-range amounts must not reach the gateway")
	}
}
