package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/daybookhq/daybook/internal/adapter/otel"
	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/domain/webhook"
	"github.com/daybookhq/daybook/internal/port/broadcast"
	"github.com/daybookhq/daybook/internal/port/database"
	"github.com/daybookhq/daybook/internal/port/messagequeue"
)

// maxWebhookAttempts caps local redelivery of a failing event. Past this the
// row stays unprocessed for manual inspection; the gateway's own retry
// schedule has long given up by then.
const maxWebhookAttempts = 10

// IngestService turns verified gateway webhook deliveries into booking state.
// Signature verification happens in middleware before Process sees the body;
// everything here assumes an authentic payload.
type IngestService struct {
	store     database.Store
	payments  *PaymentService
	directory *DirectoryService
	queue     messagequeue.Queue
	events    broadcast.Broadcaster
	metrics   *otel.Metrics
}

// NewIngestService creates a new IngestService.
func NewIngestService(store database.Store, payments *PaymentService, directory *DirectoryService, queue messagequeue.Queue, events broadcast.Broadcaster, metrics *otel.Metrics) *IngestService {
	return &IngestService{store: store, payments: payments, directory: directory, queue: queue, events: events, metrics: metrics}
}

// webhookFailure is the payload published on webhooks.failed.
type webhookFailure struct {
	EventID    string `json:"event_id"`
	ExternalID string `json:"external_id"`
	Type       string `json:"type"`
	Error      string `json:"error"`
}

// Process ingests one raw delivery: parse, dedupe, dispatch, mark. A nil
// return tells the handler to Ack (200); an error leaves the event
// unprocessed so the gateway redelivers on its own schedule.
func (s *IngestService) Process(ctx context.Context, raw []byte) error {
	env, err := webhook.ParseEnvelope(raw)
	if err != nil {
		return err
	}

	ctx, span := otel.StartWebhookSpan(ctx, env.ID, string(env.Type))
	defer span.End()

	rec, err := s.store.InsertWebhookEvent(ctx, webhook.Event{
		ExternalID: env.ID,
		Type:       env.Type,
		Payload:    raw,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			slog.Info("webhook replay acknowledged", "event", env.ID, "type", env.Type)
			return nil
		}
		return err
	}

	if err := s.dispatch(ctx, env); err != nil {
		s.recordFailure(ctx, rec, err)
		return fmt.Errorf("dispatch webhook %s: %w", env.ID, err)
	}

	if err := s.store.MarkWebhookProcessed(ctx, rec.ID); err != nil {
		return err
	}
	s.metrics.WebhooksProcessed.Add(ctx, 1)
	return nil
}

// RetryUnprocessed re-dispatches events whose handler failed on delivery.
// Dispatch handlers are idempotent, so replaying a half-processed event is
// harmless. Called from the background sweep.
func (s *IngestService) RetryUnprocessed(ctx context.Context, limit int32) error {
	pending, err := s.store.ListUnprocessedWebhooks(ctx, limit)
	if err != nil {
		return err
	}

	for i := range pending {
		ev := &pending[i]
		if ev.Attempts >= maxWebhookAttempts {
			continue
		}
		env, err := webhook.ParseEnvelope(ev.Payload)
		if err != nil {
			s.recordFailure(ctx, ev, err)
			continue
		}
		if err := s.dispatch(ctx, env); err != nil {
			s.recordFailure(ctx, ev, err)
			continue
		}
		if err := s.store.MarkWebhookProcessed(ctx, ev.ID); err != nil {
			return err
		}
		s.metrics.WebhooksProcessed.Add(ctx, 1)
		slog.Info("webhook recovered on retry", "event", ev.ExternalID, "attempts", ev.Attempts)
	}
	return nil
}

// dispatch routes one verified event to its handler. Unknown types are
// acknowledged untouched: the gateway redelivers unacknowledged events
// forever, so "ignore" must be an Ack, never an error.
func (s *IngestService) dispatch(ctx context.Context, env webhook.Envelope) error {
	switch env.Type {
	case webhook.EventPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, env)
	case webhook.EventPaymentFailed:
		return s.handlePaymentFailed(ctx, env)
	case webhook.EventChargeRefunded:
		return s.handleChargeRefunded(ctx, env)
	case webhook.EventAccountUpdated:
		return s.handleAccountUpdated(ctx, env)
	default:
		slog.Info("ignoring webhook event type", "event", env.ID, "type", env.Type)
		return nil
	}
}

func (s *IngestService) handlePaymentSucceeded(ctx context.Context, env webhook.Envelope) error {
	intentID := env.Data.Object.ID
	_, _, err := s.payments.Confirm(ctx, intentID)
	if errors.Is(err, domain.ErrNotFound) {
		// Not our intent. Ack so the gateway stops redelivering.
		slog.Warn("payment succeeded for unknown intent", "event", env.ID, "intent", intentID)
		return nil
	}
	return err
}

func (s *IngestService) handlePaymentFailed(ctx context.Context, env webhook.Envelope) error {
	intentID := env.Data.Object.ID
	b, err := s.store.GetBookingByIntent(ctx, intentID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("payment failed for unknown intent", "event", env.ID, "intent", intentID)
		return nil
	}
	if err != nil {
		return err
	}

	// The booking stays PENDING: the guest may retry on the same intent until
	// the hold expires. The widget is told so it can surface the decline.
	slog.Info("payment failed, booking stays pending", "booking", b.ID, "tenant", b.TenantID)
	s.events.BroadcastEvent(ctx, b.TenantID, broadcast.EventError, broadcast.ErrorEvent{
		Code:      "payment_failed",
		Message:   "payment was not completed",
		BookingID: b.ID,
	})
	return nil
}

func (s *IngestService) handleChargeRefunded(ctx context.Context, env webhook.Envelope) error {
	intentID := env.Data.Object.PaymentIntent
	b, err := s.store.GetBookingByIntent(ctx, intentID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("refund for unknown intent", "event", env.ID, "intent", intentID)
		return nil
	}
	if err != nil {
		return err
	}
	if b.Status == booking.StatusRefunded {
		return nil
	}
	if env.Data.Object.AmountRefunded < b.Total {
		slog.Info("partial refund recorded at gateway", "booking", b.ID,
			"refunded", env.Data.Object.AmountRefunded, "total", b.Total)
		return nil
	}

	refunded, err := s.store.MarkBookingRefunded(ctx, b.TenantID, b.ID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Refund of a booking that never confirmed (e.g. a dashboard
			// refund of a dangling intent). Nothing to transition.
			slog.Warn("refund event for non-refundable booking", "booking", b.ID, "status", b.Status)
			return nil
		}
		return err
	}
	s.metrics.BookingsRefunded.Add(ctx, 1)
	slog.Info("booking refunded via gateway event", "booking", refunded.ID, "tenant", refunded.TenantID)
	publishEvent(ctx, s.queue, messagequeue.SubjectBookingRefunded, refunded)
	return nil
}

func (s *IngestService) handleAccountUpdated(ctx context.Context, env webhook.Envelope) error {
	obj := env.Data.Object
	complete := obj.ChargesEnabled && obj.DetailsSubmitted

	t, err := s.store.SetTenantOnboarding(ctx, obj.ID, complete)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("account update for unknown gateway account", "event", env.ID, "account", obj.ID)
		return nil
	}
	if err != nil {
		return err
	}

	// The cached tenant context carries the onboarding flag; drop it so the
	// change takes effect before the TTL would let it.
	if err := s.directory.Invalidate(ctx, t.PublicKey); err != nil {
		slog.Warn("invalidate tenant cache after onboarding change", "tenant", t.ID, "error", err)
	}
	slog.Info("tenant onboarding updated", "tenant", t.ID, "complete", complete)
	return nil
}

func (s *IngestService) recordFailure(ctx context.Context, ev *webhook.Event, cause error) {
	if err := s.store.RecordWebhookFailure(ctx, ev.ID, cause.Error()); err != nil {
		slog.Error("record webhook failure", "event", ev.ExternalID, "error", err)
	}
	s.metrics.WebhooksFailed.Add(ctx, 1)
	publishEvent(ctx, s.queue, messagequeue.SubjectWebhookFailed, webhookFailure{
		EventID:    ev.ID,
		ExternalID: ev.ExternalID,
		Type:       string(ev.Type),
		Error:      cause.Error(),
	})
	slog.Error("webhook handler failed", "event", ev.ExternalID, "type", ev.Type,
		"attempts", ev.Attempts+1, "error", cause)
}
