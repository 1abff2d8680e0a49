// Package webhook defines the payment gateway webhook event record and the
// typed envelope parsed from raw deliveries.
package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/daybookhq/daybook/internal/domain"
)

// EventType classifies a gateway webhook event.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
	EventChargeRefunded   EventType = "charge.refunded"
	EventAccountUpdated   EventType = "account.updated"
)

// Event is the idempotency record for an externally delivered webhook. An
// event is processed at most once: replays of the same external id are
// acknowledged without reprocessing.
type Event struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id,omitempty"`
	ExternalID  string          `json:"external_id"`
	Type        EventType       `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Attempts    int32           `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// Processed reports whether the event has already been handled.
func (e *Event) Processed() bool { return e.ProcessedAt != nil }

// Envelope is the typed shape of a gateway delivery. Parsing happens once at
// the ingest boundary; handlers work with these fields only.
type Envelope struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Account string    `json:"account,omitempty"`
	Data    struct {
		Object Object `json:"object"`
	} `json:"data"`
}

// Object is the payload object common to the event types the platform
// consumes. Unknown event types leave most fields zero, which is fine: they
// are acknowledged and ignored.
type Object struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount,omitempty"`
	AmountRefunded   int64             `json:"amount_refunded,omitempty"`
	PaymentIntent    string            `json:"payment_intent,omitempty"`
	ChargesEnabled   bool              `json:"charges_enabled,omitempty"`
	DetailsSubmitted bool              `json:"details_submitted,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ParseEnvelope decodes and shape-checks a raw delivery. A payload without an
// event id cannot be deduplicated and is rejected outright.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed webhook payload: %w", domain.ErrValidation)
	}
	if env.ID == "" {
		return Envelope{}, fmt.Errorf("webhook payload missing event id: %w", domain.ErrValidation)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("webhook payload missing event type: %w", domain.ErrValidation)
	}
	return env, nil
}
