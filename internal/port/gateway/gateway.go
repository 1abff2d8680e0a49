// Package gateway defines the payment gateway port (interface).
package gateway

import "context"

// CreateIntentParams describes a payment to collect on a tenant's connected
// sub-account. ApplicationFee is the platform commission retained from the
// charge. IdempotencyKey makes retried calls return the same intent.
type CreateIntentParams struct {
	Amount         int64
	Currency       string
	AccountID      string
	ApplicationFee int64
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// Intent is the gateway's handle for a created payment. ClientSecret is
// handed to the widget so the guest can complete payment client-side; it is
// never logged.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// RefundParams describes a full or partial reversal of a collected payment.
// FeeRefund is the share of the platform commission to give back, computed
// by the caller; zero means let the gateway reverse proportionally.
type RefundParams struct {
	IntentID       string
	AccountID      string
	Amount         int64
	FeeRefund      int64
	Reason         string
	IdempotencyKey string
}

// Refund is the gateway's record of a requested reversal.
type Refund struct {
	ID     string
	Status string
}

// Gateway is the port interface for the payment processor. Implementations
// classify failures as retryable or not via domain.GatewayError; a timed-out
// call's outcome is unknown and must be treated as retry-safe, with the
// webhook as the source of truth for success.
type Gateway interface {
	CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	RefundIntent(ctx context.Context, p RefundParams) (*Refund, error)
}
