// Package messagequeue defines the port for the booking event stream.
package messagequeue

import "context"

// Handler processes one delivered message. The context carries the request
// and tenant ids propagated through message headers. A non-nil error asks
// the transport to redeliver; exhausted retries park the message on the DLQ.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the publish/subscribe surface the services depend on. The NATS
// adapter is the production implementation; tests swap in stubs.
type Queue interface {
	// Publish sends data on subject. Delivery is at-least-once; consumers
	// must tolerate duplicates.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe attaches handler to subject. The returned cancel detaches
	// it; messages already handed to the handler finish.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain stops intake and lets in-flight messages finish.
	Drain() error

	// Close tears the connection down without waiting.
	Close() error

	// IsConnected reports whether the transport is currently usable.
	IsConnected() bool
}

// Subject constants for the booking lifecycle stream. External consumers
// (notification senders, analytics) attach to these; the core never blocks
// on them.
const (
	SubjectBookingCreated   = "bookings.created"
	SubjectBookingConfirmed = "bookings.confirmed"
	SubjectBookingCanceled  = "bookings.canceled"
	SubjectBookingRefunded  = "bookings.refunded"
	SubjectBookingExpired   = "bookings.expired"
	SubjectWebhookFailed    = "webhooks.failed"
)
