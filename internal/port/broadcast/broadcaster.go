// Package broadcast defines the port for pushing real-time events to
// connected widget sessions, plus the event vocabulary services emit.
package broadcast

import "context"

// Broadcaster sends a typed event to every widget session of one tenant.
// Events never cross tenants: the implementation partitions connections by
// tenant id.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, tenantID, eventType string, payload any)
}

// Widget protocol event types. READY and ERROR are server-raised; RESIZE
// originates in the widget iframe and is relayed.
const (
	EventReady            = "READY"
	EventResize           = "RESIZE"
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingCompleted = "BOOKING_COMPLETED"
	EventError            = "ERROR"
)

// BookingCreatedEvent is raised when a PENDING booking takes a date.
type BookingCreatedEvent struct {
	BookingID string `json:"booking_id"`
	EventDate string `json:"event_date"`
	Status    string `json:"status"`
}

// BookingCompletedEvent is raised when payment confirmation lands.
type BookingCompletedEvent struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// ErrorEvent is raised when a payment fails or a hold expires under the
// guest's feet.
type ErrorEvent struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	BookingID string `json:"booking_id,omitempty"`
}
