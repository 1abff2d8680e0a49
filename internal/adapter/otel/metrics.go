package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "daybook"

// Metrics holds the booking core's metric instruments. Construct once in main
// and hand to the services; the instruments are safe no-ops when no meter
// provider is installed.
type Metrics struct {
	BookingsReserved  metric.Int64Counter
	BookingsConfirmed metric.Int64Counter
	BookingsCanceled  metric.Int64Counter
	BookingsExpired   metric.Int64Counter
	BookingsRefunded  metric.Int64Counter
	WebhooksProcessed metric.Int64Counter
	WebhooksFailed    metric.Int64Counter
	CommissionAmount  metric.Int64Histogram
	GatewayDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.BookingsReserved, err = meter.Int64Counter("daybook.bookings.reserved",
		metric.WithDescription("Bookings that took a date hold"))
	if err != nil {
		return nil, err
	}

	m.BookingsConfirmed, err = meter.Int64Counter("daybook.bookings.confirmed",
		metric.WithDescription("Bookings confirmed by payment webhook"))
	if err != nil {
		return nil, err
	}

	m.BookingsCanceled, err = meter.Int64Counter("daybook.bookings.canceled",
		metric.WithDescription("Bookings canceled by guest or admin"))
	if err != nil {
		return nil, err
	}

	m.BookingsExpired, err = meter.Int64Counter("daybook.bookings.expired",
		metric.WithDescription("Pending bookings released by hold expiry"))
	if err != nil {
		return nil, err
	}

	m.BookingsRefunded, err = meter.Int64Counter("daybook.bookings.refunded",
		metric.WithDescription("Confirmed bookings refunded"))
	if err != nil {
		return nil, err
	}

	m.WebhooksProcessed, err = meter.Int64Counter("daybook.webhooks.processed",
		metric.WithDescription("Gateway webhook events processed"))
	if err != nil {
		return nil, err
	}

	m.WebhooksFailed, err = meter.Int64Counter("daybook.webhooks.failed",
		metric.WithDescription("Gateway webhook events whose handler failed"))
	if err != nil {
		return nil, err
	}

	m.CommissionAmount, err = meter.Int64Histogram("daybook.commission.amount",
		metric.WithDescription("Commission charged per booking, minor currency units"))
	if err != nil {
		return nil, err
	}

	m.GatewayDuration, err = meter.Float64Histogram("daybook.gateway.duration_seconds",
		metric.WithDescription("Payment gateway call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
