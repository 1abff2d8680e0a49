package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "daybook"

// StartReserveSpan starts a span for a booking reservation attempt.
func StartReserveSpan(ctx context.Context, tenantID, packageSlug, date string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "booking.reserve",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("package.slug", packageSlug),
			attribute.String("booking.date", date),
		),
	)
}

// StartPaymentSpan starts a span for a gateway payment operation.
func StartPaymentSpan(ctx context.Context, op, bookingID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "payment."+op,
		trace.WithAttributes(
			attribute.String("booking.id", bookingID),
		),
	)
}

// StartWebhookSpan starts a span for webhook event processing.
func StartWebhookSpan(ctx context.Context, eventID, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.process",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("event.type", eventType),
		),
	)
}

// StartSweepSpan starts a span for one expiry sweep pass.
func StartSweepSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "booking.sweep")
}
