package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate rejects payloads a consumer could never process: data must be
// valid JSON, and subjects with a declared schema must unmarshal into it.
// Subjects without a schema pass on valid JSON alone, so new event types do
// not need a validator change before they can flow.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	target := schemaFor(subject)
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("payload does not match %s schema: %w", subject, err)
	}
	return nil
}

// schemaFor returns a fresh payload struct for subjects with a declared
// schema, nil otherwise. Every bookings.* subject shares the booking event
// shape.
func schemaFor(subject string) any {
	switch {
	case strings.HasPrefix(subject, "bookings."):
		return &BookingEventPayload{}
	case subject == SubjectWebhookFailed:
		return &WebhookFailedPayload{}
	default:
		return nil
	}
}
