package messagequeue

// BookingEventPayload is the schema for all bookings.* messages. Amounts are
// integer minor currency units; Date is YYYY-MM-DD.
type BookingEventPayload struct {
	BookingID   string `json:"booking_id"`
	TenantID    string `json:"tenant_id"`
	TenantSlug  string `json:"tenant_slug,omitempty"`
	PackageID   string `json:"package_id"`
	Date        string `json:"date"`
	Total       int64  `json:"total"`
	Commission  int64  `json:"commission"`
	Status      string `json:"status"`
	PaymentRef  string `json:"payment_ref,omitempty"`
	RefundTotal int64  `json:"refund_total,omitempty"`
	RefundFee   int64  `json:"refund_fee,omitempty"`
}

// WebhookFailedPayload is the schema for webhooks.failed messages, emitted
// when a webhook handler keeps failing so operators can reconcile manually.
type WebhookFailedPayload struct {
	EventID    string `json:"event_id"`
	ExternalID string `json:"external_id"`
	TenantID   string `json:"tenant_id,omitempty"`
	Type       string `json:"type"`
	Attempts   int32  `json:"attempts"`
	LastError  string `json:"last_error"`
}
