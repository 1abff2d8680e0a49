package messagequeue

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		subject string
		payload string
		wantErr string // substring of the error, empty for valid
	}{
		"booking created": {
			subject: SubjectBookingCreated,
			payload: `{"booking_id":"bk_1","tenant_id":"tn_1","package_id":"pkg_1","date":"2027-06-15","total":60000,"commission":7500,"status":"pending"}`,
		},
		"booking refunded carries fee fields": {
			subject: SubjectBookingRefunded,
			payload: `{"booking_id":"bk_1","tenant_id":"tn_1","package_id":"pkg_1","date":"2027-06-15","total":60000,"commission":7500,"status":"refunded","refund_total":60000,"refund_fee":7500}`,
		},
		"webhook failure report": {
			subject: SubjectWebhookFailed,
			payload: `{"event_id":"e1","external_id":"evt_123","type":"payment_intent.succeeded","attempts":3,"last_error":"boom"}`,
		},
		"empty object is a valid booking event": {
			// Every schema field is optional at the transport layer.
			subject: SubjectBookingConfirmed,
			payload: `{}`,
		},
		"subject without a schema passes on valid JSON": {
			subject: "availability.changed",
			payload: `{"tenant_id":"tn_1","date":"2027-06-15"}`,
		},
		"subject without a schema still requires JSON": {
			subject: "availability.changed",
			payload: `???`,
			wantErr: "invalid JSON",
		},
		"broken JSON": {
			subject: SubjectBookingCreated,
			payload: `{not valid json`,
			wantErr: "invalid JSON",
		},
		"wrong shape entirely": {
			subject: SubjectBookingExpired,
			payload: `"just a string"`,
			wantErr: "schema",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Validate(tc.subject, []byte(tc.payload))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate(%s) = %v, want nil", tc.subject, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%s) = nil, want error containing %q", tc.subject, tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate(%s) = %q, want substring %q", tc.subject, err, tc.wantErr)
			}
		})
	}
}
