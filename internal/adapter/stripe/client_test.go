package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/daybookhq/daybook/internal/config"
	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/port/gateway"
	"github.com/daybookhq/daybook/internal/resilience"
	"github.com/daybookhq/daybook/internal/secrets"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	t.Setenv(secrets.KeyGatewayAPIKey, "sk_test_abc123")
	vault, err := secrets.NewEnvVault()
	if err != nil {
		t.Fatalf("NewEnvVault() error = %v", err)
	}
	return NewClient(config.Gateway{BaseURL: baseURL, Timeout: 2 * time.Second}, vault)
}

func TestClient_CreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("path = %q, want /v1/payment_intents", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_abc123" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Stripe-Account"); got != "acct_bella" {
			t.Errorf("Stripe-Account = %q, want acct_bella", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "bk_123-intent" {
			t.Errorf("Idempotency-Key = %q, want bk_123-intent", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if got := r.PostFormValue("amount"); got != "60000" {
			t.Errorf("amount = %q, want 60000", got)
		}
		if got := r.PostFormValue("application_fee_amount"); got != "7500" {
			t.Errorf("application_fee_amount = %q, want 7500", got)
		}
		if got := r.PostFormValue("currency"); got != "usd" {
			t.Errorf("currency = %q, want usd", got)
		}
		if got := r.PostFormValue("automatic_payment_methods[enabled]"); got != "true" {
			t.Errorf("automatic_payment_methods[enabled] = %q, want true", got)
		}
		if got := r.PostFormValue("metadata[booking_id]"); got != "bk_123" {
			t.Errorf("metadata[booking_id] = %q, want bk_123", got)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "pi_abc", "client_secret": "pi_abc_secret_xyz", "status": "requires_payment_method"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	intent, err := c.CreateIntent(context.Background(), gateway.CreateIntentParams{
		Amount:         60000,
		Currency:       "usd",
		AccountID:      "acct_bella",
		ApplicationFee: 7500,
		IdempotencyKey: "bk_123-intent",
		Description:    "Booking bk_123",
		Metadata:       map[string]string{"booking_id": "bk_123"},
	})
	if err != nil {
		t.Fatalf("CreateIntent() error = %v", err)
	}
	if intent.ID != "pi_abc" {
		t.Errorf("intent.ID = %q, want pi_abc", intent.ID)
	}
	if intent.ClientSecret != "pi_abc_secret_xyz" {
		t.Errorf("intent.ClientSecret = %q", intent.ClientSecret)
	}
	if intent.Status != "requires_payment_method" {
		t.Errorf("intent.Status = %q", intent.Status)
	}
}

func TestClient_CreateIntent_Declined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error": {"type": "card_error", "code": "card_declined", "message": "Your card was declined."}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.CreateIntent(context.Background(), gateway.CreateIntentParams{
		Amount: 60000, Currency: "usd", AccountID: "acct_bella",
	})
	if err == nil {
		t.Fatal("CreateIntent() error = nil, want decline")
	}

	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %v, want *domain.GatewayError", err)
	}
	if gwErr.Code != "card_declined" {
		t.Errorf("Code = %q, want card_declined", gwErr.Code)
	}
	if gwErr.Retryable {
		t.Error("decline marked retryable")
	}
	if domain.IsRetryableGateway(err) {
		t.Error("IsRetryableGateway() = true for a decline")
	}
}

func TestClient_CreateIntent_Retryable(t *testing.T) {
	for _, tc := range []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"ServerError", http.StatusInternalServerError, `{"error": {"type": "api_error", "message": "something broke"}}`, "api_error"},
		{"RateLimited", http.StatusTooManyRequests, ``, "http_429"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			c := testClient(t, srv.URL)
			_, err := c.CreateIntent(context.Background(), gateway.CreateIntentParams{
				Amount: 100, Currency: "usd", AccountID: "acct_bella",
			})
			if err == nil {
				t.Fatal("CreateIntent() error = nil")
			}

			var gwErr *domain.GatewayError
			if !errors.As(err, &gwErr) {
				t.Fatalf("error = %v, want *domain.GatewayError", err)
			}
			if gwErr.Code != tc.wantCode {
				t.Errorf("Code = %q, want %q", gwErr.Code, tc.wantCode)
			}
			if !domain.IsRetryableGateway(err) {
				t.Errorf("IsRetryableGateway() = false for status %d", tc.status)
			}
		})
	}
}

func TestClient_RefundIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/refunds" {
			t.Errorf("path = %q, want /v1/refunds", r.URL.Path)
		}
		if got := r.Header.Get("Stripe-Account"); got != "acct_bella" {
			t.Errorf("Stripe-Account = %q, want acct_bella", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if got := r.PostFormValue("payment_intent"); got != "pi_abc" {
			t.Errorf("payment_intent = %q, want pi_abc", got)
		}
		if got := r.PostFormValue("amount"); got != "60000" {
			t.Errorf("amount = %q, want 60000", got)
		}
		if got := r.PostFormValue("refund_application_fee"); got != "true" {
			t.Errorf("refund_application_fee = %q, want true", got)
		}
		if got := r.PostFormValue("metadata[fee_refund]"); got != "7500" {
			t.Errorf("metadata[fee_refund] = %q, want 7500", got)
		}
		if got := r.PostFormValue("reason"); got != "requested_by_customer" {
			t.Errorf("reason = %q, want requested_by_customer", got)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "re_abc", "status": "succeeded"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	refund, err := c.RefundIntent(context.Background(), gateway.RefundParams{
		IntentID:       "pi_abc",
		AccountID:      "acct_bella",
		Amount:         60000,
		FeeRefund:      7500,
		Reason:         "requested_by_customer",
		IdempotencyKey: "bk_123-refund",
	})
	if err != nil {
		t.Fatalf("RefundIntent() error = %v", err)
	}
	if refund.ID != "re_abc" {
		t.Errorf("refund.ID = %q, want re_abc", refund.ID)
	}
	if refund.Status != "succeeded" {
		t.Errorf("refund.Status = %q, want succeeded", refund.Status)
	}
}

func TestClient_RefundIntent_NoFeeReversal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if got := r.PostFormValue("refund_application_fee"); got != "" {
			t.Errorf("refund_application_fee = %q, want unset", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "re_def", "status": "pending"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	if _, err := c.RefundIntent(context.Background(), gateway.RefundParams{
		IntentID: "pi_abc", AccountID: "acct_bella", Amount: 1000,
	}); err != nil {
		t.Fatalf("RefundIntent() error = %v", err)
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.CreateIntent(context.Background(), gateway.CreateIntentParams{
		Amount: 100, Currency: "usd", AccountID: "acct_bella",
	})
	if err == nil {
		t.Fatal("CreateIntent() error = nil, want connection failure")
	}

	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %v, want *domain.GatewayError", err)
	}
	if gwErr.Code != "network_error" {
		t.Errorf("Code = %q, want network_error", gwErr.Code)
	}
	if !gwErr.Retryable {
		t.Error("network failure not marked retryable")
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	c.SetBreaker(resilience.NewBreaker(1, time.Minute))

	params := gateway.CreateIntentParams{Amount: 100, Currency: "usd", AccountID: "acct_bella"}
	if _, err := c.CreateIntent(context.Background(), params); err == nil {
		t.Fatal("first CreateIntent() error = nil, want server error")
	}

	_, err := c.CreateIntent(context.Background(), params)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("second CreateIntent() error = %v, want ErrCircuitOpen", err)
	}
}
