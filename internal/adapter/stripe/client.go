// Package stripe implements the payment gateway port against the Stripe HTTP
// API. Charges run directly on the tenant's connected account with the
// platform commission carried as the application fee.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/daybookhq/daybook/internal/config"
	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/port/gateway"
	"github.com/daybookhq/daybook/internal/resilience"
	"github.com/daybookhq/daybook/internal/secrets"
)

// Client talks to the Stripe API. The signing key comes from the vault on
// every call, so a SIGHUP key rotation applies without a restart.
type Client struct {
	baseURL    string
	vault      *secrets.Vault
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a Stripe client from gateway config and the secrets vault.
func NewClient(cfg config.Gateway, vault *secrets.Vault) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		vault:   vault,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// CreateIntent opens a payment intent on the tenant's connected account. The
// idempotency key makes a retried call after a timeout return the original
// intent instead of charging twice.
func (c *Client) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (*gateway.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.Amount, 10))
	form.Set("currency", p.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if p.ApplicationFee > 0 {
		form.Set("application_fee_amount", strconv.FormatInt(p.ApplicationFee, 10))
	}
	if p.Description != "" {
		form.Set("description", p.Description)
	}
	for k, v := range p.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var resp struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Status       string `json:"status"`
	}
	if err := c.doForm(ctx, "/v1/payment_intents", form, p.AccountID, p.IdempotencyKey, &resp); err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}
	return &gateway.Intent{ID: resp.ID, ClientSecret: resp.ClientSecret, Status: resp.Status}, nil
}

// RefundIntent reverses a collected payment in full or in part. When the
// caller computed a commission share to give back, the proportional
// application fee reversal is requested on the same call; the exact figure
// rides along as metadata for reconciliation.
func (c *Client) RefundIntent(ctx context.Context, p gateway.RefundParams) (*gateway.Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", p.IntentID)
	if p.Amount > 0 {
		form.Set("amount", strconv.FormatInt(p.Amount, 10))
	}
	if p.FeeRefund > 0 {
		form.Set("refund_application_fee", "true")
		form.Set("metadata[fee_refund]", strconv.FormatInt(p.FeeRefund, 10))
	}
	if p.Reason != "" {
		form.Set("reason", p.Reason)
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.doForm(ctx, "/v1/refunds", form, p.AccountID, p.IdempotencyKey, &resp); err != nil {
		return nil, fmt.Errorf("refund intent: %w", err)
	}
	return &gateway.Refund{ID: resp.ID, Status: resp.Status}, nil
}

func (c *Client) doForm(ctx context.Context, path string, form url.Values, accountID, idemKey string, out any) error {
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
			strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+c.vault.Get(secrets.KeyGatewayAPIKey))
		if accountID != "" {
			req.Header.Set("Stripe-Account", accountID)
		}
		if idemKey != "" {
			req.Header.Set("Idempotency-Key", idemKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Outcome unknown: the intent may or may not exist. Retry-safe
			// because every call carries an idempotency key.
			return &domain.GatewayError{
				Retryable: true,
				Code:      "network_error",
				Message:   c.vault.RedactString(err.Error()),
			}
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &domain.GatewayError{Retryable: true, Code: "read_error", Message: err.Error()}
		}

		if resp.StatusCode >= 400 {
			return apiError(resp.StatusCode, data)
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}

// apiError maps a Stripe error response onto domain.GatewayError. Rate limits
// and server-side failures are retryable; declines and bad requests are not.
func apiError(status int, body []byte) error {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &e)

	code := e.Error.Code
	if code == "" {
		code = e.Error.Type
	}
	if code == "" {
		code = fmt.Sprintf("http_%d", status)
	}
	msg := e.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("gateway returned status %d", status)
	}

	return &domain.GatewayError{
		Retryable: status == http.StatusTooManyRequests || status >= 500,
		Code:      code,
		Message:   msg,
	}
}
