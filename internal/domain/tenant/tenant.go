// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"encoding/json"
	"time"
)

// Tenant represents an isolated business customer of the platform. The secret
// key is stored as a bcrypt hash and never leaves the server.
type Tenant struct {
	ID                 string          `json:"id"`
	Slug               string          `json:"slug"`
	Name               string          `json:"name"`
	CommissionRateBps  int32           `json:"commission_rate_bps"`
	PublicKey          string          `json:"public_key"`
	SecretKeyHash      string          `json:"-"`
	GatewayAccountID   string          `json:"gateway_account_id,omitempty"`
	OnboardingComplete bool            `json:"onboarding_complete"`
	Branding           json.RawMessage `json:"branding,omitempty"`
	EmbedOrigin        string          `json:"embed_origin,omitempty"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Context is the resolved view of a tenant handed to request handlers. It
// carries everything the booking path needs and nothing secret.
type Context struct {
	ID                 string          `json:"id"`
	Slug               string          `json:"slug"`
	Name               string          `json:"name"`
	CommissionRateBps  int32           `json:"commission_rate_bps"`
	GatewayAccountID   string          `json:"gateway_account_id,omitempty"`
	OnboardingComplete bool            `json:"onboarding_complete"`
	Branding           json.RawMessage `json:"branding,omitempty"`
	EmbedOrigin        string          `json:"embed_origin,omitempty"`
	Active             bool            `json:"active"`
}

// ContextOf projects a tenant row into the request-facing view.
func ContextOf(t Tenant) Context {
	return Context{
		ID:                 t.ID,
		Slug:               t.Slug,
		Name:               t.Name,
		CommissionRateBps:  t.CommissionRateBps,
		GatewayAccountID:   t.GatewayAccountID,
		OnboardingComplete: t.OnboardingComplete,
		Branding:           t.Branding,
		EmbedOrigin:        t.EmbedOrigin,
		Active:             t.Active,
	}
}

// CreateRequest holds the fields required to provision a new tenant.
type CreateRequest struct {
	Slug              string `json:"slug"`
	Name              string `json:"name"`
	CommissionRateBps int32  `json:"commission_rate_bps"`
	EmbedOrigin       string `json:"embed_origin,omitempty"`
	GatewayAccountID  string `json:"gateway_account_id,omitempty"`
}

// UpdateRequest holds the fields a platform administrator may change.
type UpdateRequest struct {
	Name              string          `json:"name,omitempty"`
	CommissionRateBps *int32          `json:"commission_rate_bps,omitempty"`
	Branding          json.RawMessage `json:"branding,omitempty"`
	EmbedOrigin       string          `json:"embed_origin,omitempty"`
	Active            *bool           `json:"active,omitempty"`
}
