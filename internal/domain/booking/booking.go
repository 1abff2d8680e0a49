// Package booking defines the Booking domain entity and its state machine.
package booking

import (
	"fmt"
	"net/mail"
	"time"
	"unicode"

	"github.com/daybookhq/daybook/internal/domain"
)

// Status represents the lifecycle state of a booking's (tenant, date) slot.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusRefunded  Status = "refunded"
)

// Live reports whether a booking in this status holds its date slot. Expired
// PENDING rows are treated as dead by the store, not here.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether the state machine allows moving to next.
// PENDING confirms or cancels; CONFIRMED cancels or refunds. Terminal states
// never move.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCanceled
	case StatusConfirmed:
		return next == StatusCanceled || next == StatusRefunded
	default:
		return false
	}
}

// DateLayout is the wire format for booking dates: a calendar date with no
// time component.
const DateLayout = "2006-01-02"

// Guest holds the contact details captured with a booking.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Note  string `json:"note,omitempty"`
}

// Booking reserves exactly one date for one tenant. Commission fields are
// written once at creation and never change afterwards, whatever later
// happens to the tenant's rate.
type Booking struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	PackageID         string     `json:"package_id"`
	EventDate         time.Time  `json:"event_date"`
	Guest             Guest      `json:"guest"`
	AddOnIDs          []string   `json:"add_on_ids,omitempty"`
	Total             int64      `json:"total"`
	Commission        int64      `json:"commission"`
	CommissionRateBps int32      `json:"commission_rate_bps"`
	PaymentIntentID   string     `json:"payment_intent_id,omitempty"`
	ClientSecret      string     `json:"-"`
	Status            Status     `json:"status"`
	ExpiresAt         time.Time  `json:"expires_at,omitzero"`
	CreatedAt         time.Time  `json:"created_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
}

// CreateRequest is the public booking request body.
type CreateRequest struct {
	PackageSlug string   `json:"package_slug"`
	Date        string   `json:"date"` // YYYY-MM-DD
	Guest       Guest    `json:"guest"`
	AddOnIDs    []string `json:"add_on_ids,omitempty"`
}

// Validate checks the request shape and returns the parsed event date.
// Parsing happens once at the boundary; everything past this point works
// with a typed day-granular UTC time.
func (r *CreateRequest) Validate() (time.Time, error) {
	if r.PackageSlug == "" {
		return time.Time{}, fmt.Errorf("package_slug is required: %w", domain.ErrValidation)
	}
	date, err := ParseDate(r.Date)
	if err != nil {
		return time.Time{}, err
	}
	if r.Guest.Name == "" {
		return time.Time{}, fmt.Errorf("guest.name is required: %w", domain.ErrValidation)
	}
	if len(r.Guest.Name) > 255 {
		return time.Time{}, fmt.Errorf("guest.name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, c := range r.Guest.Name {
		if unicode.IsControl(c) {
			return time.Time{}, fmt.Errorf("guest.name contains control characters: %w", domain.ErrValidation)
		}
	}
	if _, err := mail.ParseAddress(r.Guest.Email); err != nil {
		return time.Time{}, fmt.Errorf("guest.email is invalid: %w", domain.ErrValidation)
	}
	if len(r.AddOnIDs) > 50 {
		return time.Time{}, fmt.Errorf("too many add-ons selected: %w", domain.ErrValidation)
	}
	seen := make(map[string]struct{}, len(r.AddOnIDs))
	for _, id := range r.AddOnIDs {
		if id == "" {
			return time.Time{}, fmt.Errorf("empty add-on id: %w", domain.ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return time.Time{}, fmt.Errorf("duplicate add-on id %s: %w", id, domain.ErrValidation)
		}
		seen[id] = struct{}{}
	}
	return date, nil
}

// ParseDate parses a YYYY-MM-DD calendar date into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	date, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", domain.ErrValidation)
	}
	return date, nil
}

// ReserveParams is the input to the atomic reserve operation. The store
// resolves the package, validates add-on ownership, snapshots the tenant's
// current commission rate, and inserts the PENDING row in one transaction.
type ReserveParams struct {
	TenantID    string
	PackageSlug string
	Date        time.Time
	Guest       Guest
	AddOnIDs    []string
	HoldTTL     time.Duration
}

// ListFilter narrows admin booking listings.
type ListFilter struct {
	Status Status
	From   time.Time
	To     time.Time
	Limit  int32
	Offset int32
}

// RefundRequest is the admin refund request body. Amount zero means a full
// refund of the booking total.
type RefundRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}
