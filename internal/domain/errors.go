// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrUnauthorized indicates a missing, malformed, or unknown tenant key, or a
// deactivated tenant. Callers must not be able to tell those cases apart.
var ErrUnauthorized = errors.New("unauthorized")

// ErrValidation indicates a request that fails shape or range checks.
var ErrValidation = errors.New("validation failed")

// ErrDateUnavailable indicates the (tenant, date) slot is already held by a
// live booking or blocked by a blackout.
var ErrDateUnavailable = errors.New("date unavailable")

// ErrInvalidAddOn indicates an add-on selection that does not belong to the
// booked package's tenant and package.
var ErrInvalidAddOn = errors.New("invalid add-on selection")

// ErrInvalidSignature indicates a webhook payload whose signature does not
// verify against the shared signing secret.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrAlreadyProcessed indicates a webhook event replay. It is a success from
// the sender's point of view: acknowledge, do nothing.
var ErrAlreadyProcessed = errors.New("event already processed")

// ErrNotOnboarded indicates the tenant's payment sub-account has not finished
// gateway onboarding, so no payment may be initiated.
var ErrNotOnboarded = errors.New("tenant payment onboarding incomplete")

// InvalidAddOnError carries the offending add-on ids so the client can show
// which selections were rejected.
type InvalidAddOnError struct {
	AddOnIDs []string
}

func (e *InvalidAddOnError) Error() string {
	return fmt.Sprintf("invalid add-on selection: %s", strings.Join(e.AddOnIDs, ", "))
}

func (e *InvalidAddOnError) Unwrap() error { return ErrInvalidAddOn }

// GatewayError describes a payment gateway failure. Retryable errors
// (network, timeout, rate limit, 5xx) leave the booking PENDING and may be
// retried by the caller; non-retryable ones (declined, invalid request) are
// surfaced as-is.
type GatewayError struct {
	Retryable bool
	Code      string
	Message   string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: %s", e.Message)
}

// IsRetryableGateway reports whether err is a GatewayError marked retryable.
func IsRetryableGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}
