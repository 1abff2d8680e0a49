// Package catalog defines the tenant-scoped bookable offerings: packages,
// their add-ons, and blackout dates.
package catalog

import (
	"fmt"
	"time"
	"unicode"

	"github.com/daybookhq/daybook/internal/domain"
)

// Package is a bookable offering owned by exactly one tenant. Prices are
// integer minor currency units.
type Package struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Price        int64     `json:"price"`
	DurationMins int32     `json:"duration_mins,omitempty"`
	Capacity     int32     `json:"capacity,omitempty"`
	DisplayOrder int32     `json:"display_order"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AddOn is an optional extra attached to a package. Its tenant must match the
// owning package's tenant; bookings reject any cross-tenant selection.
type AddOn struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	PackageID string    `json:"package_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Blackout marks a date a tenant will not accept bookings for.
type Blackout struct {
	TenantID  string    `json:"tenant_id"`
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreatePackageRequest holds the fields for creating a package.
type CreatePackageRequest struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Price        int64  `json:"price"`
	DurationMins int32  `json:"duration_mins,omitempty"`
	Capacity     int32  `json:"capacity,omitempty"`
	DisplayOrder int32  `json:"display_order,omitempty"`
}

// Validate checks the package creation fields.
func (r *CreatePackageRequest) Validate() error {
	if r.Slug == "" {
		return fmt.Errorf("slug is required: %w", domain.ErrValidation)
	}
	if err := validateName(r.Name); err != nil {
		return err
	}
	if r.Price < 0 {
		return fmt.Errorf("price must not be negative: %w", domain.ErrValidation)
	}
	return nil
}

// UpdatePackageRequest holds the fields that can be changed on a package.
// Nil pointers leave the current value untouched.
type UpdatePackageRequest struct {
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	Price        *int64 `json:"price,omitempty"`
	DurationMins *int32 `json:"duration_mins,omitempty"`
	Capacity     *int32 `json:"capacity,omitempty"`
	DisplayOrder *int32 `json:"display_order,omitempty"`
	Active       *bool  `json:"active,omitempty"`
}

// Validate checks the package update fields.
func (r *UpdatePackageRequest) Validate() error {
	if r.Name != "" {
		if err := validateName(r.Name); err != nil {
			return err
		}
	}
	if r.Price != nil && *r.Price < 0 {
		return fmt.Errorf("price must not be negative: %w", domain.ErrValidation)
	}
	return nil
}

// CreateAddOnRequest holds the fields for creating an add-on under a package.
type CreateAddOnRequest struct {
	PackageID string `json:"package_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
}

// Validate checks the add-on creation fields.
func (r *CreateAddOnRequest) Validate() error {
	if r.PackageID == "" {
		return fmt.Errorf("package_id is required: %w", domain.ErrValidation)
	}
	if err := validateName(r.Name); err != nil {
		return err
	}
	if r.Price < 0 {
		return fmt.Errorf("price must not be negative: %w", domain.ErrValidation)
	}
	return nil
}

// CreateBlackoutRequest holds the fields for declaring a blackout date.
type CreateBlackoutRequest struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Reason string `json:"reason,omitempty"`
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(name) > 255 {
		return fmt.Errorf("name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}
	return nil
}
