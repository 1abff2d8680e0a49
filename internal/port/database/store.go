// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/domain/catalog"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/domain/webhook"
)

// Store is the port interface for database operations. Every tenant-scoped
// method takes the tenant id explicitly; no method returns rows across
// tenants unless its name says so (platform admin listings).
type Store interface {
	// Ping reports whether the database is reachable.
	Ping(ctx context.Context) error

	// Tenants
	CreateTenant(ctx context.Context, t tenant.Tenant) (*tenant.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
	GetTenantByPublicKey(ctx context.Context, publicKey string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error)
	RotateTenantKeys(ctx context.Context, id, publicKey, secretKeyHash string) error
	SetTenantOnboarding(ctx context.Context, gatewayAccountID string, complete bool) (*tenant.Tenant, error)

	// Catalog
	ListPackages(ctx context.Context, tenantID string, includeInactive bool) ([]catalog.Package, error)
	GetPackageBySlug(ctx context.Context, tenantID, slug string) (*catalog.Package, error)
	GetPackage(ctx context.Context, tenantID, id string) (*catalog.Package, error)
	CreatePackage(ctx context.Context, tenantID string, req catalog.CreatePackageRequest) (*catalog.Package, error)
	UpdatePackage(ctx context.Context, tenantID, id string, req catalog.UpdatePackageRequest) (*catalog.Package, error)
	DeactivatePackage(ctx context.Context, tenantID, id string) error
	ListAddOns(ctx context.Context, tenantID, packageID string) ([]catalog.AddOn, error)
	CreateAddOn(ctx context.Context, tenantID string, req catalog.CreateAddOnRequest) (*catalog.AddOn, error)
	DeactivateAddOn(ctx context.Context, tenantID, id string) (*catalog.AddOn, error)
	ListBlackouts(ctx context.Context, tenantID string, from, to time.Time) ([]catalog.Blackout, error)
	CreateBlackout(ctx context.Context, tenantID string, date time.Time, reason string) (*catalog.Blackout, error)
	DeleteBlackout(ctx context.Context, tenantID string, date time.Time) error

	// Bookings
	ReserveBooking(ctx context.Context, p booking.ReserveParams) (*booking.Booking, error)
	GetBooking(ctx context.Context, tenantID, id string) (*booking.Booking, error)
	GetBookingByIntent(ctx context.Context, intentID string) (*booking.Booking, error)
	ListBookings(ctx context.Context, tenantID string, f booking.ListFilter) ([]booking.Booking, error)
	ListBookedDates(ctx context.Context, tenantID string, from, to time.Time) ([]time.Time, error)
	SetBookingPayment(ctx context.Context, tenantID, id, intentID, clientSecret string) error
	ConfirmBookingByIntent(ctx context.Context, intentID string) (*booking.Booking, bool, error)
	CancelBooking(ctx context.Context, tenantID, id string) (*booking.Booking, error)
	MarkBookingRefunded(ctx context.Context, tenantID, id string) (*booking.Booking, error)
	ExpireBookings(ctx context.Context, cutoff time.Time, limit int32) ([]booking.Booking, error)

	// Webhook events
	InsertWebhookEvent(ctx context.Context, e webhook.Event) (*webhook.Event, error)
	MarkWebhookProcessed(ctx context.Context, id string) error
	RecordWebhookFailure(ctx context.Context, id, lastError string) error
	ListUnprocessedWebhooks(ctx context.Context, limit int32) ([]webhook.Event, error)
}
