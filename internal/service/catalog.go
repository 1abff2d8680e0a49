package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/domain/catalog"
	"github.com/daybookhq/daybook/internal/port/cache"
	"github.com/daybookhq/daybook/internal/port/database"
)

// CatalogService serves a tenant's bookable offerings. Public reads go
// through a read-through cache; every admin write invalidates the keys it
// touches so the widget never renders a retired package for long.
type CatalogService struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(store database.Store, c cache.Cache, ttl time.Duration) *CatalogService {
	return &CatalogService{store: store, cache: c, ttl: ttl}
}

// MonthAvailability lists the dates of one month a guest cannot book: days
// already holding a live booking and days the tenant blacked out.
type MonthAvailability struct {
	Month       string   `json:"month"`
	Unavailable []string `json:"unavailable"`
}

// Packages returns the tenant's active packages in display order.
func (s *CatalogService) Packages(ctx context.Context, tenantID string) ([]catalog.Package, error) {
	key := cache.PackagesKey(tenantID)
	var pkgs []catalog.Package
	if s.fromCache(ctx, key, &pkgs) {
		return pkgs, nil
	}

	pkgs, err := s.store.ListPackages(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, pkgs)
	return pkgs, nil
}

// PackageBySlug returns one active package. A retired package reads as not
// found on the public surface, exactly like a slug that never existed.
func (s *CatalogService) PackageBySlug(ctx context.Context, tenantID, slug string) (*catalog.Package, error) {
	key := cache.PackageKey(tenantID, slug)
	var pkg catalog.Package
	if s.fromCache(ctx, key, &pkg) {
		return &pkg, nil
	}

	p, err := s.store.GetPackageBySlug(ctx, tenantID, slug)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("package %s is retired: %w", slug, domain.ErrNotFound)
	}
	s.toCache(ctx, key, p)
	return p, nil
}

// AddOns returns the active add-ons of one package. The package is resolved
// first so an id belonging to another tenant reads as not found rather than
// as an empty list.
func (s *CatalogService) AddOns(ctx context.Context, tenantID, packageID string) ([]catalog.AddOn, error) {
	if _, err := s.store.GetPackage(ctx, tenantID, packageID); err != nil {
		return nil, err
	}

	key := cache.AddOnsKey(tenantID, packageID)
	var addOns []catalog.AddOn
	if s.fromCache(ctx, key, &addOns) {
		return addOns, nil
	}

	addOns, err := s.store.ListAddOns(ctx, tenantID, packageID)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, addOns)
	return addOns, nil
}

// Availability reports the unavailable dates of a month ("YYYY-MM"). Always
// read live: booked dates move too fast for the catalog cache.
func (s *CatalogService) Availability(ctx context.Context, tenantID, month string) (*MonthAvailability, error) {
	from, err := time.ParseInLocation("2006-01", month, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("month must be YYYY-MM: %w", domain.ErrValidation)
	}
	to := from.AddDate(0, 1, 0)

	booked, err := s.store.ListBookedDates(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	blackouts, err := s.store.ListBlackouts(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(booked)+len(blackouts))
	for _, d := range booked {
		seen[d.Format(booking.DateLayout)] = struct{}{}
	}
	for _, b := range blackouts {
		seen[b.Date.Format(booking.DateLayout)] = struct{}{}
	}

	out := &MonthAvailability{Month: month, Unavailable: make([]string, 0, len(seen))}
	for d := range seen {
		out.Unavailable = append(out.Unavailable, d)
	}
	sort.Strings(out.Unavailable)
	return out, nil
}

// AdminPackages returns every package of the tenant, retired ones included.
func (s *CatalogService) AdminPackages(ctx context.Context, tenantID string) ([]catalog.Package, error) {
	return s.store.ListPackages(ctx, tenantID, true)
}

// CreatePackage adds a package and drops the tenant's cached package list.
func (s *CatalogService) CreatePackage(ctx context.Context, tenantID string, req catalog.CreatePackageRequest) (*catalog.Package, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	pkg, err := s.store.CreatePackage(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.PackagesKey(tenantID), cache.PackageKey(tenantID, pkg.Slug))
	return pkg, nil
}

// UpdatePackage applies the non-zero fields of req.
func (s *CatalogService) UpdatePackage(ctx context.Context, tenantID, id string, req catalog.UpdatePackageRequest) (*catalog.Package, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	pkg, err := s.store.UpdatePackage(ctx, tenantID, id, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.PackagesKey(tenantID), cache.PackageKey(tenantID, pkg.Slug))
	return pkg, nil
}

// DeactivatePackage retires a package from the public catalog. Existing
// bookings keep their snapshot and are unaffected.
func (s *CatalogService) DeactivatePackage(ctx context.Context, tenantID, id string) error {
	pkg, err := s.store.GetPackage(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeactivatePackage(ctx, tenantID, id); err != nil {
		return err
	}
	s.invalidate(ctx,
		cache.PackagesKey(tenantID),
		cache.PackageKey(tenantID, pkg.Slug),
		cache.AddOnsKey(tenantID, id),
	)
	return nil
}

// CreateAddOn attaches an add-on to one of the tenant's packages.
func (s *CatalogService) CreateAddOn(ctx context.Context, tenantID string, req catalog.CreateAddOnRequest) (*catalog.AddOn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.store.CreateAddOn(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.AddOnsKey(tenantID, req.PackageID))
	return a, nil
}

// DeactivateAddOn retires an add-on.
func (s *CatalogService) DeactivateAddOn(ctx context.Context, tenantID, id string) error {
	a, err := s.store.DeactivateAddOn(ctx, tenantID, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, cache.AddOnsKey(tenantID, a.PackageID))
	return nil
}

// Blackouts lists the tenant's blackout dates in [from, to).
func (s *CatalogService) Blackouts(ctx context.Context, tenantID string, from, to time.Time) ([]catalog.Blackout, error) {
	return s.store.ListBlackouts(ctx, tenantID, from, to)
}

// CreateBlackout marks a date unbookable. Existing bookings on the date are
// left alone; the blackout only blocks new reservations.
func (s *CatalogService) CreateBlackout(ctx context.Context, tenantID string, req catalog.CreateBlackoutRequest) (*catalog.Blackout, error) {
	date, err := booking.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	return s.store.CreateBlackout(ctx, tenantID, date, req.Reason)
}

// DeleteBlackout reopens a date.
func (s *CatalogService) DeleteBlackout(ctx context.Context, tenantID, date string) error {
	day, err := booking.ParseDate(date)
	if err != nil {
		return err
	}
	return s.store.DeleteBlackout(ctx, tenantID, day)
}

func (s *CatalogService) fromCache(ctx context.Context, key string, dest any) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("catalog cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("catalog cache entry undecodable", "key", key, "error", err)
		_ = s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *CatalogService) toCache(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Warn("catalog cache write failed", "key", key, "error", err)
	}
}

func (s *CatalogService) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			slog.Warn("catalog cache invalidation failed", "key", key, "error", err)
		}
	}
}
