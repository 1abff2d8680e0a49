package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/daybookhq/daybook/internal/middleware"
	"github.com/daybookhq/daybook/internal/secrets"
)

// Deps carries the route-level middleware the router mounts around the
// handlers: the per-IP limiter on the public widget surface, idempotent
// replay on booking creation, and HMAC verification on the gateway webhook.
type Deps struct {
	RateLimiter     *middleware.RateLimiter
	Idempotency     func(http.Handler) http.Handler
	Vault           *secrets.Vault
	SignatureHeader string
}

// MountRoutes registers all API routes on the router.
//
// Three authentication surfaces share the /api/v1 prefix: the public widget
// surface (publishable key, rate limited), the gateway webhook (HMAC
// signature, no tenant key), and the tenant admin surface (secret key).
func MountRoutes(r chi.Router, h *Handlers, d Deps) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", h.VersionInfo)

		// The gateway signs the payload; it cannot carry a tenant key.
		r.With(middleware.WebhookHMAC(d.Vault, d.SignatureHeader)).
			Post("/payments/webhook", h.GatewayWebhook)

		// Public widget surface.
		r.Group(func(r chi.Router) {
			if d.RateLimiter != nil {
				r.Use(d.RateLimiter.Handler)
			}
			r.Use(middleware.TenantKey(h.Directory))

			r.Get("/packages", h.ListPackages)
			r.Get("/packages/{id}", h.GetPackage)
			r.Get("/packages/{id}/addons", h.ListAddOns)
			r.Get("/availability", h.Availability)

			if d.Idempotency != nil {
				r.With(d.Idempotency).Post("/bookings", h.CreateBooking)
			} else {
				r.Post("/bookings", h.CreateBooking)
			}
			r.Get("/bookings/{id}", h.GetBooking)
			r.Post("/bookings/{id}/pay", h.PayBooking)

			// The widget opens the feed with its key in the query string
			// since browsers cannot set headers on a WebSocket dial.
			if h.Hub != nil {
				r.Get("/widget/ws", h.Hub.HandleWS)
			}
		})

		// Tenant admin surface.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminKey(h.Directory))

			r.Get("/packages", h.AdminListPackages)
			r.Post("/packages", h.AdminCreatePackage)
			r.Put("/packages/{id}", h.AdminUpdatePackage)
			r.Delete("/packages/{id}", h.AdminDeletePackage)

			r.Get("/addons", h.AdminListAddOns)
			r.Post("/addons", h.AdminCreateAddOn)
			r.Delete("/addons/{id}", h.AdminDeleteAddOn)

			r.Get("/blackouts", h.AdminListBlackouts)
			r.Post("/blackouts", h.AdminCreateBlackout)
			r.Delete("/blackouts/{date}", h.AdminDeleteBlackout)

			r.Get("/bookings", h.AdminListBookings)
			r.Post("/bookings/{id}/refund", h.AdminRefundBooking)
			r.Post("/bookings/{id}/cancel", h.AdminCancelBooking)
		})
	})
}
