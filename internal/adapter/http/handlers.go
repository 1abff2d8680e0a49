package http

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daybookhq/daybook/internal/adapter/ws"
	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/domain/catalog"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/middleware"
	"github.com/daybookhq/daybook/internal/port/database"
	"github.com/daybookhq/daybook/internal/service"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Directory *service.DirectoryService
	Catalog   *service.CatalogService
	Bookings  *service.BookingService
	Payments  *service.PaymentService
	Ingest    *service.IngestService
	Store     database.Store
	Hub       *ws.Hub
}

// paymentIntentResponse is the body of POST /bookings/{id}/pay. The client
// secret never appears in booking reads; it only travels on this response.
type paymentIntentResponse struct {
	BookingID    string         `json:"booking_id"`
	Status       booking.Status `json:"status"`
	IntentID     string         `json:"payment_intent_id"`
	ClientSecret string         `json:"client_secret"`
	Amount       int64          `json:"amount"`
}

func tenantOr401(w http.ResponseWriter, r *http.Request) (tenant.Context, bool) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant context")
	}
	return tc, ok
}

// ListPackages handles GET /api/v1/packages
func (h *Handlers) ListPackages(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	pkgs, err := h.Catalog.Packages(r.Context(), tc.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if pkgs == nil {
		pkgs = []catalog.Package{}
	}
	writeJSON(w, http.StatusOK, pkgs)
}

// GetPackage handles GET /api/v1/packages/{id}; the path value is the
// package slug the widget embeds in its URLs.
func (h *Handlers) GetPackage(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	pkg, err := h.Catalog.PackageBySlug(r.Context(), tc.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// ListAddOns handles GET /api/v1/packages/{id}/addons
func (h *Handlers) ListAddOns(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	addOns, err := h.Catalog.AddOns(r.Context(), tc.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if addOns == nil {
		addOns = []catalog.AddOn{}
	}
	writeJSON(w, http.StatusOK, addOns)
}

// Availability handles GET /api/v1/availability?month=YYYY-MM
func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	month := r.URL.Query().Get("month")
	if month == "" {
		writeError(w, http.StatusBadRequest, "month query parameter is required")
		return
	}
	avail, err := h.Catalog.Availability(r.Context(), tc.ID, month)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// CreateBooking handles POST /api/v1/bookings
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[booking.CreateRequest](w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Create(r.Context(), tc, req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GetBooking handles GET /api/v1/bookings/{id}; the widget polls it while
// the guest completes payment.
func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Get(r.Context(), tc.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PayBooking handles POST /api/v1/bookings/{id}/pay
func (h *Handlers) PayBooking(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	b, err := h.Payments.Initiate(r.Context(), tc, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentIntentResponse{
		BookingID:    b.ID,
		Status:       b.Status,
		IntentID:     b.PaymentIntentID,
		ClientSecret: b.ClientSecret,
		Amount:       b.Total,
	})
}

// GatewayWebhook handles POST /api/v1/payments/webhook. The HMAC middleware
// verified the signature and already read the body; replays are acked with
// 200 so the gateway stops resending, and handler failures return 500 so it
// retries.
func (h *Handlers) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := h.Ingest.Process(r.Context(), raw); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// AdminListPackages handles GET /api/v1/admin/packages; unlike the public
// list it includes retired packages.
func (h *Handlers) AdminListPackages(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	pkgs, err := h.Catalog.AdminPackages(r.Context(), tc.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if pkgs == nil {
		pkgs = []catalog.Package{}
	}
	writeJSON(w, http.StatusOK, pkgs)
}

// AdminCreatePackage handles POST /api/v1/admin/packages
func (h *Handlers) AdminCreatePackage(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[catalog.CreatePackageRequest](w, r)
	if !ok {
		return
	}
	pkg, err := h.Catalog.CreatePackage(r.Context(), tc.ID, req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pkg)
}

// AdminUpdatePackage handles PUT /api/v1/admin/packages/{id}
func (h *Handlers) AdminUpdatePackage(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[catalog.UpdatePackageRequest](w, r)
	if !ok {
		return
	}
	pkg, err := h.Catalog.UpdatePackage(r.Context(), tc.ID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// AdminDeletePackage handles DELETE /api/v1/admin/packages/{id}. Packages
// with booking history are deactivated, never removed.
func (h *Handlers) AdminDeletePackage(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeactivatePackage(r.Context(), tc.ID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListAddOns handles GET /api/v1/admin/addons?package_id=...
func (h *Handlers) AdminListAddOns(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	packageID := r.URL.Query().Get("package_id")
	if packageID == "" {
		writeError(w, http.StatusBadRequest, "package_id query parameter is required")
		return
	}
	addOns, err := h.Catalog.AddOns(r.Context(), tc.ID, packageID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if addOns == nil {
		addOns = []catalog.AddOn{}
	}
	writeJSON(w, http.StatusOK, addOns)
}

// AdminCreateAddOn handles POST /api/v1/admin/addons
func (h *Handlers) AdminCreateAddOn(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[catalog.CreateAddOnRequest](w, r)
	if !ok {
		return
	}
	addOn, err := h.Catalog.CreateAddOn(r.Context(), tc.ID, req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addOn)
}

// AdminDeleteAddOn handles DELETE /api/v1/admin/addons/{id}
func (h *Handlers) AdminDeleteAddOn(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeactivateAddOn(r.Context(), tc.ID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListBlackouts handles GET /api/v1/admin/blackouts?from=&to=
func (h *Handlers) AdminListBlackouts(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	from, to, err := blackoutRange(r)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	blackouts, err := h.Catalog.Blackouts(r.Context(), tc.ID, from, to)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if blackouts == nil {
		blackouts = []catalog.Blackout{}
	}
	writeJSON(w, http.StatusOK, blackouts)
}

// blackoutRange parses the optional from/to bounds; unset means the two
// years ahead a wedding is realistically booked in.
func blackoutRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := now, now.AddDate(2, 0, 0)
	if s := r.URL.Query().Get("from"); s != "" {
		parsed, err := booking.ParseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if s := r.URL.Query().Get("to"); s != "" {
		parsed, err := booking.ParseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

// AdminCreateBlackout handles POST /api/v1/admin/blackouts
func (h *Handlers) AdminCreateBlackout(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[catalog.CreateBlackoutRequest](w, r)
	if !ok {
		return
	}
	blackout, err := h.Catalog.CreateBlackout(r.Context(), tc.ID, req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, blackout)
}

// AdminDeleteBlackout handles DELETE /api/v1/admin/blackouts/{date}
func (h *Handlers) AdminDeleteBlackout(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeleteBlackout(r.Context(), tc.ID, chi.URLParam(r, "date")); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListBookings handles GET /api/v1/admin/bookings?status=&from=&to=&limit=&offset=
func (h *Handlers) AdminListBookings(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	filter, err := bookingFilter(r)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	bookings, err := h.Bookings.List(r.Context(), tc.ID, filter)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if bookings == nil {
		bookings = []booking.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func bookingFilter(r *http.Request) (booking.ListFilter, error) {
	q := r.URL.Query()
	var f booking.ListFilter
	if s := q.Get("status"); s != "" {
		f.Status = booking.Status(s)
	}
	if s := q.Get("from"); s != "" {
		parsed, err := booking.ParseDate(s)
		if err != nil {
			return f, err
		}
		f.From = parsed
	}
	if s := q.Get("to"); s != "" {
		parsed, err := booking.ParseDate(s)
		if err != nil {
			return f, err
		}
		f.To = parsed
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 1 {
			return f, domain.ErrValidation
		}
		f.Limit = int32(n)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			return f, domain.ErrValidation
		}
		f.Offset = int32(n)
	}
	return f, nil
}

// AdminRefundBooking handles POST /api/v1/admin/bookings/{id}/refund
func (h *Handlers) AdminRefundBooking(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[booking.RefundRequest](w, r)
	if !ok {
		return
	}
	b, err := h.Payments.Refund(r.Context(), tc, chi.URLParam(r, "id"), req.Amount, req.Reason)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// AdminCancelBooking handles POST /api/v1/admin/bookings/{id}/cancel
func (h *Handlers) AdminCancelBooking(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOr401(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Cancel(r.Context(), tc.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Health handles GET /health. It reports degraded with 503 when the store
// is unreachable so the load balancer drains the instance.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	body := map[string]any{
		"status":  status,
		"version": Version,
	}
	if h.Hub != nil {
		body["widget_connections"] = h.Hub.ConnectionCount()
	}
	writeJSON(w, code, body)
}

// VersionInfo handles GET /api/v1/
func (h *Handlers) VersionInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "daybook",
		"version": Version,
	})
}
