package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/daybookhq/daybook/internal/domain"
	"github.com/daybookhq/daybook/internal/logger"
)

// maxBodyBytes caps request bodies. Booking payloads are small; anything
// above a megabyte is abuse.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// readJSON decodes the request body into T, enforcing the body size cap and
// rejecting unknown fields. On failure it writes the error response itself
// and returns ok=false.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return v, false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("encode response failed", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps a service error onto HTTP. The mapping is part of
// the widget contract: 404 unknown or cross-tenant, 401 bad credentials, 400
// malformed input, 409 date or state conflicts, 502 retryable gateway
// failures, 402 declined payments.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, clientMessage(err, domain.ErrNotFound))
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, clientMessage(err, domain.ErrUnauthorized))
	case errors.Is(err, domain.ErrInvalidAddOn):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, clientMessage(err, domain.ErrValidation))
	case errors.Is(err, domain.ErrDateUnavailable):
		writeError(w, http.StatusConflict, clientMessage(err, domain.ErrDateUnavailable))
	case errors.Is(err, domain.ErrNotOnboarded):
		writeError(w, http.StatusConflict, domain.ErrNotOnboarded.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, clientMessage(err, domain.ErrConflict))
	case domain.IsRetryableGateway(err):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusBadGateway, "payment gateway unavailable, retry shortly")
	case isGatewayError(err):
		writeError(w, http.StatusPaymentRequired, gatewayMessage(err))
	default:
		slog.Error("request failed",
			"error", err,
			"request_id", logger.RequestID(ctx),
			"tenant", logger.TenantID(ctx))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// clientMessage keeps the contextual prefix of a wrapped sentinel while
// dropping the trailing ": <sentinel>" wrap, so "guest.email is invalid:
// validation failed" reads back as "guest.email is invalid". Bare sentinels
// pass through unchanged.
func clientMessage(err error, sentinel error) string {
	msg := err.Error()
	suffix := ": " + sentinel.Error()
	if trimmed, ok := strings.CutSuffix(msg, suffix); ok && trimmed != "" {
		return trimmed
	}
	return msg
}

func isGatewayError(err error) bool {
	var ge *domain.GatewayError
	return errors.As(err, &ge)
}

func gatewayMessage(err error) string {
	var ge *domain.GatewayError
	if errors.As(err, &ge) && ge.Message != "" {
		return "payment failed: " + ge.Message
	}
	return "payment failed"
}
