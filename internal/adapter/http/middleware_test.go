package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/daybookhq/daybook/internal/domain"
)

func TestResponseWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if rw.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.status)
	}
	if rw.bytes != 5 {
		t.Fatalf("bytes = %d, want 5", rw.bytes)
	}
}

func TestResponseWriterRecordsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // second call ignored

	if rw.status != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rw.status)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("recorded code = %d, want 418", rec.Code)
	}
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rw.Hijack(); err == nil {
		t.Fatal("Hijack() on a plain recorder should fail")
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWriterHijackForwarded(t *testing.T) {
	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	if _, _, err := rw.Hijack(); err != nil {
		t.Fatalf("Hijack() error = %v", err)
	}
	if !rec.hijacked {
		t.Fatal("Hijack() did not reach the underlying writer")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	reached := false
	handler := CORS("https://host.example")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d, want 204", rec.Code)
	}
	if reached {
		t.Fatal("preflight request reached the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://host.example" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestCORSPassesThroughWithHeaders(t *testing.T) {
	handler := CORS("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/packages", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("empty origin config should default to *, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestClientMessage(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		want     string
	}{
		{fmt.Errorf("guest.email is invalid: %w", domain.ErrValidation), domain.ErrValidation, "guest.email is invalid"},
		{domain.ErrValidation, domain.ErrValidation, "validation failed"},
		{domain.ErrNotFound, domain.ErrNotFound, "not found"},
		{fmt.Errorf("package gold is retired: %w", domain.ErrNotFound), domain.ErrNotFound, "package gold is retired"},
	}
	for _, tt := range tests {
		if got := clientMessage(tt.err, tt.sentinel); got != tt.want {
			t.Errorf("clientMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestWriteDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid add-on", &domain.InvalidAddOnError{AddOnIDs: []string{"a9"}}, http.StatusBadRequest},
		{"date unavailable", domain.ErrDateUnavailable, http.StatusConflict},
		{"state conflict", domain.ErrConflict, http.StatusConflict},
		{"not onboarded", domain.ErrNotOnboarded, http.StatusConflict},
		{"gateway retryable", &domain.GatewayError{Retryable: true, Message: "timeout"}, http.StatusBadGateway},
		{"gateway declined", &domain.GatewayError{Retryable: false, Code: "card_declined", Message: "no"}, http.StatusPaymentRequired},
		{"unknown", errors.New("pg: connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(context.Background(), rec, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusBadGateway && rec.Header().Get("Retry-After") == "" {
				t.Fatal("retryable gateway error missing Retry-After")
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "pg:") {
				t.Fatal("internal error details leaked to the client")
			}
		})
	}
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	type shape struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	rec := httptest.NewRecorder()

	if _, ok := readJSON[shape](rec, req); ok {
		t.Fatal("readJSON accepted a body with unknown fields")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReadJSONBodyTooLarge(t *testing.T) {
	type shape struct {
		Name string `json:"name"`
	}
	big := `{"name":"` + strings.Repeat("x", maxBodyBytes+1) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	rec := httptest.NewRecorder()

	if _, ok := readJSON[shape](rec, req); ok {
		t.Fatal("readJSON accepted an oversized body")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}
