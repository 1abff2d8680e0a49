package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/daybookhq/daybook/internal/logger"
)

// serveWithRequestID pushes one request through the RequestID middleware and
// reports the ID the handler saw in context and the one echoed on the
// response header.
func serveWithRequestID(t *testing.T, incoming string) (inContext, inHeader string) {
	t.Helper()

	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inContext = logger.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", http.NoBody)
	if incoming != "" {
		req.Header.Set("X-Request-ID", incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return inContext, rec.Header().Get("X-Request-ID")
}

func TestRequestIDMintsUUIDWhenAbsent(t *testing.T) {
	inContext, inHeader := serveWithRequestID(t, "")

	if inContext == "" {
		t.Fatal("no request ID in handler context")
	}
	if inHeader != inContext {
		t.Fatalf("header ID %q and context ID %q disagree", inHeader, inContext)
	}
	if _, err := uuid.Parse(inHeader); err != nil {
		t.Errorf("minted ID %q is not a UUID: %v", inHeader, err)
	}
}

func TestRequestIDDistinctPerRequest(t *testing.T) {
	first, _ := serveWithRequestID(t, "")
	second, _ := serveWithRequestID(t, "")
	if first == second {
		t.Fatalf("two requests share request ID %q", first)
	}
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	// The embed widget sends its own correlation ID; it must survive to the
	// context and the response untouched.
	const supplied = "widget-7f3a1c"

	inContext, inHeader := serveWithRequestID(t, supplied)
	if inContext != supplied {
		t.Errorf("context ID = %q, want %q", inContext, supplied)
	}
	if inHeader != supplied {
		t.Errorf("header ID = %q, want %q", inHeader, supplied)
	}
}
