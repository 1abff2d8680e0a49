package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daybookhq/daybook/internal/config"
)

// Slow refill keeps the HTTP-level tests deterministic: the bucket cannot
// regain a token between two loop iterations.
func newTestLimiter(burst int) *RateLimiter {
	return NewRateLimiter(config.Rate{RequestsPerSecond: 0.01, Burst: burst})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/availability", http.NoBody)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBucketRefillIsContinuous(t *testing.T) {
	now := time.Now()
	b := &bucket{tokens: 0, refilledAt: now}

	// Empty bucket at 2 rps: the next token is half a second out.
	if _, wait, ok := b.take(now, 2, 5); ok || wait != 0.5 {
		t.Fatalf("take on empty bucket = wait %v, ok %v; want 0.5, false", wait, ok)
	}

	if _, _, ok := b.take(now.Add(500*time.Millisecond), 2, 5); !ok {
		t.Fatal("token not refilled after 500ms at 2 rps")
	}
}

func TestBucketClampsAtBurst(t *testing.T) {
	now := time.Now()
	b := &bucket{tokens: 5, refilledAt: now}

	// An hour of refill cannot push the bucket past its burst.
	remaining, _, ok := b.take(now.Add(time.Hour), 10, 5)
	if !ok || remaining != 4 {
		t.Fatalf("take = remaining %d, ok %v; want 4, true", remaining, ok)
	}
}

func TestLimiterAdmitsWithinBurst(t *testing.T) {
	h := newTestLimiter(10).Handler(okHandler())

	for i := range 10 {
		if rec := hit(h, "203.0.113.7:51112"); rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestLimiterRejectsWhenDrained(t *testing.T) {
	h := newTestLimiter(5).Handler(okHandler())

	for range 5 {
		hit(h, "203.0.113.7:51112")
	}

	rec := hit(h, "203.0.113.7:51112")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestLimiterCountsRemainingDown(t *testing.T) {
	h := newTestLimiter(10).Handler(okHandler())

	first := hit(h, "203.0.113.7:51112")
	if got := first.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("first X-RateLimit-Remaining = %q, want 9", got)
	}
	second := hit(h, "203.0.113.7:51112")
	if got := second.Header().Get("X-RateLimit-Remaining"); got != "8" {
		t.Errorf("second X-RateLimit-Remaining = %q, want 8", got)
	}
	if first.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("missing X-RateLimit-Reset header")
	}
}

func TestLimiterTracksClientsSeparately(t *testing.T) {
	h := newTestLimiter(2).Handler(okHandler())

	hit(h, "203.0.113.7:51112")
	hit(h, "203.0.113.7:51112")

	if rec := hit(h, "203.0.113.7:51112"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("drained client: status = %d, want 429", rec.Code)
	}
	// A different source port is the same client; a different IP is not.
	if rec := hit(h, "203.0.113.7:60001"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("same IP, new port: status = %d, want 429", rec.Code)
	}
	if rec := hit(h, "203.0.113.99:51112"); rec.Code != http.StatusOK {
		t.Errorf("fresh IP: status = %d, want 200", rec.Code)
	}
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	rl := newTestLimiter(2)
	h := rl.Handler(okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		hit(h, addr)
	}
	if got := rl.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	rl.cleanup(time.Nanosecond)
	if got := rl.Len(); got != 0 {
		t.Errorf("Len() after cleanup = %d, want 0", got)
	}
}
