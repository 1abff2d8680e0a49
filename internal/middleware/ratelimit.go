package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/daybookhq/daybook/internal/config"
)

// RateLimiter is per-IP token bucket rate limiting for the public booking
// surface. Availability lookups by the widget are bursty, so the burst size
// matters more than the sustained rate.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rate       float64
	burst      float64
	maxBuckets int
}

type bucket struct {
	tokens     float64
	refilledAt time.Time
	lastSeen   time.Time
}

// take refills the bucket for the time elapsed since the last refill, then
// claims one token. Reports remaining whole tokens, seconds until a token
// frees up when the claim fails, and the verdict.
func (b *bucket) take(now time.Time, rate, burst float64) (int, float64, bool) {
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.refilledAt).Seconds()*rate)
	b.refilledAt = now

	if b.tokens < 1 {
		return 0, (1 - b.tokens) / rate, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// NewRateLimiter creates a rate limiter from config: sustained requests per
// second and burst size per client IP.
func NewRateLimiter(cfg config.Rate) *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*bucket),
		rate:       cfg.RequestsPerSecond,
		burst:      float64(cfg.Burst),
		maxBuckets: 100000,
	}
}

// Handler returns HTTP middleware enforcing the per-IP limit.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter, ok := rl.allow(clientIP(r))

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) (remaining int, retryAfter float64, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b := rl.buckets[ip]
	if b == nil {
		// Cap tracked IPs so a scan cannot exhaust memory. New clients are
		// shed while the table is full; existing buckets keep working.
		if len(rl.buckets) >= rl.maxBuckets {
			return 0, 1.0 / rl.rate, false
		}
		b = &bucket{tokens: rl.burst, refilledAt: now}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.take(now, rl.rate, rl.burst)
}

// StartCleanup spawns a goroutine that drops buckets idle for maxIdle, every
// interval. The returned function stops it.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// Len returns the number of tracked IP buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// clientIP extracts the peer address from RemoteAddr. Proxy headers are not
// trusted: a forged X-Forwarded-For would bypass the limit.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
