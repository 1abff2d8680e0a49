package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxIdempotencyBody   = 1 << 20
)

// idempotencyEntry is the stored form of a completed response.
type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency deduplicates mutating requests keyed by the Idempotency-Key
// header, with a JetStream KV bucket as the shared record (entry expiry is
// the bucket TTL). A guest whose booking POST timed out can resend with the
// same key and get the recorded response back instead of a second booking
// attempt. Keys are scoped to the resolved tenant so two tenants can never
// replay each other's responses.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			clientKey := r.Header.Get(headerIdempotencyKey)
			tc, hasTenant := TenantFromContext(r.Context())
			if clientKey == "" || !hasTenant {
				next.ServeHTTP(w, r)
				return
			}
			key := kvKey(tc.ID, clientKey)

			if entry, err := kv.Get(r.Context(), key); err == nil {
				if replayStored(w, entry.Value()) {
					return
				}
				slog.Warn("idempotency: corrupt cache entry", "key", key)
			}

			tap := &responseTap{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(tap, r)

			// Server faults are not an outcome worth replaying; the client
			// retry should reprocess.
			if tap.status >= 500 || tap.buf.Len() > maxIdempotencyBody {
				return
			}
			record(r.Context(), kv, key, tap)
		})
	}
}

// replayStored decodes a recorded response and writes it out. It reports
// false when the stored bytes do not decode, so the request falls through
// to the handler.
func replayStored(w http.ResponseWriter, raw []byte) bool {
	var cached idempotencyEntry
	if err := json.Unmarshal(raw, &cached); err != nil {
		return false
	}
	for name, vals := range cached.Headers {
		for _, v := range vals {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return true
}

// record persists the tapped response under key. The response has already
// reached the client, so a failed put only logs.
func record(ctx context.Context, kv jetstream.KeyValue, key string, tap *responseTap) {
	data, err := json.Marshal(idempotencyEntry{
		StatusCode: tap.status,
		Headers:    tap.Header().Clone(),
		Body:       tap.buf.Bytes(),
	})
	if err != nil {
		return
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		slog.Warn("idempotency: failed to store response", "key", key, "error", err)
	}
}

// kvKey builds a JetStream-safe KV key. Client keys are free text, so the
// client part is hashed into the KV key charset.
func kvKey(tenantID, clientKey string) string {
	sum := sha256.Sum256([]byte(clientKey))
	return tenantID + "." + hex.EncodeToString(sum[:16])
}

// responseTap passes the response through while keeping a copy for the
// idempotency record.
type responseTap struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTap) Write(b []byte) (int, error) {
	t.buf.Write(b)
	return t.ResponseWriter.Write(b)
}
