package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/daybookhq/daybook/internal/secrets"
)

// HeaderWebhookSignature is the default header carrying the gateway's
// HMAC-SHA256 of the raw body.
const HeaderWebhookSignature = "Daybook-Signature"

// maxWebhookBody bounds how much of a webhook request is read for
// verification. Gateway events are small; anything past this is hostile.
const maxWebhookBody = 1 << 20

// WebhookHMAC validates the gateway signature on incoming webhook requests.
// The secret is read from the vault on every request, so a SIGHUP rotation
// takes effect immediately. A missing or wrong signature gets a bare 401
// with no detail about which check failed.
func WebhookHMAC(vault *secrets.Vault, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = HeaderWebhookSignature
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := vault.Get(secrets.KeyWebhookSecret)
			if secret == "" {
				http.Error(w, `{"error":"webhook secret not configured"}`, http.StatusServiceUnavailable)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifyHMAC(body, r.Header.Get(header), secret) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verifyHMAC checks an HMAC-SHA256 signature. Accepts both raw hex and the
// "sha256=<hex>" prefix form.
func verifyHMAC(payload []byte, signature, secret string) bool {
	sig := strings.TrimPrefix(signature, "sha256=")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	return hmac.Equal(sigBytes, expected)
}
