package middleware

import (
	"context"
	"net/http"

	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/logger"
)

// HeaderTenantKey carries the tenant's public key on public API requests.
const HeaderTenantKey = "X-Daybook-Key"

type tenantCtxKey struct{}

// Resolver turns a public key into the tenant it belongs to. Implemented by
// the directory service.
type Resolver interface {
	Resolve(ctx context.Context, publicKey string) (tenant.Context, error)
}

// TenantKey authenticates public API requests by tenant public key. The key
// normally arrives in the X-Daybook-Key header; the websocket route cannot
// set headers from a browser, so ?key= is accepted as a fallback. Malformed
// keys are rejected before any lookup. Unknown and inactive tenants get the
// same response, so a caller cannot probe which slugs exist.
func TenantKey(dir Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderTenantKey)
			if key == "" {
				key = r.URL.Query().Get("key")
			}
			if _, err := tenant.ParsePublicKey(key); err != nil {
				unauthorizedKey(w)
				return
			}

			tc, err := dir.Resolve(r.Context(), key)
			if err != nil {
				unauthorizedKey(w)
				return
			}

			ctx := context.WithValue(r.Context(), tenantCtxKey{}, tc)
			ctx = logger.WithTenantID(ctx, tc.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant resolved by TenantKey or AdminKey.
func TenantFromContext(ctx context.Context) (tenant.Context, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(tenant.Context)
	return tc, ok
}

func unauthorizedKey(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid tenant key"}`))
}
