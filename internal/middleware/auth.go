// Package middleware provides HTTP middleware for Daybook.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/logger"
)

// SecretVerifier checks a full secret key against the tenant's stored hash.
// Implemented by the directory service.
type SecretVerifier interface {
	VerifySecret(ctx context.Context, secretKey string) (tenant.Context, error)
}

// AdminKey authenticates tenant admin requests via Authorization: Bearer with
// the tenant's secret key. The key's lexical shape is checked before the
// bcrypt comparison, so garbage input never costs a hash. All failures get
// the same 401.
func AdminKey(dir SecretVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorizedAdmin(w)
				return
			}
			key := strings.TrimPrefix(authHeader, "Bearer ")
			if key == authHeader {
				unauthorizedAdmin(w)
				return
			}
			if _, err := tenant.ParseSecretKey(key); err != nil {
				unauthorizedAdmin(w)
				return
			}

			tc, err := dir.VerifySecret(r.Context(), key)
			if err != nil {
				unauthorizedAdmin(w)
				return
			}

			ctx := context.WithValue(r.Context(), tenantCtxKey{}, tc)
			ctx = logger.WithTenantID(ctx, tc.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorizedAdmin(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid admin key"}`))
}
