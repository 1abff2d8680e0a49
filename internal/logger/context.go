package logger

import "context"

// Private key types prevent collisions with other context keys.
type requestIDCtxKey struct{}
type tenantIDCtxKey struct{}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}

// WithTenantID returns a new context carrying the resolved tenant id, so log
// records and store queries downstream can attribute work to a tenant.
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDCtxKey{}, id)
}

// TenantID extracts the tenant id from the context.
// Returns an empty string if no tenant is resolved.
func TenantID(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDCtxKey{}).(string)
	return id
}
