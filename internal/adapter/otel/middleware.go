package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// isTraced keeps load balancer health probes out of the trace pipeline.
func isTraced(r *http.Request) bool {
	return r.URL.Path != "/health"
}

// HTTPMiddleware returns a chi-compatible middleware that opens a span per
// request. Incoming trace headers are treated as untrusted links rather than
// parents: requests arrive from embed widgets in arbitrary browsers.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
			otelhttp.WithFilter(isTraced),
		)
	}
}
