package middleware

import (
	"context"
	"net/http"

	"github.com/go-auth-gate/internal/pkg/logger"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const ipKey contextKey = "client_ip"

// RequestContext tags the request context with the attributes the logger
// adds to every record, resolving the client address through proxies. It
// must run after chi's RequestID middleware.
func RequestContext(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.ClientIP(r)
			ctx := logger.SetRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))
			ctx = logger.SetIP(ctx, ip)
			ctx = logger.SetMethod(ctx, r.Method)
			ctx = logger.SetPath(ctx, r.URL.Path)
			ctx = context.WithValue(ctx, ipKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the address resolved by RequestContext.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey).(string)
	return ip
}
