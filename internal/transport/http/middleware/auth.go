package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-auth-gate/internal/application/auth"
	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/pkg/logger"
	"github.com/go-auth-gate/internal/transport/http/cookie"
)

type contextKey string

const principalKey contextKey = "principal"

// Authenticator resolves a session token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// Auth returns middleware that resolves the session cookie and injects the
// principal into the context. Requests without a valid session pass through
// anonymously and their stale cookie is cleared; each handler decides
// whether a principal is required.
func Auth(authn Authenticator, jar *cookie.Jar) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookie.Value(r, cookie.Session)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := authn.Authenticate(r.Context(), token)
			if errors.Is(err, domain.ErrUnauthorized) {
				jar.ClearSession(w)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "session lookup failed", "err", err)
				writeMessage(w, http.StatusInternalServerError, "internal error")
				return
			}
			if p.RenewedToken != "" {
				jar.SetSession(w, p.RenewedToken, p.Session.ExpiresAtTime())
			}
			ctx := logger.SetUserID(r.Context(), p.User.UserID)
			ctx = context.WithValue(ctx, principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the signed-in caller, or nil.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey).(*auth.Principal)
	return p
}
