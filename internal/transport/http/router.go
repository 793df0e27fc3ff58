package http

import (
	"net/http"

	"github.com/go-auth-gate/internal/application/auth"
	"github.com/go-auth-gate/internal/application/session"
	"github.com/go-auth-gate/internal/application/twofactor"
	"github.com/go-auth-gate/internal/application/verification"
	"github.com/go-auth-gate/internal/config"
	"github.com/go-auth-gate/internal/pkg/codehash"
	"github.com/go-auth-gate/internal/ratelimit"
	"github.com/go-auth-gate/internal/transport/http/cookie"
	"github.com/go-auth-gate/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-gate/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         UserRepository
	SessionRepo      SessionRepository
	VerificationRepo VerificationRepository
	Notifier         auth.Notifier
	Signer           session.Signer
	Google           auth.GoogleVerifier
	Limits           auth.Limiters
	GlobalLimiter    *appmiddleware.GlobalLimiter
	Proxies          *appmiddleware.TrustedProxies
	HealthChecks     map[string]handler.Check
}

// NewLimiters builds every per-key guard of the auth gate on f's backend.
func NewLimiters(f *ratelimit.Factory, l config.LimitsConfig) auth.Limiters {
	return auth.Limiters{
		LoginIP:       f.TokenBucket("login_ip", l.LoginIPCapacity, l.LoginIPRefill),
		SignupIP:      f.TokenBucket("signup_ip", l.SignupIPCapacity, l.SignupIPRefill),
		LoginThrottle: f.Throttler("login", l.LoginThrottleSchedule()),
		VerifyCode:    f.ExpiringBucket("verify_code", l.VerifyCapacity, l.VerifyWindow),
		SendCode:      f.ExpiringBucket("send_code", l.SendCapacity, l.SendWindow),
		TOTPUpdate:    f.TokenBucket("totp_update", l.TOTPUpdateCapacity, l.TOTPUpdateRefill),
		TOTPVerify:    f.ExpiringBucket("totp_verify", l.TOTPVerifyCapacity, l.TOTPVerifyWindow),
		RecoveryCode:  f.ExpiringBucket("recovery_code", l.RecoveryCodeCapacity, l.RecoveryCodeWindow),
	}
}

// NewAuthService wires the auth gate from its stores and collaborators.
func NewAuthService(cfg *config.Config, deps *Deps) *auth.Service {
	hasher := codehash.New(cfg.Verification.Secret)
	return auth.NewService(auth.Deps{
		Users:         deps.UserRepo,
		Sessions:      session.NewService(deps.SessionRepo, deps.Signer, cfg.Session.Lifetime, cfg.Session.RenewWithin),
		Verifications: verification.NewStore(deps.VerificationRepo, hasher, cfg.Verification.TTL, cfg.Verification.CodeLength),
		Notifier:      deps.Notifier,
		TwoFactor:     twofactor.NewManager(cfg.TOTP.Issuer, hasher),
		Google:        deps.Google,
		Limits:        deps.Limits,
	})
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestContext(deps.Proxies))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if deps.GlobalLimiter != nil {
		r.Use(deps.GlobalLimiter.Limit)
	}

	jar := cookie.NewJar(cfg.Session.CookieSecure)
	authSvc := NewAuthService(cfg, deps)

	healthH := handler.NewHealthHandler(deps.HealthChecks)
	authH := handler.NewAuthHandler(authSvc, jar)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.Use(appmiddleware.Auth(authSvc, jar))

			r.Post("/signup", authH.Signup)
			r.Post("/login", authH.Login)
			r.Post("/google", authH.Google)
			r.Post("/logout", authH.Logout)
			r.Get("/session", authH.Session)

			r.Post("/email/verify", authH.VerifyEmail)
			r.Post("/email/resend", authH.ResendEmailCode)
			r.Post("/phone", authH.RequestPhoneVerification)
			r.Post("/phone/verify", authH.VerifyPhone)
			r.Post("/account/delete", authH.RequestAccountDeletion)
			r.Post("/account/delete/confirm", authH.ConfirmAccountDeletion)

			r.Get("/2fa/setup", authH.BeginTwoFactorSetup)
			r.Post("/2fa/setup", authH.FinishTwoFactorSetup)
			r.Post("/2fa/verify", authH.VerifyTwoFactor)
			r.Post("/2fa/reset", authH.ResetTwoFactor)
		})
	})

	return r
}
