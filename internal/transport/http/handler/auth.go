package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-auth-gate/internal/application/auth"
	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/transport/http/cookie"
	"github.com/go-auth-gate/internal/transport/http/middleware"
)

// AuthService is the auth gate as seen by the HTTP layer.
type AuthService interface {
	Signup(ctx context.Context, ip string, req domain.SignupRequest) (auth.Outcome, error)
	Login(ctx context.Context, ip string, req domain.LoginRequest) (auth.Outcome, error)
	LoginWithGoogle(ctx context.Context, ip, idToken string) (auth.Outcome, error)
	Logout(ctx context.Context, p *auth.Principal) (auth.Outcome, error)

	VerifyEmail(ctx context.Context, p *auth.Principal, requestID, code string) (auth.Outcome, error)
	ResendEmailCode(ctx context.Context, p *auth.Principal, requestID string) (auth.Outcome, error)
	RequestAccountDeletion(ctx context.Context, p *auth.Principal) (auth.Outcome, error)
	ConfirmAccountDeletion(ctx context.Context, p *auth.Principal, requestID, code string) (auth.Outcome, error)
	RequestPhoneVerification(ctx context.Context, p *auth.Principal, req domain.PhoneRequest) (auth.Outcome, error)
	VerifyPhone(ctx context.Context, p *auth.Principal, requestID, code string) (auth.Outcome, error)

	BeginTwoFactorSetup(ctx context.Context, p *auth.Principal) (auth.Outcome, error)
	FinishTwoFactorSetup(ctx context.Context, p *auth.Principal, secret, code string) (auth.Outcome, error)
	VerifyTwoFactor(ctx context.Context, p *auth.Principal, code string) (auth.Outcome, error)
	ResetTwoFactor(ctx context.Context, p *auth.Principal, recoveryCode string) (auth.Outcome, error)
}

// AuthHandler handles the /auth endpoints.
type AuthHandler struct {
	svc AuthService
	jar *cookie.Jar
}

func NewAuthHandler(svc AuthService, jar *cookie.Jar) *AuthHandler {
	return &AuthHandler{svc: svc, jar: jar}
}

type codeRequest struct {
	Code string `json:"code"`
}

// respond applies the cookies an outcome asks for and writes its result.
func (h *AuthHandler) respond(w http.ResponseWriter, r *http.Request, out auth.Outcome, err error) {
	if err != nil {
		slog.ErrorContext(r.Context(), "auth action failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if out.Session != nil {
		h.jar.SetSession(w, out.Session.Token, out.Session.Session.ExpiresAtTime())
	}
	if out.ClearSession {
		h.jar.ClearSession(w)
	}
	if out.Verification != nil {
		h.jar.SetVerification(w, out.Verification)
	}
	if out.ClearVerification != "" {
		h.jar.ClearVerification(w, out.ClearVerification)
	}
	env := ResultEnvelope{
		Message:      out.Message,
		Fields:       out.Fields,
		Redirect:     out.Redirect,
		RecoveryCode: out.RecoveryCode,
	}
	if out.TOTPKey != nil {
		env.TOTPKey, env.TOTPURI = out.TOTPKey.Secret, out.TOTPKey.URI
	}
	writeJSON(w, statusFor(out.Kind), env)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.Signup(r.Context(), middleware.ClientIP(r.Context()), req)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.Login(r.Context(), middleware.ClientIP(r.Context()), req)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.LoginWithGoogle(r.Context(), middleware.ClientIP(r.Context()), req.IDToken)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Logout(r.Context(), middleware.PrincipalFromContext(r.Context()))
	h.respond(w, r, out, err)
}

// Session describes the caller's current session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, domain.MsgNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{
		User:              toSafeUser(p.User),
		TwoFactorVerified: p.Session.TwoFactorVerified,
		ExpiresAt:         p.Session.ExpiresAtTime(),
	})
}
