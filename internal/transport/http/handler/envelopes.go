package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-auth-gate/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
}

// ResultEnvelope carries the outcome of an auth action.
type ResultEnvelope struct {
	Message      string            `json:"message,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	Redirect     string            `json:"redirect,omitempty"`
	RecoveryCode string            `json:"recovery_code,omitempty"`
	TOTPKey      string            `json:"totp_key,omitempty"`
	TOTPURI      string            `json:"totp_uri,omitempty"`
}

// SafeUser omits every secret and internal field of domain.User.
type SafeUser struct {
	UserID        string  `json:"user_id"`
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"email_verified"`
	Phone         *string `json:"phone,omitempty"`
	PhoneVerified bool    `json:"phone_verified"`
	Registered2FA bool    `json:"registered_2fa"`
	AuthProvider  string  `json:"auth_provider"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	User              *SafeUser `json:"user"`
	TwoFactorVerified bool      `json:"two_factor_verified"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func toSafeUser(u *domain.User) *SafeUser {
	return &SafeUser{
		UserID:        u.UserID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Phone:         u.Phone,
		PhoneVerified: u.PhoneVerified,
		Registered2FA: u.Registered2FA(),
		AuthProvider:  u.AuthProvider,
	}
}

// statusFor maps a result kind to its HTTP status.
func statusFor(k domain.ResultKind) int {
	switch k {
	case domain.KindOK:
		return http.StatusOK
	case domain.KindValidationError, domain.KindCodeIncorrect:
		return http.StatusBadRequest
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindNotAuthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindCodeExpired:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Message: msg})
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
