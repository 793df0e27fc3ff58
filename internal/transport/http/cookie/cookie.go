// Package cookie names and writes the cookies the auth gate hands to clients:
// the session token and one opaque verification-request id per channel.
package cookie

import (
	"net/http"
	"time"

	"github.com/go-auth-gate/internal/domain"
)

const Session = "session"

// Name returns the cookie that carries the pending request id of ch.
func Name(ch domain.Channel) string {
	switch ch {
	case domain.ChannelPhone:
		return "phone_verification"
	case domain.ChannelAccountDeletion:
		return "account_deletion"
	default:
		return "email_verification"
	}
}

// Jar writes httpOnly, SameSite=Lax cookies, marked Secure when configured.
type Jar struct {
	Secure bool
}

func NewJar(secure bool) *Jar { return &Jar{Secure: secure} }

func (j *Jar) set(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *Jar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *Jar) SetSession(w http.ResponseWriter, token string, expires time.Time) {
	j.set(w, Session, token, expires)
}

func (j *Jar) ClearSession(w http.ResponseWriter) { j.clear(w, Session) }

// SetVerification stores the id of v in the cookie of its channel, expiring with v.
func (j *Jar) SetVerification(w http.ResponseWriter, v *domain.VerificationRequest) {
	j.set(w, Name(v.Channel), v.RequestID, v.ExpiresAtTime())
}

func (j *Jar) ClearVerification(w http.ResponseWriter, ch domain.Channel) { j.clear(w, Name(ch)) }

// Value returns the named cookie of r, or "" when it is absent.
func Value(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
