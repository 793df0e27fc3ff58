// Package auth decides whether an auth action may proceed and applies it.
// Every action runs its guards in a fixed order (per-IP bucket, then the
// per-user throttler or bucket) and stops at the first one that fails.
// Expected refusals are reported as domain.Result values; only
// infrastructure faults are returned as errors.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-gate/internal/application/notify"
	"github.com/go-auth-gate/internal/application/session"
	"github.com/go-auth-gate/internal/application/twofactor"
	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/infrastructure/google"
	"github.com/go-auth-gate/internal/ratelimit"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type SessionManager interface {
	Create(ctx context.Context, userID string, twoFactorVerified bool) (*session.Issued, error)
	Validate(ctx context.Context, token string) (*session.Issued, error)
	SetTwoFactorVerified(ctx context.Context, sessionID string) error
	ClearTwoFactorForUser(ctx context.Context, userID string) error
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
}

type VerificationStore interface {
	Create(ctx context.Context, userID string, ch domain.Channel, destination string) (*domain.VerificationRequest, string, error)
	GetCurrentForRequest(ctx context.Context, requestID string) (*domain.VerificationRequest, error)
	DeleteForUser(ctx context.Context, userID string, ch domain.Channel) error
	Consume(ctx context.Context, v *domain.VerificationRequest) (bool, error)
	Expired(v *domain.VerificationRequest) bool
	Matches(v *domain.VerificationRequest, code string) bool
}

type Notifier interface {
	SendEmail(ctx context.Context, to, template string, data notify.Data) error
	SendText(ctx context.Context, to, code string) error
}

type TwoFactor interface {
	NewKey(accountName string) (*twofactor.Key, error)
	Verify(secret, code string) bool
	NewRecoveryCode(userID string) (code, hash string, err error)
	RecoveryCodeMatches(userID, code, hash string) bool
}

type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Payload, error)
}

// Limiters groups every per-key guard used by the gate.
type Limiters struct {
	LoginIP       ratelimit.Bucket
	SignupIP      ratelimit.Bucket
	LoginThrottle ratelimit.Throttler
	// VerifyCode and SendCode are keyed by channel and user.
	VerifyCode   ratelimit.ResettableBucket
	SendCode     ratelimit.ResettableBucket
	TOTPUpdate   ratelimit.Bucket
	TOTPVerify   ratelimit.ResettableBucket
	RecoveryCode ratelimit.ResettableBucket
}

type Deps struct {
	Users         UserStore
	Sessions      SessionManager
	Verifications VerificationStore
	Notifier      Notifier
	TwoFactor     TwoFactor
	Google        GoogleVerifier
	Limits        Limiters
	BcryptCost    int
	Now           func() time.Time
}

type Service struct {
	users         UserStore
	sessions      SessionManager
	verifications VerificationStore
	notifier      Notifier
	twoFactor     TwoFactor
	google        GoogleVerifier
	limits        Limiters
	bcryptCost    int
	now           func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		users:         d.Users,
		sessions:      d.Sessions,
		verifications: d.Verifications,
		notifier:      d.Notifier,
		twoFactor:     d.TwoFactor,
		google:        d.Google,
		limits:        d.Limits,
		bcryptCost:    d.BcryptCost,
		now:           d.Now,
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Principal is the caller behind a validated session.
type Principal struct {
	Session *domain.Session
	User    *domain.User
	// RenewedToken is set when validation extended the session.
	RenewedToken string
}

// Outcome is a Result plus the client-side state the transport must apply.
type Outcome struct {
	domain.Result
	// Session, when set, is a new session token to hand to the client.
	Session      *session.Issued
	ClearSession bool
	// Verification, when set, is a request whose id goes in the cookie of its channel.
	Verification      *domain.VerificationRequest
	ClearVerification domain.Channel
	RecoveryCode      string
	TOTPKey           *twofactor.Key
}

func outcome(r domain.Result) Outcome { return Outcome{Result: r} }

// Authenticate resolves a session token to its principal.
// It returns domain.ErrUnauthorized for anything that is not a live session
// of an existing account.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("no session: %w", domain.ErrUnauthorized)
	}
	issued, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, issued.Session.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session user gone: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if u.Deleted() {
		return nil, fmt.Errorf("account deleted: %w", domain.ErrUnauthorized)
	}
	return &Principal{Session: issued.Session, User: u, RenewedToken: issued.Token}, nil
}

// allow runs a limiter decision, turning a store failure into an error.
// Callers return the error ahead of any Result they build alongside it.
func allow(ok bool, err error) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}
	return ok, nil
}

func channelKey(ch domain.Channel, userID string) string {
	return string(ch) + ":" + userID
}

// pending2FA reports whether p must pass the second factor before acting.
func pending2FA(p *Principal) bool {
	return p.User.Registered2FA() && !p.Session.TwoFactorVerified
}

// nextStep is where a signed-in user is sent after an action completes.
func nextStep(u *domain.User, sess *domain.Session) string {
	switch {
	case !u.EmailVerified:
		return "/verify-email"
	case u.Registered2FA() && !sess.TwoFactorVerified:
		return "/2fa"
	}
	return "/"
}
