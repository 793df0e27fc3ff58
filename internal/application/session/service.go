package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-gate/internal/domain"
	jwtinfra "github.com/go-auth-gate/internal/infrastructure/jwt"
	"github.com/go-auth-gate/internal/pkg/id"
)

// Store is the persistence the session service needs.
type Store interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	SetExpiry(ctx context.Context, sessionID string, expiresAt int64) error
	SetTwoFactorVerified(ctx context.Context, sessionID string, verified bool) error
	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
	ClearTwoFactorByUser(ctx context.Context, userID string) error
}

// Signer issues and parses the client-held session token.
type Signer interface {
	Sign(sessionID, userID string, expiresAt time.Time) (string, error)
	Verify(token string) (*jwtinfra.Claims, error)
}

// Issued is a freshly created or renewed session with its client token.
type Issued struct {
	Session *domain.Session
	Token   string
}

type Service struct {
	store       Store
	signer      Signer
	lifetime    time.Duration
	renewWithin time.Duration
	now         func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, signer Signer, lifetime, renewWithin time.Duration, opts ...Option) *Service {
	s := &Service{store: store, signer: signer, lifetime: lifetime, renewWithin: renewWithin, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, userID string, twoFactorVerified bool) (*Issued, error) {
	now := s.now().UTC()
	sess := &domain.Session{
		SessionID:         id.NewAt(now),
		UserID:            userID,
		TwoFactorVerified: twoFactorVerified,
		ExpiresAt:         now.Add(s.lifetime).Unix(),
		CreatedAt:         now,
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	tok, err := s.signer.Sign(sess.SessionID, userID, sess.ExpiresAtTime())
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Issued{Session: sess, Token: tok}, nil
}

// Validate resolves token to its live session. A session in the second half
// of its lifetime is extended, in which case the returned Token is non-empty
// and must replace the client's copy.
// Invalid, unknown and expired sessions yield domain.ErrUnauthorized.
func (s *Service) Validate(ctx context.Context, token string) (*Issued, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("session token: %w", domain.ErrUnauthorized)
	}
	sess, err := s.store.Get(ctx, claims.SessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session revoked: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UserID {
		return nil, fmt.Errorf("session owner mismatch: %w", domain.ErrUnauthorized)
	}
	now := s.now()
	if sess.Expired(now) {
		if err := s.store.Delete(ctx, sess.SessionID); err != nil {
			slog.WarnContext(ctx, "failed to delete expired session", "session_id", sess.SessionID, "err", err)
		}
		return nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	out := &Issued{Session: sess}
	if sess.ExpiresAtTime().Sub(now) < s.renewWithin {
		expiresAt := now.Add(s.lifetime).Unix()
		if err := s.store.SetExpiry(ctx, sess.SessionID, expiresAt); err != nil {
			return nil, fmt.Errorf("renew session: %w", err)
		}
		sess.ExpiresAt = expiresAt
		if out.Token, err = s.signer.Sign(sess.SessionID, sess.UserID, sess.ExpiresAtTime()); err != nil {
			return nil, fmt.Errorf("sign session: %w", err)
		}
	}
	return out, nil
}

func (s *Service) SetTwoFactorVerified(ctx context.Context, sessionID string) error {
	return s.store.SetTwoFactorVerified(ctx, sessionID, true)
}

func (s *Service) ClearTwoFactorForUser(ctx context.Context, userID string) error {
	return s.store.ClearTwoFactorByUser(ctx, userID)
}

func (s *Service) Invalidate(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

func (s *Service) InvalidateAllForUser(ctx context.Context, userID string) error {
	return s.store.DeleteByUser(ctx, userID)
}
