package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/pkg/codehash"
	"github.com/go-auth-gate/internal/pkg/token"
)

// Repo persists verification requests keyed by (user, channel).
type Repo interface {
	Put(ctx context.Context, v *domain.VerificationRequest) error
	GetByUser(ctx context.Context, userID string, ch domain.Channel) (*domain.VerificationRequest, error)
	GetByID(ctx context.Context, requestID string) (*domain.VerificationRequest, error)
	Delete(ctx context.Context, userID string, ch domain.Channel) error
	DeleteIfCurrent(ctx context.Context, v *domain.VerificationRequest) error
}

// Store issues and checks one-time code challenges. Each user holds at most
// one live request per channel; issuing a new one replaces the old.
type Store struct {
	repo    Repo
	hasher  *codehash.Hasher
	ttl     time.Duration
	codeLen int
	now     func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo Repo, hasher *codehash.Hasher, ttl time.Duration, codeLen int, opts ...Option) *Store {
	s := &Store{repo: repo, hasher: hasher, ttl: ttl, codeLen: codeLen, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create replaces any live request for (userID, ch) with a new one and
// returns it with the plaintext code, which is not stored.
func (s *Store) Create(ctx context.Context, userID string, ch domain.Channel, destination string) (*domain.VerificationRequest, string, error) {
	reqID, err := token.NewOpaqueID()
	if err != nil {
		return nil, "", err
	}
	code, err := token.NewCode(s.codeLen)
	if err != nil {
		return nil, "", err
	}
	v := &domain.VerificationRequest{
		RequestID:   reqID,
		UserID:      userID,
		Channel:     ch,
		Destination: destination,
		CodeHash:    s.hasher.Sum(reqID, code),
		ExpiresAt:   expiryAt(s.now().Add(s.ttl)),
	}
	if err := s.repo.Put(ctx, v); err != nil {
		return nil, "", fmt.Errorf("store verification request: %w", err)
	}
	return v, code, nil
}

// GetCurrentForRequest looks up the request named by the client's cookie.
// It returns nil when the cookie is empty or the request is gone or was
// replaced. Expiry is left to the caller, which regenerates instead of failing.
func (s *Store) GetCurrentForRequest(ctx context.Context, requestID string) (*domain.VerificationRequest, error) {
	if requestID == "" {
		return nil, nil
	}
	v, err := s.repo.GetByID(ctx, requestID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetForUser returns the live request of userID on ch, or nil.
func (s *Store) GetForUser(ctx context.Context, userID string, ch domain.Channel) (*domain.VerificationRequest, error) {
	v, err := s.repo.GetByUser(ctx, userID, ch)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Consume deletes v if it is still the live request of its channel. It
// reports false when v was already redeemed or replaced by a newer request.
func (s *Store) Consume(ctx context.Context, v *domain.VerificationRequest) (bool, error) {
	err := s.repo.DeleteIfCurrent(ctx, v)
	if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume verification request: %w", err)
	}
	return true, nil
}

func (s *Store) DeleteForUser(ctx context.Context, userID string, ch domain.Channel) error {
	return s.repo.Delete(ctx, userID, ch)
}

// Expired reports whether v can no longer be redeemed.
func (s *Store) Expired(v *domain.VerificationRequest) bool {
	return v.Expired(s.now())
}

// Matches compares code against v in constant time.
func (s *Store) Matches(v *domain.VerificationRequest, code string) bool {
	return s.hasher.Equal(v.RequestID, code, v.CodeHash)
}

// expiryAt rounds t up to a whole second so the stored deadline never
// falls before the configured TTL has fully run.
func expiryAt(t time.Time) int64 {
	if r := t.Truncate(time.Second); !r.Equal(t) {
		return r.Add(time.Second).Unix()
	}
	return t.Unix()
}
