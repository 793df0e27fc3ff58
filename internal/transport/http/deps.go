package http

import (
	"context"

	"github.com/go-auth-gate/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// SessionRepository is the minimal interface the router requires from a session store.
type SessionRepository interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	SetExpiry(ctx context.Context, sessionID string, expiresAt int64) error
	SetTwoFactorVerified(ctx context.Context, sessionID string, verified bool) error
	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
	ClearTwoFactorByUser(ctx context.Context, userID string) error
}

// VerificationRepository is the minimal interface the router requires from a verification store.
type VerificationRepository interface {
	Put(ctx context.Context, v *domain.VerificationRequest) error
	GetByUser(ctx context.Context, userID string, ch domain.Channel) (*domain.VerificationRequest, error)
	GetByID(ctx context.Context, requestID string) (*domain.VerificationRequest, error)
	Delete(ctx context.Context, userID string, ch domain.Channel) error
	DeleteIfCurrent(ctx context.Context, v *domain.VerificationRequest) error
}
