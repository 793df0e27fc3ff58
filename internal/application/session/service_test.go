package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-auth-gate/internal/domain"
	jwtinfra "github.com/go-auth-gate/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) SetExpiry(ctx context.Context, sessionID string, expiresAt int64) error {
	return m.Called(ctx, sessionID, expiresAt).Error(0)
}
func (m *mockStore) SetTwoFactorVerified(ctx context.Context, sessionID string, verified bool) error {
	return m.Called(ctx, sessionID, verified).Error(0)
}
func (m *mockStore) Delete(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}
func (m *mockStore) DeleteByUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockStore) ClearTwoFactorByUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(sessionID, userID string, expiresAt time.Time) (string, error) {
	args := m.Called(sessionID, userID, expiresAt)
	return args.String(0), args.Error(1)
}
func (m *mockSigner) Verify(token string) (*jwtinfra.Claims, error) {
	args := m.Called(token)
	if c, _ := args.Get(0).(*jwtinfra.Claims); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *mockStore, signer *mockSigner, now time.Time) *Service {
	return NewService(store, signer, 30*24*time.Hour, 15*24*time.Hour, WithClock(func() time.Time { return now }))
}

// --- tests ---

func TestCreate(t *testing.T) {
	store, signer := &mockStore{}, &mockSigner{}
	store.On("Put", mock.Anything, mock.MatchedBy(func(s *domain.Session) bool {
		return s.UserID == "u1" && !s.TwoFactorVerified && s.ExpiresAt == t0.Add(30*24*time.Hour).Unix() && s.SessionID != ""
	})).Return(nil)
	signer.On("Sign", mock.Anything, "u1", t0.Add(30*24*time.Hour)).Return("tok", nil)

	out, err := newTestService(store, signer, t0).Create(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, "tok", out.Token)
	assert.Equal(t, "u1", out.Session.UserID)
}

func TestValidate_BadToken(t *testing.T) {
	signer := &mockSigner{}
	signer.On("Verify", "junk").Return(nil, errors.New("malformed"))

	_, err := newTestService(&mockStore{}, signer, t0).Validate(context.Background(), "junk")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestValidate_Revoked(t *testing.T) {
	store, signer := &mockStore{}, &mockSigner{}
	signer.On("Verify", "tok").Return(&jwtinfra.Claims{SessionID: "s1", UserID: "u1"}, nil)
	store.On("Get", mock.Anything, "s1").Return(nil, domain.ErrNotFound)

	_, err := newTestService(store, signer, t0).Validate(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestValidate_ExpiredIsDeleted(t *testing.T) {
	store, signer := &mockStore{}, &mockSigner{}
	signer.On("Verify", "tok").Return(&jwtinfra.Claims{SessionID: "s1", UserID: "u1"}, nil)
	store.On("Get", mock.Anything, "s1").Return(&domain.Session{SessionID: "s1", UserID: "u1", ExpiresAt: t0.Unix()}, nil)
	store.On("Delete", mock.Anything, "s1").Return(nil)

	_, err := newTestService(store, signer, t0).Validate(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	store.AssertCalled(t, "Delete", mock.Anything, "s1")
}

func TestValidate_FreshSessionNotRenewed(t *testing.T) {
	store, signer := &mockStore{}, &mockSigner{}
	signer.On("Verify", "tok").Return(&jwtinfra.Claims{SessionID: "s1", UserID: "u1"}, nil)
	store.On("Get", mock.Anything, "s1").Return(&domain.Session{SessionID: "s1", UserID: "u1", ExpiresAt: t0.Add(20 * 24 * time.Hour).Unix()}, nil)

	out, err := newTestService(store, signer, t0).Validate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, out.Token)
	store.AssertNotCalled(t, "SetExpiry", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidate_RenewsNearExpiry(t *testing.T) {
	store, signer := &mockStore{}, &mockSigner{}
	newExpiry := t0.Add(30 * 24 * time.Hour)
	signer.On("Verify", "tok").Return(&jwtinfra.Claims{SessionID: "s1", UserID: "u1"}, nil)
	store.On("Get", mock.Anything, "s1").Return(&domain.Session{SessionID: "s1", UserID: "u1", ExpiresAt: t0.Add(24 * time.Hour).Unix()}, nil)
	store.On("SetExpiry", mock.Anything, "s1", newExpiry.Unix()).Return(nil)
	signer.On("Sign", "s1", "u1", newExpiry).Return("renewed", nil)

	out, err := newTestService(store, signer, t0).Validate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "renewed", out.Token)
	assert.Equal(t, newExpiry.Unix(), out.Session.ExpiresAt)
}

func TestValidate_OwnerMismatch(t *testing.T) {
	store, signer := &mockStore{}, &mockSigner{}
	signer.On("Verify", "tok").Return(&jwtinfra.Claims{SessionID: "s1", UserID: "attacker"}, nil)
	store.On("Get", mock.Anything, "s1").Return(&domain.Session{SessionID: "s1", UserID: "u1", ExpiresAt: t0.Add(time.Hour).Unix()}, nil)

	_, err := newTestService(store, signer, t0).Validate(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestInvalidateAllForUser(t *testing.T) {
	store := &mockStore{}
	store.On("DeleteByUser", mock.Anything, "u1").Return(nil)

	assert.NoError(t, newTestService(store, &mockSigner{}, t0).InvalidateAllForUser(context.Background(), "u1"))
	store.AssertExpectations(t)
}
