package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-auth-gate/internal/application/notify"
	"github.com/go-auth-gate/internal/application/session"
	"github.com/go-auth-gate/internal/application/twofactor"
	"github.com/go-auth-gate/internal/application/verification"
	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/infrastructure/google"
	"github.com/go-auth-gate/internal/pkg/codehash"
	"github.com/go-auth-gate/internal/ratelimit"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) userResult(args mock.Arguments) (*domain.User, error) {
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	return m.userResult(m.Called(ctx, userID))
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.userResult(m.Called(ctx, email))
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.userResult(m.Called(ctx, username))
}
func (m *mockUserStore) GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error) {
	return m.userResult(m.Called(ctx, sub))
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Create(ctx context.Context, userID string, twoFactorVerified bool) (*session.Issued, error) {
	args := m.Called(ctx, userID, twoFactorVerified)
	if fn, ok := args.Get(0).(func(context.Context, string, bool) *session.Issued); ok {
		return fn(ctx, userID, twoFactorVerified), args.Error(1)
	}
	if s, _ := args.Get(0).(*session.Issued); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessions) Validate(ctx context.Context, token string) (*session.Issued, error) {
	args := m.Called(ctx, token)
	if s, _ := args.Get(0).(*session.Issued); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessions) SetTwoFactorVerified(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}
func (m *mockSessions) ClearTwoFactorForUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockSessions) Invalidate(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}
func (m *mockSessions) InvalidateAllForUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockGoogle struct{ mock.Mock }

func (m *mockGoogle) Verify(ctx context.Context, token string) (*google.Payload, error) {
	args := m.Called(ctx, token)
	if p, _ := args.Get(0).(*google.Payload); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- fakes ---

type sent struct {
	to, template, code string
}

// fakeNotifier records what would have been delivered so tests can read the code.
type fakeNotifier struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeNotifier) SendEmail(_ context.Context, to, template string, data notify.Data) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{to: to, template: template, code: data.Code})
	return nil
}

func (f *fakeNotifier) SendText(_ context.Context, to, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{to: to, template: "text", code: code})
	return nil
}

func (f *fakeNotifier) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.msgs, "nothing was sent")
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type memVerifications struct {
	mu   sync.Mutex
	rows map[string]domain.VerificationRequest
}

func (r *memVerifications) key(userID string, ch domain.Channel) string { return userID + "#" + string(ch) }

func (r *memVerifications) Put(_ context.Context, v *domain.VerificationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[r.key(v.UserID, v.Channel)] = *v
	return nil
}

func (r *memVerifications) GetByUser(_ context.Context, userID string, ch domain.Channel) (*domain.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.rows[r.key(userID, ch)]; ok {
		return &v, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memVerifications) GetByID(_ context.Context, requestID string) (*domain.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.rows {
		if v.RequestID == requestID {
			v := v
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memVerifications) Delete(_ context.Context, userID string, ch domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, r.key(userID, ch))
	return nil
}

func (r *memVerifications) DeleteIfCurrent(_ context.Context, v *domain.VerificationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[r.key(v.UserID, v.Channel)]
	if !ok || cur.RequestID != v.RequestID {
		return domain.ErrConflict
	}
	delete(r.rows, r.key(v.UserID, v.Channel))
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// --- harness ---

type harness struct {
	svc      *Service
	users    *mockUserStore
	sessions *mockSessions
	google   *mockGoogle
	notifier *fakeNotifier
	verifs   *verification.Store
	totp     *twofactor.Manager
	clock    *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	opt := ratelimit.WithClock(c.Now)
	secs := func(ss ...int) []time.Duration {
		out := make([]time.Duration, len(ss))
		for i, s := range ss {
			out[i] = time.Duration(s) * time.Second
		}
		return out
	}
	hasher := codehash.New("test-secret")
	h := &harness{
		users:    &mockUserStore{},
		sessions: &mockSessions{},
		google:   &mockGoogle{},
		notifier: &fakeNotifier{},
		verifs: verification.NewStore(&memVerifications{rows: map[string]domain.VerificationRequest{}},
			hasher, 10*time.Minute, 8, verification.WithClock(c.Now)),
		totp:  twofactor.NewManager("auth-gate", hasher, twofactor.WithClock(c.Now)),
		clock: c,
	}
	h.svc = NewService(Deps{
		Users:         h.users,
		Sessions:      h.sessions,
		Verifications: h.verifs,
		Notifier:      h.notifier,
		TwoFactor:     h.totp,
		Google:        h.google,
		Limits: Limiters{
			LoginIP:       ratelimit.NewTokenBucket(20, time.Second, opt),
			SignupIP:      ratelimit.NewTokenBucket(3, 10*time.Second, opt),
			LoginThrottle: ratelimit.NewThrottler(secs(1, 2, 4, 8, 16, 30, 60, 180, 300), opt),
			VerifyCode:    ratelimit.NewExpiringTokenBucket(5, 30*time.Minute, opt),
			SendCode:      ratelimit.NewExpiringTokenBucket(3, 10*time.Minute, opt),
			TOTPUpdate:    ratelimit.NewTokenBucket(3, 10*time.Minute, opt),
			TOTPVerify:    ratelimit.NewExpiringTokenBucket(5, 30*time.Minute, opt),
			RecoveryCode:  ratelimit.NewExpiringTokenBucket(3, time.Hour, opt),
		},
		BcryptCost: bcrypt.MinCost,
		Now:        c.Now,
	})
	return h
}

func issuedFor(userID string) *session.Issued {
	return &session.Issued{
		Session: &domain.Session{SessionID: "s-" + userID, UserID: userID},
		Token:   "token-" + userID,
	}
}

func (h *harness) expectSessionCreate(userID string) {
	h.sessions.On("Create", mock.Anything, userID, false).Return(issuedFor(userID), nil)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(b)
}

func newUser(id string) *domain.User {
	return &domain.User{
		UserID:       id,
		Username:     "user" + id,
		Email:        id + "@example.com",
		AuthProvider: domain.AuthProviderLocal,
	}
}

func principal(u *domain.User, twoFactorVerified bool) *Principal {
	return &Principal{
		Session: &domain.Session{SessionID: "s-" + u.UserID, UserID: u.UserID, TwoFactorVerified: twoFactorVerified},
		User:    u,
	}
}

func notFound(what string) error { return fmt.Errorf("%s: %w", what, domain.ErrNotFound) }

var errBoom = errors.New("dynamo unreachable")

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("live session", func(t *testing.T) {
		h := newHarness(t)
		u := newUser("u1")
		h.sessions.On("Validate", mock.Anything, "tok").Return(&session.Issued{
			Session: &domain.Session{SessionID: "s1", UserID: "u1"},
			Token:   "renewed",
		}, nil)
		h.users.On("Get", mock.Anything, "u1").Return(u, nil)

		p, err := h.svc.Authenticate(ctx, "tok")
		require.NoError(t, err)
		require.Equal(t, "s1", p.Session.SessionID)
		require.Equal(t, u, p.User)
		require.Equal(t, "renewed", p.RenewedToken)
	})

	t.Run("empty token", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Authenticate(ctx, "")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
		h.sessions.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
	})

	t.Run("deleted account", func(t *testing.T) {
		h := newHarness(t)
		u := newUser("u1")
		now := h.clock.Now()
		u.DeletedAt = &now
		h.sessions.On("Validate", mock.Anything, "tok").Return(&session.Issued{
			Session: &domain.Session{SessionID: "s1", UserID: "u1"},
		}, nil)
		h.users.On("Get", mock.Anything, "u1").Return(u, nil)

		_, err := h.svc.Authenticate(ctx, "tok")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("user gone", func(t *testing.T) {
		h := newHarness(t)
		h.sessions.On("Validate", mock.Anything, "tok").Return(&session.Issued{
			Session: &domain.Session{SessionID: "s1", UserID: "u1"},
		}, nil)
		h.users.On("Get", mock.Anything, "u1").Return(nil, notFound("user"))

		_, err := h.svc.Authenticate(ctx, "tok")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("store failure is not unauthorized", func(t *testing.T) {
		h := newHarness(t)
		h.sessions.On("Validate", mock.Anything, "tok").Return(nil, errBoom)

		_, err := h.svc.Authenticate(ctx, "tok")
		require.ErrorIs(t, err, errBoom)
		require.NotErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestNextStep(t *testing.T) {
	sess := &domain.Session{}
	u := newUser("u1")
	require.Equal(t, "/verify-email", nextStep(u, sess))

	u.EmailVerified = true
	require.Equal(t, "/", nextStep(u, sess))

	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	require.Equal(t, "/2fa", nextStep(u, sess))

	sess.TwoFactorVerified = true
	require.Equal(t, "/", nextStep(u, sess))
}
