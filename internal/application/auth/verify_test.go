package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-auth-gate/internal/application/notify"
	"github.com/go-auth-gate/internal/application/verification"
	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/pkg/codehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func emailVerified(m map[string]interface{}) bool {
	return m["email_verified"] == true
}

func TestVerifyEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := principal(newUser("u1"), false)
	v, code, err := h.verifs.Create(ctx, "u1", domain.ChannelEmail, "u1@example.com")
	require.NoError(t, err)
	h.users.On("Update", mock.Anything, "u1", mock.MatchedBy(emailVerified)).Return(nil)

	out, err := h.svc.VerifyEmail(ctx, p, v.RequestID, code)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, "/", out.Redirect)
	assert.Equal(t, domain.ChannelEmail, out.ClearVerification)
	h.users.AssertExpectations(t)

	// The request is gone once redeemed.
	out, err = h.svc.VerifyEmail(ctx, p, v.RequestID, code)
	require.NoError(t, err)
	assert.Equal(t, domain.KindNotAuthenticated, out.Kind)
}

// staleLookup keeps resolving one request id after it was replaced, as a
// lookup racing a resend would.
type staleLookup struct {
	*memVerifications
	stale *domain.VerificationRequest
}

func (r *staleLookup) GetByID(ctx context.Context, requestID string) (*domain.VerificationRequest, error) {
	if r.stale != nil && r.stale.RequestID == requestID {
		v := *r.stale
		return &v, nil
	}
	return r.memVerifications.GetByID(ctx, requestID)
}

func TestVerifyEmail_ReplacedRequestLeavesSuccessor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	repo := &staleLookup{memVerifications: &memVerifications{rows: map[string]domain.VerificationRequest{}}}
	store := verification.NewStore(repo, codehash.New("test-secret"), 10*time.Minute, 8, verification.WithClock(h.clock.Now))
	h.svc.verifications = store
	p := principal(newUser("u1"), false)

	first, code, err := store.Create(ctx, "u1", domain.ChannelEmail, "u1@example.com")
	require.NoError(t, err)
	repo.stale = first
	second, _, err := store.Create(ctx, "u1", domain.ChannelEmail, "u1@example.com")
	require.NoError(t, err)

	out, err := h.svc.VerifyEmail(ctx, p, first.RequestID, code)
	require.NoError(t, err)
	assert.Equal(t, domain.KindNotAuthenticated, out.Kind)
	h.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)

	live, err := store.GetForUser(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, second.RequestID, live.RequestID)
}

func TestVerifyEmail_AttemptsExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := principal(newUser("u1"), false)
	v, code, err := h.verifs.Create(ctx, "u1", domain.ChannelEmail, "u1@example.com")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		out, err := h.svc.VerifyEmail(ctx, p, v.RequestID, "WRONGCOD")
		require.NoError(t, err)
		require.Equal(t, domain.KindCodeIncorrect, out.Kind)
		require.Equal(t, "Incorrect code.", out.Message)
	}

	out, err := h.svc.VerifyEmail(ctx, p, v.RequestID, code)
	require.NoError(t, err)
	assert.Equal(t, domain.KindRateLimited, out.Kind)
	assert.Equal(t, "Too many requests", out.Message)
	h.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)

	// The window restores every token at once.
	h.clock.Advance(30 * time.Minute)
	h.users.On("Update", mock.Anything, "u1", mock.MatchedBy(emailVerified)).Return(nil)
	_, err = h.svc.VerifyEmail(ctx, p, v.RequestID, code)
	require.NoError(t, err)
}

func TestVerifyEmail_ExpiredCodeIsReissued(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := principal(newUser("u1"), false)
	v, code, err := h.verifs.Create(ctx, "u1", domain.ChannelEmail, "u1@example.com")
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	out, err := h.svc.VerifyEmail(ctx, p, v.RequestID, code)
	require.NoError(t, err)
	assert.Equal(t, domain.KindCodeExpired, out.Kind)
	assert.Equal(t, MsgCodeExpiredEmail, out.Message)
	require.NotNil(t, out.Verification)
	assert.NotEqual(t, v.RequestID, out.Verification.RequestID)
	assert.Equal(t, "u1@example.com", out.Verification.Destination)
	assert.Equal(t, h.clock.Now().Add(10*time.Minute).Unix(), out.Verification.ExpiresAt)

	sentMsg := h.notifier.last(t)
	assert.Equal(t, "u1@example.com", sentMsg.to)
	assert.Equal(t, notify.TemplateEmailVerification, sentMsg.template)

	// The old request was superseded.
	out2, err := h.svc.VerifyEmail(ctx, p, v.RequestID, code)
	require.NoError(t, err)
	assert.Equal(t, domain.KindNotAuthenticated, out2.Kind)

	// Reissuing did not spend the send bucket.
	for i := 0; i < 3; i++ {
		res, err := h.svc.ResendEmailCode(ctx, p, "")
		require.NoError(t, err)
		require.True(t, res.OK(), "resend %d", i)
	}

	last := h.notifier.last(t)
	cur, err := h.verifs.GetForUser(ctx, "u1", domain.ChannelEmail)
	require.NoError(t, err)
	h.users.On("Update", mock.Anything, "u1", mock.MatchedBy(emailVerified)).Return(nil)
	out, err = h.svc.VerifyEmail(ctx, p, cur.RequestID, last.code)
	require.NoError(t, err)
	assert.True(t, out.OK())
}

func TestVerifyEmail_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.svc.VerifyEmail(ctx, nil, "rid", "CODE")
		require.NoError(t, err)
		assert.Equal(t, domain.KindNotAuthenticated, out.Kind)
	})

	t.Run("second factor pending", func(t *testing.T) {
		h := newHarness(t)
		u := newUser("u1")
		u.TOTPSecret = "JBSWY3DPEHPK3PXP"
		out, err := h.svc.VerifyEmail(ctx, principal(u, false), "rid", "CODE")
		require.NoError(t, err)
		assert.Equal(t, domain.KindForbidden, out.Kind)
	})

	t.Run("request of another user", func(t *testing.T) {
		h := newHarness(t)
		v, code, err := h.verifs.Create(ctx, "u2", domain.ChannelEmail, "u2@example.com")
		require.NoError(t, err)
		out, err := h.svc.VerifyEmail(ctx, principal(newUser("u1"), false), v.RequestID, code)
		require.NoError(t, err)
		assert.Equal(t, domain.KindNotAuthenticated, out.Kind)
	})

	t.Run("empty code", func(t *testing.T) {
		h := newHarness(t)
		v, _, err := h.verifs.Create(ctx, "u1", domain.ChannelEmail, "u1@example.com")
		require.NoError(t, err)
		out, err := h.svc.VerifyEmail(ctx, principal(newUser("u1"), false), v.RequestID, " ")
		require.NoError(t, err)
		assert.Equal(t, domain.KindValidationError, out.Kind)
		assert.Equal(t, "Enter your code", out.Fields["code"])
	})
}

func TestResendEmailCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := principal(newUser("u1"), false)

	var last string
	for i := 0; i < 3; i++ {
		out, err := h.svc.ResendEmailCode(ctx, p, last)
		require.NoError(t, err)
		require.True(t, out.OK())
		assert.Equal(t, MsgCodeResent, out.Message)
		last = out.Verification.RequestID
	}
	out, err := h.svc.ResendEmailCode(ctx, p, last)
	require.NoError(t, err)
	assert.Equal(t, domain.KindRateLimited, out.Kind)
	assert.Equal(t, 3, h.notifier.count())

	verified := newUser("u2")
	verified.EmailVerified = true
	out, err = h.svc.ResendEmailCode(ctx, principal(verified, false), "")
	require.NoError(t, err)
	assert.Equal(t, domain.KindForbidden, out.Kind)
}

func TestAccountDeletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := newUser("u1")
	u.EmailVerified = true
	u.PasswordHash = "hash"
	p := principal(u, false)

	out, err := h.svc.RequestAccountDeletion(ctx, p)
	require.NoError(t, err)
	require.True(t, out.OK())
	v := out.Verification
	require.NotNil(t, v)
	assert.Equal(t, domain.ChannelAccountDeletion, v.Channel)
	assert.Equal(t, h.clock.Now().Unix()+600, v.ExpiresAt)

	msg := h.notifier.last(t)
	assert.Equal(t, notify.TemplateAccountDeletion, msg.template)
	assert.Equal(t, "u1@example.com", msg.to)
	require.Len(t, msg.code, 8)

	out, err = h.svc.ConfirmAccountDeletion(ctx, p, v.RequestID, "AAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.KindCodeIncorrect, out.Kind)
	assert.Equal(t, "Incorrect code.", out.Message)
	h.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	h.sessions.AssertNotCalled(t, "InvalidateAllForUser", mock.Anything, mock.Anything)

	var stored *domain.User
	h.users.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.User) }).
		Return(nil)
	h.sessions.On("InvalidateAllForUser", mock.Anything, "u1").Return(nil)

	out, err = h.svc.ConfirmAccountDeletion(ctx, p, v.RequestID, msg.code)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.True(t, out.ClearSession)
	assert.Equal(t, MsgAccountDeleted, out.Message)

	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)
	assert.True(t, stored.Deleted())
	assert.NotContains(t, stored.Email, "u1@example.com")
	assert.Empty(t, stored.PasswordHash)
	assert.False(t, stored.EmailVerified)
	h.sessions.AssertExpectations(t)

	left, err := h.verifs.GetForUser(ctx, "u1", domain.ChannelAccountDeletion)
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestPhoneVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := newUser("u1")
	u.EmailVerified = true
	p := principal(u, false)

	out, err := h.svc.RequestPhoneVerification(ctx, p, domain.PhoneRequest{Phone: "0412"})
	require.NoError(t, err)
	assert.Equal(t, domain.KindValidationError, out.Kind)

	out, err = h.svc.RequestPhoneVerification(ctx, p, domain.PhoneRequest{Phone: "+61412345678"})
	require.NoError(t, err)
	require.True(t, out.OK())
	msg := h.notifier.last(t)
	assert.Equal(t, "text", msg.template)
	assert.Equal(t, "+61412345678", msg.to)

	h.users.On("Update", mock.Anything, "u1", map[string]interface{}{
		"phone":          "+61412345678",
		"phone_verified": true,
	}).Return(nil)
	out, err = h.svc.VerifyPhone(ctx, p, out.Verification.RequestID, msg.code)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, domain.ChannelPhone, out.ClearVerification)
	h.users.AssertExpectations(t)

	unverified := principal(newUser("u2"), false)
	out, err = h.svc.RequestPhoneVerification(ctx, unverified, domain.PhoneRequest{Phone: "+61412345678"})
	require.NoError(t, err)
	assert.Equal(t, domain.KindForbidden, out.Kind)
}

func TestExpiredPhoneCodeIsTextedAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := newUser("u1")
	u.EmailVerified = true
	v, code, err := h.verifs.Create(ctx, "u1", domain.ChannelPhone, "+61412345678")
	require.NoError(t, err)

	h.clock.Advance(11 * time.Minute)
	out, err := h.svc.VerifyPhone(ctx, principal(u, false), v.RequestID, code)
	require.NoError(t, err)
	assert.Equal(t, domain.KindCodeExpired, out.Kind)
	assert.Equal(t, MsgCodeExpiredPhone, out.Message)
	assert.Equal(t, "text", h.notifier.last(t).template)
}

func TestNotifierFailureIsAnError(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errBoom
	u := newUser("u1")
	u.EmailVerified = true

	_, err := h.svc.RequestAccountDeletion(context.Background(), principal(u, false))
	require.ErrorIs(t, err, errBoom)
}
