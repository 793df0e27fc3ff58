package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-auth-gate/internal/application/notify"
	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/pkg/validate"
)

const (
	MsgCodeExpiredEmail = "The verification code was expired. We sent another code to your inbox."
	MsgCodeExpiredPhone = "The verification code was expired. We sent another code to your phone."
	MsgCodeResent       = "A new code was sent to your inbox."
	MsgDeletionSent     = "We sent a confirmation code to your inbox."
	MsgPhoneCodeSent    = "We sent a code to your phone."
	MsgAccountDeleted   = "Your account was deleted."
)

// VerifyEmail redeems the email code named by the caller's verification cookie.
func (s *Service) VerifyEmail(ctx context.Context, p *Principal, requestID, code string) (Outcome, error) {
	if out, ok := s.requireSession(p); !ok {
		return out, nil
	}
	v, out, err := s.redeem(ctx, p, domain.ChannelEmail, requestID, code)
	if err != nil || v == nil {
		return out, err
	}
	if err := s.users.Update(ctx, v.UserID, map[string]interface{}{
		"email":          v.Destination,
		"email_verified": true,
	}); err != nil {
		return Outcome{}, fmt.Errorf("mark email verified: %w", err)
	}
	u := *p.User
	u.Email, u.EmailVerified = v.Destination, true
	return Outcome{
		Result:            domain.Success("", nextStep(&u, p.Session)),
		ClearVerification: domain.ChannelEmail,
	}, nil
}

// ResendEmailCode issues a fresh email code. Without a pending request it
// starts one for the account email, unless that email is already verified.
func (s *Service) ResendEmailCode(ctx context.Context, p *Principal, requestID string) (Outcome, error) {
	if out, ok := s.requireSession(p); !ok {
		return out, nil
	}
	key := channelKey(domain.ChannelEmail, p.User.UserID)
	if ok, err := allow(s.limits.SendCode.Check(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	v, err := s.currentRequest(ctx, p, domain.ChannelEmail, requestID)
	if err != nil {
		return Outcome{}, err
	}
	dest := p.User.Email
	if v != nil {
		dest = v.Destination
	} else if p.User.EmailVerified {
		return outcome(domain.Forbidden()), nil
	}
	if ok, err := allow(s.limits.SendCode.Consume(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	nv, err := s.issueEmailCode(ctx, p.User.UserID, domain.ChannelEmail, dest, notify.TemplateEmailVerification)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.Success(MsgCodeResent, ""), Verification: nv}, nil
}

// RequestAccountDeletion mails a code that must be confirmed before the
// account is anonymized.
func (s *Service) RequestAccountDeletion(ctx context.Context, p *Principal) (Outcome, error) {
	if out, ok := s.requireSession(p); !ok {
		return out, nil
	}
	key := channelKey(domain.ChannelAccountDeletion, p.User.UserID)
	if ok, err := allow(s.limits.SendCode.Consume(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	v, err := s.issueEmailCode(ctx, p.User.UserID, domain.ChannelAccountDeletion, p.User.Email, notify.TemplateAccountDeletion)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.Success(MsgDeletionSent, ""), Verification: v}, nil
}

// ConfirmAccountDeletion redeems the deletion code, anonymizes the account
// and ends every session it holds.
func (s *Service) ConfirmAccountDeletion(ctx context.Context, p *Principal, requestID, code string) (Outcome, error) {
	if out, ok := s.requireSession(p); !ok {
		return out, nil
	}
	v, out, err := s.redeem(ctx, p, domain.ChannelAccountDeletion, requestID, code)
	if err != nil || v == nil {
		return out, err
	}
	if err := s.users.Put(ctx, anonymized(p.User, s.now().UTC())); err != nil {
		return Outcome{}, fmt.Errorf("anonymize user: %w", err)
	}
	for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelPhone} {
		if err := s.verifications.DeleteForUser(ctx, v.UserID, ch); err != nil {
			slog.WarnContext(ctx, "failed to delete verification request", "user_id", v.UserID, "channel", ch, "err", err)
		}
	}
	if err := s.sessions.InvalidateAllForUser(ctx, v.UserID); err != nil {
		return Outcome{}, fmt.Errorf("invalidate sessions: %w", err)
	}
	slog.InfoContext(ctx, "account deleted", "user_id", v.UserID)
	return Outcome{
		Result:            domain.Success(MsgAccountDeleted, "/"),
		ClearSession:      true,
		ClearVerification: domain.ChannelAccountDeletion,
	}, nil
}

// RequestPhoneVerification texts a code to the submitted number.
func (s *Service) RequestPhoneVerification(ctx context.Context, p *Principal, req domain.PhoneRequest) (Outcome, error) {
	if out, ok := s.requireSession(p); !ok {
		return out, nil
	}
	if !p.User.EmailVerified {
		return outcome(domain.Forbidden()), nil
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if fields := validate.Struct(req); fields != nil {
		return outcome(domain.Invalid(fields)), nil
	}
	key := channelKey(domain.ChannelPhone, p.User.UserID)
	if ok, err := allow(s.limits.SendCode.Consume(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	v, err := s.issueTextCode(ctx, p.User.UserID, req.Phone)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.Success(MsgPhoneCodeSent, ""), Verification: v}, nil
}

func (s *Service) VerifyPhone(ctx context.Context, p *Principal, requestID, code string) (Outcome, error) {
	if out, ok := s.requireSession(p); !ok {
		return out, nil
	}
	v, out, err := s.redeem(ctx, p, domain.ChannelPhone, requestID, code)
	if err != nil || v == nil {
		return out, err
	}
	if err := s.users.Update(ctx, v.UserID, map[string]interface{}{
		"phone":          v.Destination,
		"phone_verified": true,
	}); err != nil {
		return Outcome{}, fmt.Errorf("mark phone verified: %w", err)
	}
	return Outcome{Result: domain.Success("", "/"), ClearVerification: domain.ChannelPhone}, nil
}

// requireSession admits a signed-in caller that is not waiting on its second factor.
func (s *Service) requireSession(p *Principal) (Outcome, bool) {
	if p == nil {
		return outcome(domain.NotAuthenticated()), false
	}
	if pending2FA(p) {
		return outcome(domain.Forbidden()), false
	}
	return Outcome{}, true
}

// currentRequest returns the caller's live request on ch named by requestID, or nil.
func (s *Service) currentRequest(ctx context.Context, p *Principal, ch domain.Channel, requestID string) (*domain.VerificationRequest, error) {
	v, err := s.verifications.GetCurrentForRequest(ctx, requestID)
	if err != nil || v == nil {
		return nil, err
	}
	if v.UserID != p.User.UserID || v.Channel != ch {
		return nil, nil
	}
	return v, nil
}

// redeem runs the code guard chain for ch. It returns the request when code
// matches it and was still live, deleting it; otherwise v is nil and out
// holds the refusal.
//
// An expired request is never compared: a new code goes out to the same
// destination and the attempt is reported as expired. Sending that code is
// not charged to the send bucket.
func (s *Service) redeem(ctx context.Context, p *Principal, ch domain.Channel, requestID, code string) (v *domain.VerificationRequest, out Outcome, err error) {
	key := channelKey(ch, p.User.UserID)
	if ok, err := allow(s.limits.VerifyCode.Check(ctx, key, 1)); err != nil || !ok {
		return nil, outcome(domain.RateLimited()), err
	}
	v, err = s.currentRequest(ctx, p, ch, requestID)
	if err != nil {
		return nil, Outcome{}, err
	}
	if v == nil {
		return nil, outcome(domain.NotAuthenticated()), nil
	}
	if strings.TrimSpace(code) == "" {
		return nil, outcome(domain.InvalidField("code", domain.MsgEnterCode)), nil
	}
	if ok, err := allow(s.limits.VerifyCode.Consume(ctx, key, 1)); err != nil || !ok {
		return nil, outcome(domain.RateLimited()), err
	}
	if s.verifications.Expired(v) {
		nv, err := s.reissue(ctx, v)
		if err != nil {
			return nil, Outcome{}, err
		}
		msg := MsgCodeExpiredEmail
		if ch == domain.ChannelPhone {
			msg = MsgCodeExpiredPhone
		}
		return nil, Outcome{Result: domain.Fail(domain.KindCodeExpired, msg), Verification: nv}, nil
	}
	if !s.verifications.Matches(v, code) {
		return nil, outcome(domain.Fail(domain.KindCodeIncorrect, domain.MsgIncorrectCode)), nil
	}
	consumed, err := s.verifications.Consume(ctx, v)
	if err != nil {
		return nil, Outcome{}, err
	}
	if !consumed {
		return nil, outcome(domain.NotAuthenticated()), nil
	}
	if err := s.limits.VerifyCode.Reset(ctx, key); err != nil {
		slog.WarnContext(ctx, "failed to reset verify bucket", "key", key, "err", err)
	}
	return v, Outcome{}, nil
}

// reissue replaces an expired request with a new one to the same destination.
func (s *Service) reissue(ctx context.Context, old *domain.VerificationRequest) (*domain.VerificationRequest, error) {
	switch old.Channel {
	case domain.ChannelPhone:
		return s.issueTextCode(ctx, old.UserID, old.Destination)
	case domain.ChannelAccountDeletion:
		return s.issueEmailCode(ctx, old.UserID, old.Channel, old.Destination, notify.TemplateAccountDeletion)
	default:
		return s.issueEmailCode(ctx, old.UserID, old.Channel, old.Destination, notify.TemplateEmailVerification)
	}
}

func (s *Service) issueTextCode(ctx context.Context, userID, phone string) (*domain.VerificationRequest, error) {
	v, code, err := s.verifications.Create(ctx, userID, domain.ChannelPhone, phone)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.SendText(ctx, phone, code); err != nil {
		return nil, fmt.Errorf("send phone code: %w", err)
	}
	return v, nil
}

// anonymized strips everything that identifies u while keeping the row so
// the id is never reused.
func anonymized(u *domain.User, now time.Time) *domain.User {
	return &domain.User{
		UserID:       u.UserID,
		Username:     "deleted-" + strings.ToLower(u.UserID),
		Email:        "deleted-" + strings.ToLower(u.UserID) + "@deleted.invalid",
		AuthProvider: u.AuthProvider,
		DeletedAt:    &now,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    now,
	}
}
