package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-auth-gate/internal/application/twofactor"
	"github.com/go-auth-gate/internal/domain"
)

const (
	msgInvalidKey          = "Invalid key"
	msgInvalidRecoveryCode = "Invalid recovery code"
)

// require2FAContext admits callers with a verified email. When a key is
// already registered the session must have passed it, since setup would
// otherwise let a password holder replace the second factor.
func (s *Service) require2FAContext(p *Principal) (Outcome, bool) {
	if p == nil {
		return outcome(domain.NotAuthenticated()), false
	}
	if !p.User.EmailVerified || pending2FA(p) {
		return outcome(domain.Forbidden()), false
	}
	return Outcome{}, true
}

// BeginTwoFactorSetup provisions a TOTP key for the caller to enrol in an
// authenticator app. Nothing is stored until FinishTwoFactorSetup.
func (s *Service) BeginTwoFactorSetup(ctx context.Context, p *Principal) (Outcome, error) {
	if out, ok := s.require2FAContext(p); !ok {
		return out, nil
	}
	key, err := s.twoFactor.NewKey(p.User.Email)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.Success("", ""), TOTPKey: key}, nil
}

// FinishTwoFactorSetup stores secret once code proves the caller holds it,
// and issues a new recovery code.
func (s *Service) FinishTwoFactorSetup(ctx context.Context, p *Principal, secret, code string) (Outcome, error) {
	if out, ok := s.require2FAContext(p); !ok {
		return out, nil
	}
	if ok, err := allow(s.limits.TOTPUpdate.Check(ctx, p.User.UserID, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	secret, code = strings.TrimSpace(secret), strings.TrimSpace(code)
	if secret == "" || code == "" {
		return outcome(domain.InvalidField("code", domain.MsgEnterCode)), nil
	}
	if !twofactor.ValidKey(secret) {
		return outcome(domain.InvalidField("key", msgInvalidKey)), nil
	}
	if ok, err := allow(s.limits.TOTPUpdate.Consume(ctx, p.User.UserID, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	if !s.twoFactor.Verify(secret, code) {
		return outcome(domain.Fail(domain.KindCodeIncorrect, domain.MsgInvalidCode)), nil
	}

	recovery, hash, err := s.twoFactor.NewRecoveryCode(p.User.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.users.Update(ctx, p.User.UserID, map[string]interface{}{
		"totp_secret":        strings.ToUpper(secret),
		"recovery_code_hash": hash,
	}); err != nil {
		return Outcome{}, fmt.Errorf("store totp key: %w", err)
	}
	if err := s.sessions.SetTwoFactorVerified(ctx, p.Session.SessionID); err != nil {
		return Outcome{}, err
	}
	slog.InfoContext(ctx, "two-factor enabled", "user_id", p.User.UserID)
	return Outcome{Result: domain.Success("", "/recovery-code"), RecoveryCode: recovery}, nil
}

// VerifyTwoFactor checks a TOTP code and marks the session as having passed
// the second factor.
func (s *Service) VerifyTwoFactor(ctx context.Context, p *Principal, code string) (Outcome, error) {
	if out, ok := s.requirePending2FA(p); !ok {
		return out, nil
	}
	key := p.User.UserID
	if ok, err := allow(s.limits.TOTPVerify.Check(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return outcome(domain.InvalidField("code", domain.MsgEnterCode)), nil
	}
	if ok, err := allow(s.limits.TOTPVerify.Consume(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	if !s.twoFactor.Verify(p.User.TOTPSecret, code) {
		return outcome(domain.Fail(domain.KindCodeIncorrect, domain.MsgInvalidCode)), nil
	}
	if err := s.limits.TOTPVerify.Reset(ctx, key); err != nil {
		slog.WarnContext(ctx, "failed to reset totp bucket", "user_id", key, "err", err)
	}
	if err := s.sessions.SetTwoFactorVerified(ctx, p.Session.SessionID); err != nil {
		return Outcome{}, err
	}
	return outcome(domain.Success("", "/")), nil
}

// ResetTwoFactor removes the TOTP key using the recovery code, for users who
// lost their authenticator. Every session of the user drops back to
// not-verified and the caller is sent to set up a new key.
func (s *Service) ResetTwoFactor(ctx context.Context, p *Principal, recoveryCode string) (Outcome, error) {
	if out, ok := s.requirePending2FA(p); !ok {
		return out, nil
	}
	key := p.User.UserID
	if ok, err := allow(s.limits.RecoveryCode.Check(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	if strings.TrimSpace(recoveryCode) == "" {
		return outcome(domain.InvalidField("code", domain.MsgEnterCode)), nil
	}
	if ok, err := allow(s.limits.RecoveryCode.Consume(ctx, key, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	if !s.twoFactor.RecoveryCodeMatches(p.User.UserID, recoveryCode, p.User.RecoveryCodeHash) {
		return outcome(domain.Fail(domain.KindCodeIncorrect, msgInvalidRecoveryCode)), nil
	}

	newCode, hash, err := s.twoFactor.NewRecoveryCode(p.User.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.users.Update(ctx, p.User.UserID, map[string]interface{}{
		"totp_secret":        "",
		"recovery_code_hash": hash,
	}); err != nil {
		return Outcome{}, fmt.Errorf("reset totp key: %w", err)
	}
	if err := s.sessions.ClearTwoFactorForUser(ctx, p.User.UserID); err != nil {
		return Outcome{}, err
	}
	if err := s.limits.RecoveryCode.Reset(ctx, key); err != nil {
		slog.WarnContext(ctx, "failed to reset recovery bucket", "user_id", key, "err", err)
	}
	slog.InfoContext(ctx, "two-factor reset with recovery code", "user_id", p.User.UserID)
	return Outcome{Result: domain.Success("", "/2fa/setup"), RecoveryCode: newCode}, nil
}

// requirePending2FA admits callers with a registered key whose session has
// not passed it yet.
func (s *Service) requirePending2FA(p *Principal) (Outcome, bool) {
	if p == nil {
		return outcome(domain.NotAuthenticated()), false
	}
	if !p.User.EmailVerified || !pending2FA(p) {
		return outcome(domain.Forbidden()), false
	}
	return Outcome{}, true
}
