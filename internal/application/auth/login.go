package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-auth-gate/internal/application/notify"
	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/pkg/id"
	"github.com/go-auth-gate/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	msgEmailTaken    = "Email is already used"
	msgUsernameTaken = "Username is already used"
	msgGoogleInvalid = "Google sign-in failed"
)

// Signup creates a local account, starts email verification and signs the
// new user in with a session that still needs the email code.
func (s *Service) Signup(ctx context.Context, ip string, req domain.SignupRequest) (Outcome, error) {
	if ok, err := allow(s.limits.SignupIP.Check(ctx, ip, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if fields := validate.Struct(req); fields != nil {
		return outcome(domain.Invalid(fields)), nil
	}
	taken, err := s.exists(ctx, s.users.GetByEmail, req.Email)
	if err != nil {
		return Outcome{}, err
	}
	if taken {
		return outcome(domain.InvalidField("email", msgEmailTaken)), nil
	}
	if taken, err = s.exists(ctx, s.users.GetByUsername, req.Username); err != nil {
		return Outcome{}, err
	}
	if taken {
		return outcome(domain.InvalidField("username", msgUsernameTaken)), nil
	}
	if ok, err := allow(s.limits.SignupIP.Consume(ctx, ip, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return Outcome{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.NewAt(now),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		AuthProvider: domain.AuthProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return Outcome{}, fmt.Errorf("create user: %w", err)
	}

	v, err := s.issueEmailCode(ctx, u.UserID, domain.ChannelEmail, u.Email, notify.TemplateEmailVerification)
	if err != nil {
		return Outcome{}, err
	}
	issued, err := s.sessions.Create(ctx, u.UserID, false)
	if err != nil {
		return Outcome{}, err
	}
	slog.InfoContext(ctx, "user signed up", "user_id", u.UserID)
	return Outcome{
		Result:       domain.Success("", nextStep(u, issued.Session)),
		Session:      issued,
		Verification: v,
	}, nil
}

// Login checks a password. The IP bucket is only charged once the account
// is known to exist, and the per-user throttler gates every password check.
func (s *Service) Login(ctx context.Context, ip string, req domain.LoginRequest) (Outcome, error) {
	if ok, err := allow(s.limits.LoginIP.Check(ctx, ip, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if fields := validate.Struct(req); fields != nil {
		return outcome(domain.Invalid(fields)), nil
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return outcome(domain.Fail(domain.KindNotFound, domain.MsgAccountNotFound)), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if ok, err := allow(s.limits.LoginIP.Consume(ctx, ip, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	if ok, err := allow(s.limits.LoginThrottle.Consume(ctx, u.UserID)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		slog.InfoContext(ctx, "login rejected", "user_id", u.UserID, "reason", "password")
		return outcome(domain.Fail(domain.KindValidationError, domain.MsgInvalidPassword)), nil
	}
	if err := s.limits.LoginThrottle.Reset(ctx, u.UserID); err != nil {
		slog.WarnContext(ctx, "failed to reset login throttle", "user_id", u.UserID, "err", err)
	}

	issued, err := s.sessions.Create(ctx, u.UserID, false)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.Success("", nextStep(u, issued.Session)), Session: issued}, nil
}

// LoginWithGoogle signs in with a Google ID token. An account is matched by
// Google subject first, then linked by verified email, and created otherwise.
func (s *Service) LoginWithGoogle(ctx context.Context, ip, idToken string) (Outcome, error) {
	if ok, err := allow(s.limits.LoginIP.Consume(ctx, ip, 1)); err != nil || !ok {
		return outcome(domain.RateLimited()), err
	}
	if strings.TrimSpace(idToken) == "" {
		return outcome(domain.InvalidField("id_token", "This field is required")), nil
	}
	payload, err := s.google.Verify(ctx, idToken)
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return outcome(domain.Forbidden()), nil
	case errors.Is(err, domain.ErrUnauthorized):
		return outcome(domain.Fail(domain.KindNotAuthenticated, msgGoogleInvalid)), nil
	case err != nil:
		return Outcome{}, err
	}

	u, err := s.users.GetByGoogleSub(ctx, payload.Sub)
	if errors.Is(err, domain.ErrNotFound) {
		u, err = s.linkOrCreateGoogleUser(ctx, payload.Sub, strings.ToLower(payload.Email), payload.EmailVerified)
	}
	if err != nil {
		return Outcome{}, err
	}
	if u == nil {
		return outcome(domain.Fail(domain.KindForbidden, "Google account email is not verified")), nil
	}

	issued, err := s.sessions.Create(ctx, u.UserID, false)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.Success("", nextStep(u, issued.Session)), Session: issued}, nil
}

func (s *Service) linkOrCreateGoogleUser(ctx context.Context, sub, email string, emailVerified bool) (*domain.User, error) {
	if email == "" || !emailVerified {
		return nil, nil
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		if err := s.users.Update(ctx, u.UserID, map[string]interface{}{"google_sub": sub, "email_verified": true}); err != nil {
			return nil, fmt.Errorf("link google account: %w", err)
		}
		u.GoogleSub, u.EmailVerified = sub, true
		slog.InfoContext(ctx, "linked google account", "user_id", u.UserID)
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	userID := id.NewAt(now)
	u = &domain.User{
		UserID:        userID,
		Username:      "g" + strings.ToLower(userID),
		Email:         email,
		EmailVerified: true,
		AuthProvider:  domain.AuthProviderGoogle,
		GoogleSub:     sub,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create google user: %w", err)
	}
	slog.InfoContext(ctx, "user signed up", "user_id", u.UserID, "provider", domain.AuthProviderGoogle)
	return u, nil
}

func (s *Service) Logout(ctx context.Context, p *Principal) (Outcome, error) {
	if p == nil {
		return outcome(domain.NotAuthenticated()), nil
	}
	if err := s.sessions.Invalidate(ctx, p.Session.SessionID); err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.Success("", "/login"), ClearSession: true}, nil
}

func (s *Service) exists(ctx context.Context, get func(context.Context, string) (*domain.User, error), key string) (bool, error) {
	_, err := get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// issueEmailCode replaces the live request on ch and mails its code.
func (s *Service) issueEmailCode(ctx context.Context, userID string, ch domain.Channel, email, template string) (*domain.VerificationRequest, error) {
	v, code, err := s.verifications.Create(ctx, userID, ch, email)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.SendEmail(ctx, email, template, notify.Data{Code: code, ExpiresAt: v.ExpiresAtTime()}); err != nil {
		return nil, fmt.Errorf("send %s: %w", template, err)
	}
	return v, nil
}
