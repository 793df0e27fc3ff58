// Package twofactor provisions and checks TOTP keys and the recovery code
// that lets a user reset two-factor authentication.
package twofactor

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/go-auth-gate/internal/pkg/codehash"
	"github.com/go-auth-gate/internal/pkg/token"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const keySize = 20

var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Key is a freshly provisioned TOTP secret and its otpauth:// URI.
type Key struct {
	Secret string
	URI    string
}

type Manager struct {
	issuer string
	hasher *codehash.Hasher
	now    func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(issuer string, hasher *codehash.Hasher, opts ...Option) *Manager {
	m := &Manager{issuer: issuer, hasher: hasher, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewKey provisions a secret for accountName. Nothing is stored until the
// user proves possession with a first code.
func (m *Manager) NewKey(accountName string) (*Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
		SecretSize:  keySize,
		Period:      validateOpts.Period,
		Digits:      validateOpts.Digits,
		Algorithm:   validateOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	return &Key{Secret: k.Secret(), URI: k.URL()}, nil
}

// ValidKey reports whether secret decodes to a key of the provisioned size.
func ValidKey(secret string) bool {
	b, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	return err == nil && len(b) == keySize
}

// Verify checks a 6-digit code against secret, allowing one period of drift.
func (m *Manager) Verify(secret, code string) bool {
	if len(code) != 6 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, m.now().UTC(), validateOpts)
	return err == nil && ok
}

// NewRecoveryCode returns a recovery code and the hash to store for userID.
func (m *Manager) NewRecoveryCode(userID string) (code, hash string, err error) {
	code, err = token.NewRecoveryCode()
	if err != nil {
		return "", "", err
	}
	return code, m.hasher.Sum(recoveryScope(userID), code), nil
}

func (m *Manager) RecoveryCodeMatches(userID, code, hash string) bool {
	if hash == "" {
		return false
	}
	return m.hasher.Equal(recoveryScope(userID), strings.ToUpper(strings.TrimSpace(code)), hash)
}

func recoveryScope(userID string) string { return "recovery:" + userID }
