package token

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// codeAlphabet excludes 0, 1, 8 and 9 so codes survive being read aloud or
// retyped from a phone screen.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOpaqueID returns 20 random bytes encoded as lowercase base32. Used for
// verification request identifiers held in client cookies.
func NewOpaqueID() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate opaque id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(b)), nil
}

// NewCode returns an n-character one-time code drawn uniformly from codeAlphabet.
func NewCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("generate code: invalid length %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	// 256 is a multiple of 32, so masking keeps the distribution uniform.
	for i := range b {
		b[i] = codeAlphabet[b[i]&31]
	}
	return string(b), nil
}

// NewRecoveryCode returns a 16-character code for resetting two-factor auth.
func NewRecoveryCode() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate recovery code: %w", err)
	}
	return encoding.EncodeToString(b), nil
}
