// Package codehash stores one-time codes as keyed hashes so a leaked
// verification table does not reveal live codes.
package codehash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

type Hasher struct {
	key []byte
}

func New(secret string) *Hasher {
	return &Hasher{key: []byte(secret)}
}

// Sum binds code to the request it was issued for, so a hash copied onto
// another request does not verify.
func (h *Hasher) Sum(requestID, code string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(requestID))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares code against a stored Sum in constant time.
func (h *Hasher) Equal(requestID, code, sum string) bool {
	want, err := hex.DecodeString(sum)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(h.Sum(requestID, code))
	return hmac.Equal(got, want)
}
