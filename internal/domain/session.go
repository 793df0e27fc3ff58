package domain

import "time"

// Session is the server-side record behind a session token.
// ExpiresAt is a Unix timestamp also used as DynamoDB TTL.
type Session struct {
	SessionID         string    `json:"id" dynamodbav:"session_id"`
	UserID            string    `json:"user_id" dynamodbav:"user_id"`
	TwoFactorVerified bool      `json:"two_factor_verified" dynamodbav:"two_factor_verified"`
	ExpiresAt         int64     `json:"expires_at" dynamodbav:"expires_at"`
	CreatedAt         time.Time `json:"created" dynamodbav:"created_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

func (s *Session) ExpiresAtTime() time.Time {
	return time.Unix(s.ExpiresAt, 0).UTC()
}
