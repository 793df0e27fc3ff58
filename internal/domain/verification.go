package domain

import "time"

// Channel namespaces verification requests; each user holds at most one live request per channel.
type Channel string

const (
	ChannelEmail           Channel = "email"
	ChannelPhone           Channel = "phone"
	ChannelAccountDeletion Channel = "account_deletion"
)

// VerificationRequest is a single-use code challenge.
// PK: user_id, SK: channel. GSI: request_id.
// Only a keyed hash of the code is stored; ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type VerificationRequest struct {
	RequestID   string  `json:"id" dynamodbav:"request_id"`
	UserID      string  `json:"user_id" dynamodbav:"user_id"`
	Channel     Channel `json:"channel" dynamodbav:"channel"`
	Destination string  `json:"destination" dynamodbav:"destination"`
	CodeHash    string  `json:"-" dynamodbav:"code_hash"`
	ExpiresAt   int64   `json:"expires_at" dynamodbav:"expires_at"`
}

func (v *VerificationRequest) Expired(now time.Time) bool {
	return now.Unix() >= v.ExpiresAt
}

func (v *VerificationRequest) ExpiresAtTime() time.Time {
	return time.Unix(v.ExpiresAt, 0).UTC()
}
