package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewAt generates a ULID stamped with t. ULIDs sort by creation time and are
// safe as DynamoDB partition keys; passing the caller's clock keeps that order
// consistent with injected time in tests.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
