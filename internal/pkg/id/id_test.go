package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAt_EncodesTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	parsed, err := ulid.Parse(NewAt(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(ulid.Time(parsed.Time())))
}

func TestNewAt_SortsByTime(t *testing.T) {
	early := NewAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	late := NewAt(time.Date(2024, 5, 1, 9, 0, 1, 0, time.UTC))
	assert.Less(t, early, late)
	assert.Len(t, late, 26)
}
