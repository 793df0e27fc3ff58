package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpaqueID(t *testing.T) {
	a, err := NewOpaqueID()
	require.NoError(t, err)
	b, err := NewOpaqueID()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.Equal(t, strings.ToLower(a), a)
	assert.NotEqual(t, a, b)
}

func TestNewCode(t *testing.T) {
	code, err := NewCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}

	_, err = NewCode(0)
	assert.Error(t, err)
}

func TestNewRecoveryCode(t *testing.T) {
	code, err := NewRecoveryCode()
	require.NoError(t, err)
	assert.Len(t, code, 16)
}
