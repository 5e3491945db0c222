package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassword_VerifyRoundtrip(t *testing.T) {
	stored, err := HashPassword("correct horse")
	require.NoError(t, err)

	salt, hash, ok := strings.Cut(stored, ":")
	require.True(t, ok)
	assert.Len(t, salt, passwordSaltLen*2)
	assert.Len(t, hash, passwordKeyLen*2)

	assert.True(t, VerifyPassword("correct horse", stored))
	assert.False(t, VerifyPassword("correct horsf", stored))
	assert.False(t, VerifyPassword("", stored))
}

func TestPassword_FreshSaltEachCall(t *testing.T) {
	first, err := HashPassword("pw")
	require.NoError(t, err)
	second, err := HashPassword("pw")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	firstSalt, _, _ := strings.Cut(first, ":")
	secondSalt, _, _ := strings.Cut(second, ":")
	assert.NotEqual(t, firstSalt, secondSalt)
}

func TestPassword_ExplicitSaltIsDeterministic(t *testing.T) {
	a, err := HashPasswordWithSalt("pw", "fixed-salt")
	require.NoError(t, err)
	b, err := HashPasswordWithSalt("pw", "fixed-salt")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "fixed-salt:"))
	assert.True(t, VerifyPassword("pw", a))
}

func TestPassword_MalformedStoredValues(t *testing.T) {
	for _, stored := range []string{"", "nocolon", ":abcd", "salt:nothex", "salt:abcd", "a:b:c"} {
		assert.False(t, VerifyPassword("pw", stored), stored)
	}
}

func TestRandom_SecureTokenAndDigest(t *testing.T) {
	a, err := SecureToken(32)
	require.NoError(t, err)
	b, err := SecureToken(32)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	assert.Len(t, Digest(a), 64)
	assert.Equal(t, Digest(a), Digest(a))
	assert.NotEqual(t, Digest(a), Digest(b))

	assert.True(t, ConstantTimeEqual("K1", "K1"))
	assert.False(t, ConstantTimeEqual("K1", "K2"))
}

func TestPassword_DecoyHashReadyBeforeFirstUse(t *testing.T) {
	// Built at package init, not on the first decoy call.
	require.NotEmpty(t, decoyHash)
	assert.True(t, VerifyPassword("decoy-password", decoyHash))

	want, err := HashPasswordWithSalt("decoy-password", "00000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, want, decoyHash)

	VerifyPasswordDecoy("anything")
}
