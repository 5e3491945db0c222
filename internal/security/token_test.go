package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testClaims() Claims {
	return Claims{
		Email: "a@x.com",
		Name:  "Alex",
		Role:  "admin",
		Type:  TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
		},
	}
}

func TestToken_Roundtrip(t *testing.T) {
	token, err := SignToken(testClaims(), testSecret, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, ok := VerifyToken(token, testSecret)
	require.True(t, ok)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "Alex", claims.Name)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, 15*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestToken_ExpiresAfterTTL(t *testing.T) {
	issued := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	token, err := signTokenAt(testClaims(), testSecret, 15*time.Minute, issued)
	require.NoError(t, err)

	claims, failure := InspectToken(token, testSecret, issued.Add(15*time.Minute-time.Second))
	require.Equal(t, TokenOK, failure)
	assert.Equal(t, "user-1", claims.Subject)

	claims, failure = InspectToken(token, testSecret, issued.Add(15*time.Minute))
	assert.Nil(t, claims)
	assert.Equal(t, TokenExpired, failure)
}

func TestToken_TamperedPayloadRejected(t *testing.T) {
	token, err := SignToken(testClaims(), testSecret, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	mid := len(payload) / 2
	if payload[mid] == 'A' {
		payload[mid] = 'B'
	} else {
		payload[mid] = 'A'
	}
	parts[1] = string(payload)
	tampered := strings.Join(parts, ".")

	claims, ok := VerifyToken(tampered, testSecret)
	assert.False(t, ok)
	assert.Nil(t, claims)

	_, failure := InspectToken(tampered, testSecret, time.Now())
	assert.NotEqual(t, TokenOK, failure)
}

func TestToken_WrongSecret(t *testing.T) {
	token, err := SignToken(testClaims(), testSecret, time.Hour)
	require.NoError(t, err)

	_, failure := InspectToken(token, "another-secret-another-secret-xx", time.Now())
	assert.Equal(t, TokenBadSignature, failure)
}

func TestToken_MalformedInputs(t *testing.T) {
	for _, input := range []string{"", "abc", "a.b", "a.b.c.d", "..", "x.y.z"} {
		claims, failure := InspectToken(input, testSecret, time.Now())
		assert.Nil(t, claims, input)
		assert.NotEqual(t, TokenOK, failure, input)
	}
}

func TestToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := testClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, ok := VerifyToken(unsigned, testSecret)
	assert.False(t, ok)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, ok = VerifyToken(hs512, testSecret)
	assert.False(t, ok)
}

func TestToken_EmptySecretRefused(t *testing.T) {
	_, err := SignToken(testClaims(), "", time.Hour)
	require.Error(t, err)
}
