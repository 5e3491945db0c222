package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const TokenTypeAccess = "access"

type Claims struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Type      string `json:"typ"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenFailure classifies why a token was rejected. Callers outside this
// package only ever see accept/reject; the class is for logs.
type TokenFailure int

const (
	TokenOK TokenFailure = iota
	TokenMalformed
	TokenBadSignature
	TokenExpired
)

func (f TokenFailure) String() string {
	switch f {
	case TokenOK:
		return "ok"
	case TokenMalformed:
		return "malformed"
	case TokenBadSignature:
		return "bad_signature"
	case TokenExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// SignToken stamps iat/exp on claims and returns header.payload.signature,
// each segment base64url encoded, signed with HMAC-SHA256.
func SignToken(claims Claims, secret string, ttl time.Duration) (string, error) {
	return signTokenAt(claims, secret, ttl, time.Now())
}

func signTokenAt(claims Claims, secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("sign token: empty secret")
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken returns the claims only for a well-formed, correctly signed,
// unexpired token.
func VerifyToken(token, secret string) (*Claims, bool) {
	claims, failure := InspectToken(token, secret, time.Now())
	return claims, failure == TokenOK
}

func InspectToken(token, secret string, now time.Time) (*Claims, TokenFailure) {
	if secret == "" || strings.Count(token, ".") != 2 {
		return nil, TokenMalformed
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	switch {
	case err == nil && parsed.Valid:
		return claims, TokenOK
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, TokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, TokenBadSignature
	default:
		return nil, TokenMalformed
	}
}
