package security

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
)

var base32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

type TOTPOutcome int

const (
	TOTPValid TOTPOutcome = iota
	TOTPBadSecret
	TOTPBadCode
	TOTPMismatch
)

func (o TOTPOutcome) String() string {
	switch o {
	case TOTPValid:
		return "valid"
	case TOTPBadSecret:
		return "bad_secret"
	case TOTPBadCode:
		return "bad_code"
	case TOTPMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

func totpOpts(window uint) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NewTOTPKey generates a secret together with its otpauth:// provisioning URL.
func NewTOTPKey(issuer, account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	return key, nil
}

func GenerateTOTPSecret() (string, error) {
	buf := make([]byte, totpSecretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return base32NoPadding.EncodeToString(buf), nil
}

// DecodeTOTPSecret accepts lower case, padding and embedded spaces.
func DecodeTOTPSecret(secret string) ([]byte, error) {
	normalized := normalizeSecret(secret)
	if normalized == "" {
		return nil, fmt.Errorf("empty totp secret")
	}
	raw, err := base32NoPadding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("decode totp secret: %w", err)
	}
	return raw, nil
}

func VerifyTOTP(secret, code string, at time.Time, window uint) bool {
	return CheckTOTP(secret, code, at, window) == TOTPValid
}

func CheckTOTP(secret, code string, at time.Time, window uint) TOTPOutcome {
	code = stripSpaces(code)
	if len(code) != otp.DigitsSix.Length() || strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return TOTPBadCode
	}
	if _, err := DecodeTOTPSecret(secret); err != nil {
		return TOTPBadSecret
	}

	ok, err := totp.ValidateCustom(code, normalizeSecret(secret), at.UTC(), totpOpts(window))
	if err != nil {
		return TOTPBadSecret
	}
	if !ok {
		return TOTPMismatch
	}
	return TOTPValid
}

// TOTPCode returns the code for the step containing at.
func TOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(normalizeSecret(secret), at.UTC(), totpOpts(0))
}

func normalizeSecret(secret string) string {
	return strings.TrimRight(strings.ToUpper(stripSpaces(secret)), "=")
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
