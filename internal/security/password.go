package security

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordIterations = 100_000
	passwordKeyLen     = 64
	passwordSaltLen    = 16
)

// HashPassword derives "salt:hash" with a fresh random salt.
func HashPassword(password string) (string, error) {
	return HashPasswordWithSalt(password, "")
}

// HashPasswordWithSalt derives "salt:hash" using salt, or a fresh random
// salt when salt is empty.
func HashPasswordWithSalt(password, salt string) (string, error) {
	if salt == "" {
		buf := make([]byte, passwordSaltLen)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
		salt = hex.EncodeToString(buf)
	}

	derived := derivePassword(password, salt)
	return salt + ":" + hex.EncodeToString(derived), nil
}

func VerifyPassword(password, stored string) bool {
	salt, encoded, ok := strings.Cut(stored, ":")
	if !ok || salt == "" || strings.Contains(encoded, ":") {
		return false
	}

	expected, err := hex.DecodeString(encoded)
	if err != nil || len(expected) != passwordKeyLen {
		return false
	}

	computed := derivePassword(password, salt)
	return subtle.ConstantTimeCompare(expected, computed) == 1
}

// decoyHash is derived at package init so the first unknown-account login
// does not pay for building it.
var decoyHash = "00000000000000000000000000000000:" +
	hex.EncodeToString(derivePassword("decoy-password", "00000000000000000000000000000000"))

// VerifyPasswordDecoy spends the same KDF work as VerifyPassword against a
// throwaway hash, so unknown accounts cost as much time as wrong passwords.
func VerifyPasswordDecoy(password string) {
	_ = VerifyPassword(password, decoyHash)
}

func derivePassword(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), passwordIterations, passwordKeyLen, sha512.New)
}
