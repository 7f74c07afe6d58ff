// Package auth provides token hashing and validation for the WebSocket server.
// Tokens are never stored in plaintext; the config carries only a bcrypt hash.
package auth

import (
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned when a presented token does not match the
// configured hash.
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator checks a presented token and returns nil if it is valid.
type TokenValidator func(token string) error

// HashToken produces a bcrypt hash of the given token, suitable for
// storing in the config file as token_hash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// StaticValidator returns a TokenValidator that compares tokens against a
// single bcrypt hash. bcrypt.CompareHashAndPassword handles timing-safe
// comparison.
func StaticValidator(tokenHash string) TokenValidator {
	return func(token string) error {
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			log.Printf("auth: token validation failed")
			return ErrInvalidToken
		}
		return nil
	}
}
