package refresh

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32

// encodedLen is the base64url (no padding) length of a token.
var encodedLen = base64.RawURLEncoding.EncodedLen(tokenBytes)

// NewToken returns a fresh opaque refresh token.
func NewToken() (string, error) {
	var raw [tokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("refresh: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ParseToken checks the token's shape without touching the store.
func ParseToken(token string) error {
	if len(token) != encodedLen {
		return ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenBytes {
		return ErrMalformed
	}
	return nil
}
