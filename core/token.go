package core

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewToken generates a cryptographically random, URL-safe session token.
// The token is the sole capability required to read or answer a relay
// session, so it must be unguessable.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
