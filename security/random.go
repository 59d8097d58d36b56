package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// DefaultIdentifierBytes is the entropy used for opaque identifiers
	// (authorization codes, refresh tokens) when no length is given.
	// 32 bytes = 256 bits, well beyond the 128 bits RFC 6749 §10.10 asks for.
	DefaultIdentifierBytes = 32
)

// GenerateIdentifier returns a cryptographically secure random identifier
// built from numBytes bytes of entropy, base64url-encoded without padding.
// It never falls back to a weaker source: if the system randomness source
// fails, the error is returned and the caller must abort the operation.
func GenerateIdentifier(numBytes int) (string, error) {
	if numBytes <= 0 {
		numBytes = DefaultIdentifierBytes
	}

	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read from system randomness source: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
