package cryptox

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// HexKeyLength is the length of a key returned by NewHexKey.
const HexKeyLength = 32

// NewHexKey returns a fresh 128-bit random value, hex encoded (32 chars).
// The bytes come from a version 4 UUID, which reads crypto/rand. At this size
// collisions are not a practical concern so callers do not retry.
func NewHexKey() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return hex.EncodeToString(u[:]), nil
}

// MustNewHexKey is like NewHexKey but panics on error.
func MustNewHexKey() string {
	key, err := NewHexKey()
	if err != nil {
		panic(fmt.Sprintf("cryptox: %v", err))
	}
	return key
}

// Redact shortens a secret for log output, keeping a short prefix so
// operators can still correlate entries.
func Redact(secret string) string {
	const keep = 6
	if len(secret) <= keep {
		return "***"
	}
	return secret[:keep] + "***"
}
