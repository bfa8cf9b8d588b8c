package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// apiKeyPrefix is prepended to every generated key for easy
	// identification in logs and configuration files.
	apiKeyPrefix = "ik1_"

	// apiKeyRandomBytes is the number of random bytes used to generate the
	// key material (encoded as hex => 32 hex chars).
	apiKeyRandomBytes = 16
)

// GenerateKey returns a fresh raw API key. The raw key is shown to the staff
// member exactly once; only its hash is ever persisted.
func GenerateKey() (string, error) {
	b := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating key material: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

// HashKey returns the hex-encoded SHA-256 hash of the raw key string.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
