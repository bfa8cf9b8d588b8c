package phi

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// Service provides at-rest encryption of record sections for the
// application. It wraps a Cipher and adds a disabled mode for development
// environments where no encryption key is configured.
type Service struct {
	cipher  Cipher
	enabled bool
}

// NewService creates the encryption service.
//
// If key is empty, encryption is disabled and a warning is logged; stores
// then persist sections as plain JSON. If key is non-empty it must be a
// 64-character hex string encoding a 32-byte AES-256 key; an invalid key is
// an error so the application refuses to start misconfigured.
func NewService(key string, logger zerolog.Logger) (*Service, error) {
	if key == "" {
		logger.Warn().Msg("record encryption disabled: PHI_ENCRYPTION_KEY is not set")
		return &Service{enabled: false}, nil
	}

	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
	}

	enc, err := NewSectionEncryptor(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("create section encryptor: %w", err)
	}

	logger.Info().Msg("record section encryption enabled")
	return &Service{cipher: enc, enabled: true}, nil
}

// Cipher returns the underlying Cipher, or nil when encryption is disabled.
// Stores accept an optional Cipher and persist plaintext when it is nil.
func (s *Service) Cipher() Cipher {
	return s.cipher
}

// IsEnabled reports whether encryption is active.
func (s *Service) IsEnabled() bool {
	return s.enabled
}
