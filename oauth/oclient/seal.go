package oclient

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts token values at rest with XChaCha20-Poly1305. The
// (user, provider) pair is bound as additional data so a ciphertext cannot be
// moved to another record.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer expects a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealer: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func additionalData(userID, provider string) []byte {
	return []byte(userID + "\x00" + provider)
}

// Seal returns base64(nonce || ciphertext). Empty input stays empty.
func (s *Sealer) Seal(plaintext, userID, provider string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sealer: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), additionalData(userID, provider))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, userID, provider string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("sealer: decode: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", errors.New("sealer: ciphertext too short")
	}
	nonce, ct := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	pt, err := s.aead.Open(nil, nonce, ct, additionalData(userID, provider))
	if err != nil {
		return "", fmt.Errorf("sealer: open: %w", err)
	}
	return string(pt), nil
}
