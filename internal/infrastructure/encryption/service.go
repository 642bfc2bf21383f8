// Package encryption seals shop secrets with AES-256-GCM before they are stored.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const keySize = 32

// ErrInvalidCiphertext means a stored value was not produced by this key
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Service implements ports.EncryptionService
type Service struct {
	aead cipher.AEAD
}

// NewService creates a service from a base64-encoded or raw 32-byte key
func NewService(key string) (*Service, error) {
	raw, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Service{aead: aead}, nil
}

// GenerateKey returns a random base64-encoded key
func GenerateKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func parseKey(key string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) == keySize {
		return decoded, nil
	}
	if len(key) == keySize {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("encryption key must be %d bytes, raw or base64-encoded", keySize)
}

// Encrypt seals plaintext under a fresh nonce. The result is base64(nonce || ciphertext).
func (s *Service) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt
func (s *Service) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", ErrInvalidCiphertext)
	}
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return "", fmt.Errorf("ciphertext too short: %w", ErrInvalidCiphertext)
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to open ciphertext: %w", ErrInvalidCiphertext)
	}
	return string(plain), nil
}
