// Package crypto encrypts the GitHub access tokens we keep at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrUnusable is returned when a stored token cannot be decrypted: it was
// tampered with, truncated, or sealed under a different key.
var ErrUnusable = errors.New("crypto: credential unusable")

const hkdfInfo = "starswipe credential encryption v1"

// TokenEncryptor handles AES-256-GCM encryption and decryption of OAuth tokens.
type TokenEncryptor struct {
	gcm cipher.AEAD
}

// NewTokenEncryptor derives a 32-byte AES key from secret with HKDF-SHA256.
// The secret can be any high-entropy string; it does not have to be exactly
// 32 bytes.
func NewTokenEncryptor(secret string) (*TokenEncryptor, error) {
	if len(secret) < 16 {
		return nil, errors.New("crypto: encryption key must be at least 16 characters")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("crypto: deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM mode: %w", err)
	}

	return &TokenEncryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
// Format: base64(nonce || ciphertext || tag)
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Every failure wraps ErrUnusable
// so callers can skip the credential without inspecting the cause.
func (e *TokenEncryptor) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", fmt.Errorf("%w: empty value", ErrUnusable)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: decoding: %v", ErrUnusable, err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(raw) < nonceSize+e.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrUnusable)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnusable, err)
	}

	return string(plaintext), nil
}
