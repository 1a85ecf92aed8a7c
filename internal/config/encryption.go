// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package config

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

// Provider API keys and other credentials are stored encrypted with
// AES-256-GCM. The key derives from the application secret via
// HKDF-SHA256, so rotating the secret invalidates stored credentials.
const (
	credentialEncryptionSalt = "ushadow-provider-credentials"
	credentialEncryptionInfo = "credential-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptySecret is returned when an empty application secret is provided.
	ErrEmptySecret = errors.New("application secret cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt empty data.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrCiphertextTooShort is returned when the ciphertext is shorter than possible.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// CredentialEncryptor provides AES-256-GCM encryption for provider API
// keys and similar secrets held in the key-value store.
type CredentialEncryptor struct {
	cipher cipher.AEAD
}

// NewCredentialEncryptor creates an encryptor keyed from the application
// secret (auth.jwt_secret).
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{cipher: gcm}, nil
}

// Encrypt encrypts plaintext and returns base64(nonce || ciphertext || tag).
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.cipher.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	minLength := gcmNonceSize + 1 + e.cipher.Overhead()
	if len(data) < minLength {
		return "", ErrCiphertextTooShort
	}

	nonce := data[:gcmNonceSize]
	plaintext, err := e.cipher.Open(nil, nonce, data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// MaskCredential returns a display-safe form showing only the last 4
// characters.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 4 {
		return "****"
	}
	return "****..." + credential[len(credential)-4:]
}

func deriveKey(secret string) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte(credentialEncryptionSalt),
		[]byte(credentialEncryptionInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}
