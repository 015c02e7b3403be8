// Package cryptoutil provides symmetric authenticated encryption for
// credentials at rest, mirroring the original Python implementation's
// Fernet-based CryptoManager: a key file generated on first run with
// owner-only permissions, and a decrypt path that treats failures as
// legacy plaintext rather than hard errors.
package cryptoutil

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptFailed is returned by Decrypt when the ciphertext cannot be
// authenticated with the current key. Callers treat this as a signal to
// fall back to legacy plaintext handling, not a fatal error.
var ErrDecryptFailed = errors.New("cryptoutil: decryption failed")

// LoadOrCreateKey reads the key at path, generating a new random key and
// writing it with 0600 permissions if the file does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("cryptoutil: key file %s has wrong length %d, want %d", path, len(data), chacha20poly1305.KeySize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cryptoutil: reading key file: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptoutil: generating key: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("cryptoutil: creating key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("cryptoutil: writing key file: %w", err)
	}
	return key, nil
}

// Encrypt returns a base64-encoded nonce||ciphertext for plaintext under key.
func Encrypt(key []byte, plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cryptoutil: generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It returns ErrDecryptFailed (wrapped) on any
// malformed or unauthenticated input so callers can fall back to treating
// the value as legacy plaintext.
func Decrypt(key []byte, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: not base64: %v", ErrDecryptFailed, err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: init cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return string(plaintext), nil
}
