package cryptoutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	ciphertext, err := Encrypt(key, "super-secret-api-key")
	require.NoError(t, err)
	assert.NotEqual(t, "super-secret-api-key", ciphertext)

	plaintext, err := Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-api-key", plaintext)
}

func TestDecryptWrongKeyFallsBackToFailure(t *testing.T) {
	key1 := make([]byte, 32)
	key2 := make([]byte, 32)
	key2[0] = 1

	ciphertext, err := Encrypt(key1, "secret")
	require.NoError(t, err)

	_, err = Decrypt(key2, ciphertext)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptLegacyPlaintextFails(t *testing.T) {
	key := make([]byte, 32)
	_, err := Decrypt(key, "plain-unencrypted-value")
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestLoadOrCreateKeyGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "encryption.key")

	key1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, key1, 32)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	key2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}
