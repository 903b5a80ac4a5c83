package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	NonceSize = 24
)

// Key is the symmetric key sealing secret values at rest.
type Key [KeySize]byte

// NewKey wraps raw key bytes, enforcing the exact size.
func NewKey(keyBytes []byte) (*Key, error) {
	if len(keyBytes) != KeySize {
		return nil, fmt.Errorf("key must be exactly %d bytes, got %d", KeySize, len(keyBytes))
	}

	var key Key
	copy(key[:], keyBytes)
	return &key, nil
}

// KeyFromEnv loads the store key from the TOOLGATE_SECRETS_KEY environment
// variable (64 hex characters).
func KeyFromEnv() (*Key, error) {
	keyHex := os.Getenv("TOOLGATE_SECRETS_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("TOOLGATE_SECRETS_KEY environment variable is required")
	}

	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TOOLGATE_SECRETS_KEY: %w", err)
	}
	return NewKey(keyBytes)
}

// GenerateRandomKey creates a fresh random key.
func GenerateRandomKey() (*Key, error) {
	var key Key
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return &key, nil
}

// Seal encrypts a secret value with a random nonce prepended.
func Seal(plaintext []byte, key *Key) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, (*[KeySize]byte)(key)), nil
}

// Open decrypts a value produced by Seal. The caller must zero or drop
// the returned plaintext as soon as the call it serves is dispatched.
func Open(ciphertext []byte, key *Key) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, (*[KeySize]byte)(key))
	if !ok {
		return nil, fmt.Errorf("decryption failed")
	}

	return plaintext, nil
}
