package secrets

import (
	"bytes"
	"testing"
)

func TestSealOpen(t *testing.T) {
	key, err := GenerateRandomKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	plaintext := []byte("hunter2")

	sealed, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed value contains plaintext")
	}

	opened, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if !bytes.Equal(plaintext, opened) {
		t.Errorf("Opened value doesn't match original. Got %s, want %s", opened, plaintext)
	}
}

func TestOpenWrongKey(t *testing.T) {
	key, _ := GenerateRandomKey()
	other, _ := GenerateRandomKey()

	sealed, err := Seal([]byte("value"), key)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	if _, err := Open(sealed, other); err == nil {
		t.Error("Expected error opening with wrong key")
	}
}

func TestOpenTruncatedCiphertext(t *testing.T) {
	key, _ := GenerateRandomKey()
	if _, err := Open([]byte("short"), key); err == nil {
		t.Error("Expected error for truncated ciphertext")
	}
}

func TestNewKeyInvalidSize(t *testing.T) {
	if _, err := NewKey([]byte("too short")); err == nil {
		t.Error("Expected error for invalid key size")
	}
}

func TestKeyFromEnv(t *testing.T) {
	t.Setenv("TOOLGATE_SECRETS_KEY", "")
	if _, err := KeyFromEnv(); err == nil {
		t.Error("Expected error for missing env key")
	}

	t.Setenv("TOOLGATE_SECRETS_KEY", "not-hex")
	if _, err := KeyFromEnv(); err == nil {
		t.Error("Expected error for non-hex env key")
	}

	t.Setenv("TOOLGATE_SECRETS_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	if _, err := KeyFromEnv(); err != nil {
		t.Errorf("Expected valid key, got error: %v", err)
	}
}
