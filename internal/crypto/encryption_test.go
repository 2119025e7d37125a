package crypto

import (
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundtrip(t *testing.T) {
	svc, err := NewEncryptionService(testKey)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := "sk-very-secret-api-key"
	encrypted, err := svc.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if encrypted == plaintext {
		t.Error("ciphertext equals plaintext")
	}

	decrypted, err := svc.Decrypt(encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptEmptyString(t *testing.T) {
	svc, _ := NewEncryptionService(testKey)

	encrypted, err := svc.Encrypt("")
	if err != nil || encrypted != "" {
		t.Errorf("empty plaintext should stay empty, got %q, %v", encrypted, err)
	}
	decrypted, err := svc.Decrypt("")
	if err != nil || decrypted != "" {
		t.Errorf("empty ciphertext should stay empty, got %q, %v", decrypted, err)
	}
}

func TestEncryptNondeterministic(t *testing.T) {
	svc, _ := NewEncryptionService(testKey)

	a, _ := svc.Encrypt("same input")
	b, _ := svc.Encrypt("same input")
	if a == b {
		t.Error("two encryptions with fresh nonces must differ")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	svc, _ := NewEncryptionService(testKey)
	other, _ := NewEncryptionService(strings.Repeat("ff", 32))

	encrypted, _ := svc.Encrypt("secret")
	if _, err := other.Decrypt(encrypted); err == nil {
		t.Error("decryption with a different master key should fail")
	}
}

func TestDecryptGarbage(t *testing.T) {
	svc, _ := NewEncryptionService(testKey)

	if _, err := svc.Decrypt("not base64!!!"); err == nil {
		t.Error("invalid base64 should error")
	}
	if _, err := svc.Decrypt("c2hvcnQ="); err == nil {
		t.Error("ciphertext shorter than the nonce should error")
	}
}

func TestNewEncryptionServiceValidation(t *testing.T) {
	if _, err := NewEncryptionService(""); err == nil {
		t.Error("empty key should be rejected")
	}
	if _, err := NewEncryptionService("zzzz"); err == nil {
		t.Error("non-hex key should be rejected")
	}
	if _, err := NewEncryptionService("abcd"); err == nil {
		t.Error("short key should be rejected")
	}
}
