package security

import (
	"bytes"
	"testing"
)

func testManager(t *testing.T) *EncryptedSecretsManager {
	t.Helper()
	m, err := NewEncryptedSecretsManager(DeriveKeyFromClusterID("encryption"), DeriveKeyFromClusterID("mac"))
	if err != nil {
		t.Fatalf("NewEncryptedSecretsManager() error = %v", err)
	}
	return m
}

func TestEncryptedSecretsManager_WriteAndReadSecret(t *testing.T) {
	m := testManager(t)

	ref, err := m.WriteSecret([]byte("hunter2"), "principal-1")
	if err != nil {
		t.Fatalf("WriteSecret() error = %v", err)
	}
	if ref.URN == "" {
		t.Fatal("WriteSecret() returned empty URN")
	}

	plaintext, err := m.ReadSecret(ref)
	if err != nil {
		t.Fatalf("ReadSecret() error = %v", err)
	}
	if !bytes.Equal(plaintext, []byte("hunter2")) {
		t.Errorf("ReadSecret() = %q, want hunter2", plaintext)
	}
}

func TestEncryptedSecretsManager_URNFormat(t *testing.T) {
	m := testManager(t)

	ref, err := m.WriteSecret([]byte("secret"), "principal-42")
	if err != nil {
		t.Fatalf("WriteSecret() error = %v", err)
	}

	want := "urn:polaris-secret:aes256gcm:principal-42:1"
	if ref.URN != want {
		t.Errorf("URN = %v, want %v", ref.URN, want)
	}
}

func TestEncryptedSecretsManager_OrdinalIncrements(t *testing.T) {
	m := testManager(t)

	ref1, _ := m.WriteSecret([]byte("first"), "principal-1")
	ref2, _ := m.WriteSecret([]byte("second"), "principal-1")

	if ref1.URN == ref2.URN {
		t.Error("expected distinct URNs for successive secrets on the same entity")
	}
}

func TestEncryptedSecretsManager_TamperedCiphertextFailsIntegrityCheck(t *testing.T) {
	m := testManager(t)

	ref, err := m.WriteSecret([]byte("hunter2"), "principal-1")
	if err != nil {
		t.Fatalf("WriteSecret() error = %v", err)
	}

	tampered := append([]byte{}, ref.ReferencePayload...)
	tampered[len(tampered)-1] ^= 0xFF
	ref.ReferencePayload = tampered

	if _, err := m.ReadSecret(ref); err == nil {
		t.Fatal("expected integrity check failure on tampered ciphertext, got nil")
	}
}

func TestEncryptedSecretsManager_WrongKeyFailsToDecrypt(t *testing.T) {
	m := testManager(t)
	other, err := NewEncryptedSecretsManager(DeriveKeyFromClusterID("different"), DeriveKeyFromClusterID("mac"))
	if err != nil {
		t.Fatalf("NewEncryptedSecretsManager() error = %v", err)
	}

	ref, err := m.WriteSecret([]byte("hunter2"), "principal-1")
	if err != nil {
		t.Fatalf("WriteSecret() error = %v", err)
	}

	if _, err := other.ReadSecret(ref); err == nil {
		t.Fatal("expected decryption failure with wrong key, got nil")
	}
}

func TestEncryptedSecretsManager_RejectsEmptySecret(t *testing.T) {
	m := testManager(t)
	if _, err := m.WriteSecret(nil, "principal-1"); err == nil {
		t.Error("expected error writing empty secret, got nil")
	}
}

func TestNewEncryptedSecretsManager_RejectsShortKeys(t *testing.T) {
	if _, err := NewEncryptedSecretsManager([]byte("short"), DeriveKeyFromClusterID("mac")); err == nil {
		t.Error("expected error for short encryption key, got nil")
	}
	if _, err := NewEncryptedSecretsManager(DeriveKeyFromClusterID("encryption"), []byte("short")); err == nil {
		t.Error("expected error for short mac key, got nil")
	}
}
