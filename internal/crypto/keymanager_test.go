package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testPrivateKey, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testPrivateKey {
		t.Errorf("round trip = %q, want %q", got, testPrivateKey)
	}
}

func TestDecryptKeyWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testPrivateKey, "correct")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestDecryptKeyRejectsWeakIterationCount(t *testing.T) {
	blob, err := EncryptKey(testPrivateKey, "pw")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(blob, &stored); err != nil {
		t.Fatalf("parsing blob: %v", err)
	}
	stored.Iterations = 1000
	weak, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("marshaling tampered blob: %v", err)
	}

	_, err = DecryptKey(weak, "pw")
	if err == nil {
		t.Fatal("expected error for downgraded iteration count")
	}
	if !strings.Contains(err.Error(), "iteration count") {
		t.Errorf("err = %v, want iteration count rejection", err)
	}
}

func TestDecryptKeyIterationMismatchFailsAuth(t *testing.T) {
	blob, err := EncryptKey(testPrivateKey, "pw")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	// A tampered but floor-passing count derives a different key, so GCM
	// authentication must fail rather than yield garbage plaintext.
	var stored encryptedKeyJSON
	if err := json.Unmarshal(blob, &stored); err != nil {
		t.Fatalf("parsing blob: %v", err)
	}
	stored.Iterations = minPBKDF2Iterations
	tampered, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("marshaling tampered blob: %v", err)
	}

	if _, err := DecryptKey(tampered, "pw"); err == nil {
		t.Fatal("expected decryption failure for altered iteration count")
	}
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	if _, err := EncryptKey(testPrivateKey, ""); err == nil {
		t.Error("expected error for empty password")
	}
	if _, err := EncryptKey("zzzz", "pw"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := EncryptKey("abcd", "pw"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestLoadKeyRawTakesPrecedence(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testPrivateKey, EncryptedKeyPath: "/does/not/exist"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got != testPrivateKey {
		t.Errorf("LoadKey = %q, want %q", got, testPrivateKey)
	}
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testPrivateKey, "pw")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got != testPrivateKey {
		t.Errorf("LoadKey = %q, want %q", got, testPrivateKey)
	}
}

func TestLoadKeyNoSource(t *testing.T) {
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("expected error when no key source is configured")
	}
}
