package secretbox

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"
)

func setKey(t *testing.T) {
	t.Helper()
	UnsafeResetForTests()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 7)
	}
	os.Setenv("SECRETBOX_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))
	t.Cleanup(func() {
		os.Unsetenv("SECRETBOX_MASTER_KEY")
		UnsafeResetForTests()
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	setKey(t)

	msg := "super-secreto ✓"
	ct, err := Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	pt, err := Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	setKey(t)

	ct, err := Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := Decrypt(corrupted); err == nil {
		t.Fatal("expected auth error, got nil")
	}
}

func TestMaybeDecrypt_Plaintext(t *testing.T) {
	setKey(t)
	got, err := MaybeDecrypt("plain-dev-secret")
	if err != nil || got != "plain-dev-secret" {
		t.Fatalf("MaybeDecrypt plain = %q, %v", got, err)
	}
}

func TestEncrypt_ErrorWhenNoKey(t *testing.T) {
	UnsafeResetForTests()
	os.Unsetenv("SECRETBOX_MASTER_KEY")
	t.Cleanup(UnsafeResetForTests)

	if _, err := Encrypt("x"); err == nil {
		t.Fatal("expected error when key missing")
	}
}
