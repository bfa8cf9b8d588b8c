package phi

import (
	"crypto/rand"
	"testing"

	"github.com/rs/zerolog"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestNewSectionEncryptor_KeyLength(t *testing.T) {
	if _, err := NewSectionEncryptor(testKey(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewSectionEncryptor(make([]byte, n)); err == nil {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
}

func TestSectionEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewSectionEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("create encryptor: %v", err)
	}

	cases := []string{
		`{"name":"A","age":34}`,
		`[{"condition":"asthma","year":2015}]`,
		`{}`,
		"",
	}
	for _, plaintext := range cases {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plaintext, err)
		}
		if ciphertext == plaintext {
			t.Fatalf("ciphertext equals plaintext for %q", plaintext)
		}
		decrypted, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plaintext, err)
		}
		if decrypted != plaintext {
			t.Errorf("roundtrip failed: got %q, want %q", decrypted, plaintext)
		}
	}
}

func TestSectionEncryptor_FreshNonces(t *testing.T) {
	enc, err := NewSectionEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("create encryptor: %v", err)
	}

	plaintext := `{"name":"Jane"}`
	ct1, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ct2, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if ct1 == ct2 {
		t.Error("same plaintext encrypted twice produced identical ciphertexts")
	}
}

func TestSectionEncryptor_RejectsBadInput(t *testing.T) {
	enc, err := NewSectionEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("create encryptor: %v", err)
	}

	if _, err := enc.Decrypt("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := enc.Decrypt("AQID"); err == nil {
		t.Error("expected error for ciphertext shorter than nonce")
	}

	other, err := NewSectionEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("create other encryptor: %v", err)
	}
	ct, err := enc.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := other.Decrypt(ct); err == nil {
		t.Error("expected error decrypting with the wrong key")
	}
}

func TestService_DisabledWithoutKey(t *testing.T) {
	svc, err := NewService("", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.IsEnabled() {
		t.Error("expected encryption disabled with empty key")
	}
	if svc.Cipher() != nil {
		t.Error("expected nil cipher when disabled")
	}
}

func TestService_RejectsBadKey(t *testing.T) {
	if _, err := NewService("zzzz", zerolog.Nop()); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := NewService("abcd", zerolog.Nop()); err == nil {
		t.Error("expected error for short key")
	}
}

func TestService_EnabledWithKey(t *testing.T) {
	key := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	svc, err := NewService(key, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.IsEnabled() {
		t.Error("expected encryption enabled")
	}
	if svc.Cipher() == nil {
		t.Fatal("expected non-nil cipher")
	}
}
