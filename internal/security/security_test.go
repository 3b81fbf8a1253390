package security

import (
	"strings"
	"testing"
)

func TestHasher(t *testing.T) {
	h := &Hasher{iterations: 1000} // keep the test fast
	digest, err := h.Hash("S3cret!pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	salt, key, ok := strings.Cut(digest, "$")
	if !ok || len(salt) != SaltSize*2 || len(key) != keySize*2 {
		t.Fatalf("unexpected digest format %q", digest)
	}
	if !h.Verify("S3cret!pass", digest) {
		t.Fatalf("expected password to verify")
	}
	if h.Verify("wrong", digest) {
		t.Fatalf("wrong password verified")
	}

	other, _ := h.Hash("S3cret!pass")
	if other == digest {
		t.Fatalf("expected distinct salts")
	}

	for _, bad := range []string{"", "nodollar", "zz$zz", "abcd$"} {
		if h.Verify("S3cret!pass", bad) {
			t.Fatalf("malformed digest %q verified", bad)
		}
	}
}

func TestNewHasherIterations(t *testing.T) {
	if NewHasher().iterations != 100000 {
		t.Fatalf("unexpected iteration count")
	}
}

func TestCipher(t *testing.T) {
	c := NewCipher("dev-secret")
	sealed, err := c.Encrypt("access-token-123")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(sealed, "access-token") {
		t.Fatalf("ciphertext leaks plaintext")
	}
	plain, err := c.Decrypt(sealed)
	if err != nil || plain != "access-token-123" {
		t.Fatalf("decrypt: %q, %v", plain, err)
	}

	if _, err := NewCipher("other").Decrypt(sealed); err == nil {
		t.Fatalf("expected failure with another key")
	}
	if _, err := c.Decrypt("short"); err == nil {
		t.Fatalf("expected failure for garbage input")
	}
}

func TestValidEmail(t *testing.T) {
	for email, want := range map[string]bool{
		"user@example.com":  true,
		"a.b+c@mail.co.uk":  true,
		"missing-at.com":    false,
		"user@nodot":        false,
		"":                  false,
	} {
		if got := ValidEmail(email); got != want {
			t.Errorf("ValidEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestStrongPassword(t *testing.T) {
	for pw, want := range map[string]bool{
		"Abcdef1!":  true,
		"abcdef1!":  false,
		"ABCDEF1!":  false,
		"Abcdefg!":  false,
		"Abcdefg1":  false,
		"Ab1!":      false,
	} {
		if got := StrongPassword(pw); got != want {
			t.Errorf("StrongPassword(%q) = %v, want %v", pw, got, want)
		}
	}
}
