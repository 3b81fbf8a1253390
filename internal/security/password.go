// Package security hashes passwords and encrypts provider secrets.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100_000
	SaltSize   = 32
	keySize    = sha256.Size
)

var ErrMalformedDigest = errors.New("malformed password digest")

// Hasher produces and checks PBKDF2-SHA256 digests of the form
// "<salt hex>$<hash hex>".
type Hasher struct {
	iterations int
}

func NewHasher() *Hasher {
	return &Hasher{iterations: Iterations}
}

func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, h.iterations, keySize, sha256.New)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(key), nil
}

// Verify reports whether password matches digest. Malformed digests never
// match.
func (h *Hasher) Verify(password, digest string) bool {
	saltHex, keyHex, ok := strings.Cut(digest, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, h.iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
