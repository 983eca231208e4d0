package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the secretbox key length in bytes.
const KeySize = 32

const nonceSize = 24

// ErrDecrypt is returned when a token fails authentication or is malformed.
var ErrDecrypt = errors.New("cannot decrypt token")

// Cipher is a reversible transform applied to message bodies before storage
// and after retrieval.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// SecretBox implements Cipher with NaCl secretbox. Tokens are
// base64(nonce || ciphertext).
type SecretBox struct {
	key [KeySize]byte
}

// NewSecretBox builds a cipher from a base64-encoded 32-byte key.
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("invalid key size: %d", len(raw))
	}

	var sb SecretBox
	copy(sb.key[:], raw)
	return &sb, nil
}

// GenerateKey returns a fresh random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals the plaintext under a random nonce.
func (c *SecretBox) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Tokens that are not valid
// base64 are treated as legacy plaintext and returned unchanged; valid
// base64 that fails authentication yields ErrDecrypt.
func (c *SecretBox) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return token, nil
	}
	if len(raw) < nonceSize {
		return "", ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
