// Package secret provides symmetric encryption for stored connection
// passwords. Passwords are encrypted at rest with AES-256-GCM using a key
// derived from process configuration.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/tablelink/tablelink/pkg/errors"
)

// Cipher encrypts and decrypts short secrets with a fixed symmetric key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit key from the given key material and returns
// a ready-to-use cipher. The key material may be any non-empty string.
func NewCipher(keyMaterial string) (*Cipher, error) {
	if keyMaterial == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "encryption key must not be empty")
	}

	key := sha256.Sum256([]byte(keyMaterial))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize GCM")
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "failed to generate nonce")
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or truncated input yields an error,
// never a panic.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid encrypted payload encoding")
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New(errors.ErrorTypeConfig, "encrypted payload too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "failed to decrypt payload")
	}

	return string(plaintext), nil
}
