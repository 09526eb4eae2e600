// Package cipher encrypts message bodies at rest.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DefaultSecret is used when CHAT_ENCRYPTION_KEY is unset. Refused in production.
const DefaultSecret = "default-chat-secret-key"

const (
	keySize  = 32
	hkdfInfo = "lanchat-message-body-v1"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Cipher is a symmetric, reversible transform of message content
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESGCM encrypts with AES-256-GCM under a key derived from a shared secret.
// Output is base64(nonce || ciphertext).
type AESGCM struct {
	aead cipher.AEAD
}

// New derives the AES key from secret with HKDF-SHA256
func New(secret string) (*AESGCM, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

func (c *AESGCM) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESGCM) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// IsDefaultSecret reports whether secret is the built-in fallback
func IsDefaultSecret(secret string) bool {
	return secret == "" || secret == DefaultSecret
}
