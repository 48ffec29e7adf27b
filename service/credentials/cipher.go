// Package credentials seals secrets kept in the database with a key derived
// from the operator's API key.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// ErrCorrupted means a sealed value could not be opened, usually because
// API_KEY changed since it was written.
var ErrCorrupted = errors.New("sealed value corrupted")

type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(masterPassword string) (*Cipher, error) {
	if masterPassword == "" {
		return nil, fmt.Errorf("master password is required")
	}

	key, err := deriveKey(masterPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: gcm}, nil
}

func deriveKey(password string) ([]byte, error) {
	salt := []byte("pushbridge-secrets-salt-v1")
	return scrypt.Key([]byte(password), salt, 32768, 8, 1, 32)
}

// Seal encrypts plaintext and returns it as unpadded base64url.
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Open(sealed string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	if len(data) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCorrupted)
	}

	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	return string(plaintext), nil
}
