package qrtoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Cipher seals token payloads with AES-256-GCM under the process-wide secret
// key. The sealed output is base64url so it can be embedded directly in a QR
// image. Any modification to the ciphertext fails authentication on Open.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 16/24/32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("qr cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("qr cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plain and returns an opaque base64url string with the nonce
// prepended.
func (c *Cipher) Seal(plain []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

var errMalformed = errors.New("malformed token")

// Open decodes and decrypts a sealed string. It fails on any tampering,
// truncation or wrong-key input.
func (c *Cipher) Open(s string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errMalformed
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, errMalformed
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errMalformed
	}
	return plain, nil
}
