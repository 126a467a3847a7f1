package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// ErrKeySize is returned by NewAESGCM for keys that are not 32 bytes.
var ErrKeySize = errors.New("aes-256-gcm key must be 32 bytes")

// Compile-time interface satisfaction check.
var _ driven.Codec = (*AESGCM)(nil)

// AESGCM encrypts text with AES-256-GCM. The stored form is base64 of the
// 12-byte nonce followed by the ciphertext and tag.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AESGCM codec from a 32-byte key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &AESGCM{aead: gcm}, nil
}

// DeriveKey stretches a passphrase into a 32-byte key with argon2id.
// The same secret and salt always yield the same key.
func DeriveKey(secret, salt string) []byte {
	return argon2.IDKey([]byte(secret), []byte(salt), 1, 64*1024, 4, 32)
}

// Encode implements driven.Codec.
func (c *AESGCM) Encode(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends to nonce, producing nonce || ciphertext || tag.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode implements driven.Codec. Tampered or foreign ciphertexts fail with
// driven.ErrMalformedEncoding.
func (c *AESGCM) Decode(stored string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", driven.ErrMalformedEncoding, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", driven.ErrMalformedEncoding)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: gcm.Open: %v", driven.ErrMalformedEncoding, err)
	}
	if !utf8.Valid(plaintext) {
		return "", driven.ErrInvalidUTF8
	}
	return string(plaintext), nil
}
