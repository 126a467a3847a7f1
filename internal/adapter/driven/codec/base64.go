// Package codec provides the reversible transforms applied to credential
// text before it is stored.
package codec

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Codec = Base64{}

// Base64 stores text as standard padded base64.
//
// This is obfuscation only. Anyone with access to the stored bytes can
// recover the plaintext. Use AESGCM when confidentiality matters.
type Base64 struct{}

// Encode implements driven.Codec.
func (Base64) Encode(plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

// Decode implements driven.Codec.
func (Base64) Decode(stored string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", driven.ErrMalformedEncoding, err)
	}
	if !utf8.Valid(data) {
		return "", driven.ErrInvalidUTF8
	}
	return string(data), nil
}
