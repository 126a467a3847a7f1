package driven

import "errors"

var (
	// ErrMalformedEncoding is returned by Codec.Decode when the stored form
	// was not produced by the codec.
	ErrMalformedEncoding = errors.New("malformed encoding")

	// ErrInvalidUTF8 is returned by Codec.Decode when the decoded bytes are
	// not valid UTF-8 text.
	ErrInvalidUTF8 = errors.New("decoded value is not valid utf-8")
)

// Codec is the reversible transform applied to credential text at rest.
// Decode(Encode(p)) must equal p for every string p.
type Codec interface {
	Encode(plaintext string) (string, error)
	Decode(stored string) (string, error)
}
