package codec

import (
	"fmt"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Codec names accepted by New.
const (
	NameBase64 = "base64"
	NameAESGCM = "aesgcm"
)

// New builds the named codec. For aesgcm the key is derived from secret with
// a salt bound to owner, so two vaults sharing a secret still use distinct keys.
func New(name, secret, owner string) (driven.Codec, error) {
	switch name {
	case NameBase64:
		return Base64{}, nil
	case NameAESGCM:
		if secret == "" {
			return nil, fmt.Errorf("codec %s: empty secret", name)
		}
		return NewAESGCM(DeriveKey(secret, "passvault/"+owner))
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
