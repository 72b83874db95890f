package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns n random bytes as an upper-case hex string, used for
// payment receipt references.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NewSessionID returns an opaque 32-byte session token. The token carries no
// meaning; the registry record keyed by account id is authoritative.
func NewSessionID() (string, error) {
	byt := make([]byte, 32)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return hex.EncodeToString(byt), nil
}
