package cardkey

import (
	"crypto/rand"
	"fmt"
)

const (
	codeLength   = 16
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
)

// NewCode returns a fresh random card key code. The alphabet skips the
// easily confused characters (0/O, 1/l/I) since codes are typed in by
// end users.
func NewCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate card key code: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
