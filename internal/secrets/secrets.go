// Package secrets generates and compares the random capability
// secrets embedded in offer and proof URLs.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// Generate returns n cryptographically random bytes.
func Generate(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return buf, nil
}

// Equal compares two secrets in constant time. An empty secret never
// matches anything, so an absent message field cannot pass the check.
func Equal(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
