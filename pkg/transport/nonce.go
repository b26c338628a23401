package transport

import (
	"crypto/rand"
	"encoding/base64"
)

// generateNonce produces a short random token for a `ping` frame's nonce
// field: 9 random bytes, URL-safe base64 with no padding.
func generateNonce() string {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
