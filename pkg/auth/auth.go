// Package auth defines the pluggable auth interface consumed once per
// connection at handshake time: verify a bearer token and recover the
// user id it names. Token issuance is out of scope; this package only
// verifies tokens minted elsewhere.
package auth

import "context"

// Verifier validates a token from the WebSocket handshake and returns the
// user id it authenticates, or an error if the token is missing, malformed,
// expired, or otherwise rejected.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}
