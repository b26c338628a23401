package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails parsing, signature
// verification, or claim checks; the Connection Handler treats it as an
// unauthorized handshake (close 4401) without distinguishing the cause.
var ErrInvalidToken = errors.New("auth: invalid token")

// claims is the minimal shape this core requires: a subject naming the
// user id, plus the standard issuer/audience/expiry fields.
type claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256-signed tokens issued by the (out-of-scope)
// auth service, checking issuer, audience and expiry. It only verifies;
// this core never issues tokens.
type JWTVerifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewJWTVerifier creates a verifier for tokens signed with signingKey.
// issuer/audience are optional; an empty string skips that check.
func NewJWTVerifier(signingKey []byte, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{signingKey: signingKey, issuer: issuer, audience: audience}
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (interface{}, error) {
		return v.signingKey, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("%w: unreadable claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return c.Subject, nil
}

// AllowAllVerifier treats the raw token string as the user id without any
// signature check, for local/dev runs with no signing key configured.
type AllowAllVerifier struct{}

// Verify implements Verifier by trusting the caller-supplied token as-is.
func (AllowAllVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	return token, nil
}
