// Package protocol defines the WebSocket wire messages exchanged between
// client editors and the collaborative document core, and the close codes
// used to end a session.
package protocol

// Version is the protocol version advertised on every sync frame.
const Version = 1

// WebSocket close codes sent when ending a connection. These sit in the
// 4000-4999 application-defined range reserved by RFC 6455.
const (
	CloseNormal            = 4000
	CloseUnauthorized      = 4401
	CloseProtocolViolation = 4008
	CloseSlowConsumer      = 4013
)

// SystemAuthorID is the author id reserved for operations not authored by
// a connected user. It sorts before every real user id in the
// insert-vs-insert tie-break since JWT-issued user ids are always non-empty.
const SystemAuthorID = ""

// Error kinds sent in an `error` frame.
const (
	ErrKindRateLimited = "rate_limited"
	ErrKindBadRequest  = "bad_request"
	ErrKindInternal    = "internal"
)
