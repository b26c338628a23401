package document

import "errors"

var (
	// ErrFutureVersion is returned when a client claims a base_version the
	// server has not produced yet. The connection is treated as broken
	// (close 4008) since a well-behaved client can never observe a future
	// version.
	ErrFutureVersion = errors.New("document: client base version is ahead of the server")

	// ErrVersionTooOld is returned when a client's base_version has fallen
	// out of the retained history window. The client must be resynced
	// with a fresh snapshot rather than rebased.
	ErrVersionTooOld = errors.New("document: client base version is older than the retained history")
)
