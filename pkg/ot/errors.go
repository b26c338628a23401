package ot

import "errors"

var (
	// ErrInvalidOperation is returned when an operation's retain+delete
	// length doesn't match the document it's being applied to, or when a
	// transform/compose pair have incompatible base/target lengths.
	ErrInvalidOperation = errors.New("ot: invalid operation")

	// ErrIndexOutOfBounds is returned when a component would step past the
	// end of the buffer it's being applied to.
	ErrIndexOutOfBounds = errors.New("ot: index out of bounds")
)
