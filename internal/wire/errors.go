package wire

import "errors"

var (
	// ErrShortFrame is returned when a buffer is too small to hold even the
	// fixed-size header of the opcode it claims to be.
	ErrShortFrame = errors.New("wire: frame too short for its opcode")

	// ErrMalformed is returned when a frame's declared length field is
	// inconsistent with the bytes actually available, or exceeds the
	// protocol's payload/reply bound.
	ErrMalformed = errors.New("wire: frame length field out of bounds")

	// ErrUnknownOpcode is returned when a frame's opcode is not one of the
	// seven defined variants. The daemon treats this the same as any other
	// protocol violation: reply REP{rc: -EPROTO} and keep the session open.
	ErrUnknownOpcode = errors.New("wire: unknown opcode")
)
