package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds       = errors.New("protocol: out of bounds")
	ErrInvalidEncoding   = errors.New("protocol: invalid encoding")
	ErrUnknownVariant    = errors.New("protocol: unknown variant")
	ErrUnknownMessageTag = errors.New("protocol: unknown message tag")
	ErrProtocolViolation = errors.New("protocol: protocol violation")
)

// DecodeError locates a failed field read inside one message.
type DecodeError struct {
	Variant string
	Field   string
	Offset  int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (%s.%s at offset %d)", e.Err, e.Variant, e.Field, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short stable label for err, used as a metrics label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, ErrUnknownVariant):
		return "unknown_variant"
	case errors.Is(err, ErrUnknownMessageTag):
		return "unknown_message_tag"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	default:
		return "other"
	}
}
