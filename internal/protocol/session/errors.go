package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/glapctl/internal/protocol"
)

var (
	ErrClosed             = errors.New("session: connection closed")
	ErrUnsupportedVersion = errors.New("session: unsupported protocol version")
	ErrUnknownEntity      = errors.New("session: unknown entity")
)

// ViolationError reports a message that is well formed but illegal in the
// current phase. It matches protocol.ErrProtocolViolation with errors.Is.
type ViolationError struct {
	Phase   Phase
	Variant string
	Reason  string
	Cause   error
}

func (e *ViolationError) Error() string {
	msg := fmt.Sprintf("protocol: protocol violation: %s in %s phase", e.Variant, e.Phase)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ViolationError) Is(target error) bool {
	return target == protocol.ErrProtocolViolation
}

func (e *ViolationError) Unwrap() error {
	return e.Cause
}

func violation(phase Phase, variant, reason string) *ViolationError {
	return &ViolationError{Phase: phase, Variant: variant, Reason: reason}
}
