package session

import (
	"fmt"
	"sync"

	"github.com/danmuck/glapctl/internal/protocol"
)

// Phase is where a connection is in its lifetime.
type Phase uint8

const (
	PhaseHandshaking Phase = iota
	PhaseConnected
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshaking:
		return "handshaking"
	case PhaseConnected:
		return "connected"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// machine holds what the client and server halves share: the phase and the
// error that closed the connection. mu serializes every exported method so
// Close may come from another goroutine.
type machine struct {
	mu    sync.Mutex
	phase Phase
	err   error
}

func (m *machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Err returns the failure that closed the connection, if any.
func (m *machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close tears the connection down. Later calls fail with ErrClosed.
func (m *machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseClosed
}

func (m *machine) closedErr() error {
	if m.phase != PhaseClosed {
		return nil
	}
	if m.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, m.err)
	}
	return ErrClosed
}

// abort closes the connection for err and returns err.
func (m *machine) abort(err error) error {
	if m.phase != PhaseClosed {
		m.phase = PhaseClosed
		m.err = err
	}
	return err
}

func trailing(variant string, extra int) error {
	return fmt.Errorf("%w: %d trailing bytes after %s", protocol.ErrInvalidEncoding, extra, variant)
}
