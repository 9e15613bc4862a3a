package session

import "github.com/danmuck/glapctl/internal/protocol"

// Handshake encodes the opening message with the configured protocol
// version. token is passed through verbatim; nil requests a new anonymous
// session. It is legal exactly once, before anything is received.
func (c *Client) Handshake(token *string) ([]byte, error) {
	return c.Send(protocol.Handshake{ProtocolVersion: c.cfg.ProtocolVersion, Session: token})
}

// Receive decodes the client's handshake. It is the only message a server
// accepts, and only while handshaking; the version must be supported.
func (s *Server) Receive(buf []byte) (protocol.Handshake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closedErr(); err != nil {
		return protocol.Handshake{}, err
	}
	msg, off, err := protocol.DecodeToServer(buf, 0)
	if err != nil {
		return protocol.Handshake{}, s.abort(err)
	}
	if off != len(buf) {
		return protocol.Handshake{}, s.abort(trailing(msg.Variant(), len(buf)-off))
	}
	switch m := msg.(type) {
	case protocol.Handshake:
		if s.phase != PhaseHandshaking {
			return protocol.Handshake{}, s.abort(violation(s.phase, m.Variant(), "handshake cannot be renegotiated"))
		}
		if s.hello != nil {
			return protocol.Handshake{}, s.abort(violation(s.phase, m.Variant(), "duplicate handshake"))
		}
		if !s.cfg.Supports(m.ProtocolVersion) {
			return protocol.Handshake{}, s.abort(&ViolationError{
				Phase:   s.phase,
				Variant: m.Variant(),
				Reason:  "version " + m.ProtocolVersion,
				Cause:   ErrUnsupportedVersion,
			})
		}
		s.hello = &m
		return m, nil
	default:
		return protocol.Handshake{}, s.abort(violation(s.phase, msg.Variant(), "unexpected message"))
	}
}

// Accept answers a received handshake with HandshakeAccepted and moves the
// connection to the connected phase.
func (s *Server) Accept() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accept()
}

func (s *Server) accept() ([]byte, error) {
	if err := s.closedErr(); err != nil {
		return nil, err
	}
	if s.phase != PhaseHandshaking || s.hello == nil {
		return nil, s.abort(violation(s.phase, "HandshakeAccepted", "no handshake to accept"))
	}
	b, err := protocol.EncodeToClient(protocol.HandshakeAccepted{})
	if err != nil {
		return nil, err
	}
	s.phase = PhaseConnected
	return b, nil
}

// Hello returns the accepted or pending client handshake.
func (s *Server) Hello() (protocol.Handshake, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hello == nil {
		return protocol.Handshake{}, false
	}
	return *s.hello, true
}
