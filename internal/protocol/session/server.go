package session

import (
	"fmt"

	"github.com/danmuck/glapctl/internal/protocol"
)

// Server is the server half of one connection.
type Server struct {
	machine
	cfg      Config
	hello    *protocol.Handshake
	entities *EntityLedger
}

func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg.WithDefaults(), entities: NewEntityLedger()}
}

// Entities exposes what this connection has announced so far.
func (s *Server) Entities() *EntityLedger {
	return s.entities
}

// Send encodes an entity update for a connected client. MovePart for a part
// this connection never announced fails with ErrUnknownEntity and leaves the
// connection open.
func (s *Server) Send(msg protocol.ToClientMsg) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closedErr(); err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case protocol.HandshakeAccepted:
		if s.phase == PhaseHandshaking {
			return s.accept()
		}
		return nil, s.abort(violation(s.phase, m.Variant(), "handshake cannot be renegotiated"))
	case protocol.AddCelestialObject:
		if err := s.requireConnected(m.Variant()); err != nil {
			return nil, err
		}
		b, err := protocol.EncodeToClient(m)
		if err != nil {
			return nil, err
		}
		s.entities.Announce(EntityCelestialObject, m.ID)
		return b, nil
	case protocol.AddPart:
		if err := s.requireConnected(m.Variant()); err != nil {
			return nil, err
		}
		b, err := protocol.EncodeToClient(m)
		if err != nil {
			return nil, err
		}
		s.entities.Announce(EntityPart, m.ID)
		return b, nil
	case protocol.MovePart:
		if err := s.requireConnected(m.Variant()); err != nil {
			return nil, err
		}
		if !s.entities.Has(EntityPart, m.ID) {
			return nil, fmt.Errorf("%w: part %d", ErrUnknownEntity, m.ID)
		}
		return protocol.EncodeToClient(m)
	default:
		return nil, fmt.Errorf("%w: to_client message %T", protocol.ErrUnknownVariant, msg)
	}
}

func (s *Server) requireConnected(variant string) error {
	if s.phase != PhaseConnected {
		return s.abort(violation(s.phase, variant, "entity update before handshake accepted"))
	}
	return nil
}
