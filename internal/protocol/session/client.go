package session

import (
	"fmt"

	"github.com/danmuck/glapctl/internal/protocol"
)

// Client is the client half of one connection.
type Client struct {
	machine
	cfg           Config
	sentHandshake bool
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.WithDefaults()}
}

// Send encodes msg if it is legal to send now.
func (c *Client) Send(msg protocol.ToServerMsg) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.closedErr(); err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case protocol.Handshake:
		if c.phase != PhaseHandshaking || c.sentHandshake {
			return nil, c.abort(violation(c.phase, m.Variant(), "handshake cannot be renegotiated"))
		}
		b, err := protocol.EncodeToServer(m)
		if err != nil {
			return nil, err
		}
		c.sentHandshake = true
		return b, nil
	default:
		return nil, fmt.Errorf("%w: to_server message %T", protocol.ErrUnknownVariant, msg)
	}
}

// Receive decodes one inbound buffer and checks it against the phase.
// HandshakeAccepted is legal only after Handshake was sent and moves the
// connection to connected; entity updates are legal only once connected.
// The buffer must hold exactly one message.
func (c *Client) Receive(buf []byte) (protocol.ToClientMsg, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.closedErr(); err != nil {
		return nil, err
	}
	msg, off, err := protocol.DecodeToClient(buf, 0)
	if err != nil {
		return nil, c.abort(err)
	}
	if off != len(buf) {
		return nil, c.abort(trailing(msg.Variant(), len(buf)-off))
	}
	switch m := msg.(type) {
	case protocol.HandshakeAccepted:
		if c.phase != PhaseHandshaking {
			return nil, c.abort(violation(c.phase, m.Variant(), "already connected"))
		}
		if !c.sentHandshake {
			return nil, c.abort(violation(c.phase, m.Variant(), "handshake not sent"))
		}
		c.phase = PhaseConnected
		return m, nil
	case protocol.AddCelestialObject, protocol.AddPart, protocol.MovePart:
		if c.phase != PhaseConnected {
			return nil, c.abort(violation(c.phase, m.Variant(), "entity update before handshake accepted"))
		}
		return m, nil
	default:
		return nil, c.abort(fmt.Errorf("%w: to_client message %T", protocol.ErrUnknownVariant, msg))
	}
}
