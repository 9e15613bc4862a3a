package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/glapctl/internal/observability"
	"github.com/danmuck/glapctl/internal/protocol"
	"github.com/danmuck/glapctl/internal/protocol/session"
	"github.com/danmuck/glapctl/internal/transport"
	"github.com/rs/zerolog"
)

// conn drives one client. The reader goroutine and the tick loop share the
// session, which serializes its own methods.
type conn struct {
	srv    *Server
	tr     transport.Transport
	logger zerolog.Logger
	sess   *session.Server
	token  string
}

// serveConn runs one connection to completion and reports how it ended.
func (s *Server) serveConn(ctx context.Context, tr transport.Transport, remote, kind string) observability.ConnOutcome {
	c := &conn{
		srv:    s,
		tr:     tr,
		logger: s.logger.With().Str("remote", remote).Str("transport", kind).Logger(),
		sess:   session.NewServer(s.cfg.Session),
	}
	defer tr.Close()

	err := c.run(ctx)
	outcome := observability.ConnOutcome{Upgraded: true, Session: c.token}
	switch {
	case err == nil || errors.Is(err, context.Canceled):
		outcome.Result = observability.ResultClosed
		c.logger.Info().Msg("connection closed")
	case isProtocolError(err):
		outcome.Result = observability.ResultProtocolError
		outcome.Kind = protocol.ErrorKind(err)
		observability.RecordProtocolError(outcome.Kind)
		c.logger.Error().Err(err).Str("kind", outcome.Kind).Msg("connection closed: protocol error")
	default:
		outcome.Result = observability.ResultTransportError
		c.logger.Warn().Err(err).Msg("connection closed: transport error")
	}
	observability.RecordConnection(kind, outcome.Result)
	return outcome
}

func (c *conn) run(ctx context.Context) error {
	hello, err := c.handshake(ctx)
	if err != nil {
		return err
	}

	rec, resumed := c.srv.registry.Resolve(hello.Session)
	defer c.srv.registry.Release(rec.Token)
	c.token = rec.Token
	observability.SessionOpened()
	defer observability.SessionClosed()
	c.logger = c.logger.With().Str("session", rec.Token).Logger()
	c.logger.Info().Bool("resumed", resumed).Bool("anonymous", rec.Anonymous).Msg("handshake accepted")

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go c.readLoop(ctx, cancel)

	for _, msg := range c.srv.world.Announcements() {
		if err := c.send(ctx, msg); err != nil {
			return err
		}
	}

	start := time.Now()
	ticker := time.NewTicker(c.srv.cfg.TickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
			for _, move := range c.srv.world.Moves(time.Since(start)) {
				if err := c.send(ctx, move); err != nil {
					return err
				}
			}
		}
	}
}

// handshake waits for the client's Handshake and answers HandshakeAccepted.
func (c *conn) handshake(ctx context.Context) (protocol.Handshake, error) {
	hctx, cancel := context.WithTimeout(ctx, c.srv.cfg.Session.HandshakeTimeout)
	defer cancel()

	buf, err := c.tr.Recv(hctx)
	if err != nil {
		return protocol.Handshake{}, fmt.Errorf("server: await handshake: %w", err)
	}
	hello, err := c.sess.Receive(buf)
	if err != nil {
		return protocol.Handshake{}, err
	}
	accepted, err := c.sess.Accept()
	if err != nil {
		return protocol.Handshake{}, err
	}
	observability.RecordMessage(protocol.ToServer.String(), hello.Variant())

	if err := c.tr.Send(hctx, accepted); err != nil {
		return protocol.Handshake{}, fmt.Errorf("server: send handshake accepted: %w", err)
	}
	observability.RecordMessage(protocol.ToClient.String(), "HandshakeAccepted")
	return hello, nil
}

// readLoop watches for client traffic after the handshake. Every message is
// a violation once connected; a read error ends the connection.
func (c *conn) readLoop(ctx context.Context, cancel context.CancelCauseFunc) {
	for {
		buf, err := c.tr.Recv(ctx)
		if err != nil {
			cancel(err)
			return
		}
		_, err = c.sess.Receive(buf)
		if err != nil {
			cancel(err)
			return
		}
	}
}

func (c *conn) send(ctx context.Context, msg protocol.ToClientMsg) error {
	b, err := c.sess.Send(msg)
	if err != nil {
		if errors.Is(err, session.ErrUnknownEntity) {
			c.logger.Warn().Err(err).Msg("dropping update for unannounced entity")
			return nil
		}
		if errors.Is(err, session.ErrClosed) {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
		}
		return err
	}
	if err := c.tr.Send(ctx, b); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return err
	}
	observability.RecordMessage(protocol.ToClient.String(), msg.Variant())
	return nil
}

func isProtocolError(err error) bool {
	switch protocol.ErrorKind(err) {
	case "none", "other":
		return false
	default:
		return true
	}
}
