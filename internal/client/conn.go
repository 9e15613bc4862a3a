package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/danmuck/glapctl/internal/observability"
	"github.com/danmuck/glapctl/internal/protocol"
	"github.com/danmuck/glapctl/internal/protocol/session"
	"github.com/danmuck/glapctl/internal/scene"
	"github.com/danmuck/glapctl/internal/transport"
	"github.com/rs/zerolog"
)

// Conn is one accepted connection. Run owns it until it returns.
type Conn struct {
	tr      transport.Transport
	sess    *session.Client
	scene   *scene.Scene
	logger  zerolog.Logger
	onClose func(error)

	closing   atomic.Bool
	closeOnce sync.Once
}

// Run decodes and applies messages in delivery order. The first protocol
// error closes the connection; there is no resynchronization.
func (c *Conn) Run(ctx context.Context) error {
	for {
		buf, err := c.tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.finish(nil)
				return ctx.Err()
			}
			if c.closing.Load() {
				return transport.ErrClosed
			}
			c.finish(err)
			return err
		}

		msg, err := c.sess.Receive(buf)
		if err != nil {
			if c.closing.Load() {
				return transport.ErrClosed
			}
			c.finish(err)
			return err
		}
		observability.RecordMessage(protocol.ToClient.String(), msg.Variant())

		if err := c.scene.Apply(msg); err != nil {
			if errors.Is(err, scene.ErrUnknownEntity) {
				c.logger.Warn().Err(err).Str("variant", msg.Variant()).Msg("skipping update")
				continue
			}
			c.finish(err)
			return err
		}
	}
}

// Close ends the connection from this side. It may be called while Run is
// active; Run then returns transport.ErrClosed.
func (c *Conn) Close() error {
	c.closing.Store(true)
	c.sess.Close()
	err := c.tr.Close()
	c.finish(nil)
	return err
}

func (c *Conn) Phase() session.Phase {
	return c.sess.Phase()
}

// finish tears the connection down and reports why, once.
func (c *Conn) finish(err error) {
	c.closeOnce.Do(func() {
		c.sess.Close()
		_ = c.tr.Close()
		switch {
		case err == nil:
			c.logger.Info().Msg("connection closed")
		case isProtocolError(err):
			observability.RecordProtocolError(protocol.ErrorKind(err))
			c.logger.Error().Err(err).Str("kind", protocol.ErrorKind(err)).Msg("connection closed: protocol error")
		default:
			c.logger.Warn().Err(err).Msg("connection closed: transport error")
		}
		if c.onClose != nil {
			c.onClose(err)
		}
	})
}
