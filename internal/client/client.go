// Package client is the rendering client's connection runtime: it dials a
// server, performs the handshake, and feeds entity updates into a scene
// until the connection ends.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/glapctl/internal/logging"
	"github.com/danmuck/glapctl/internal/observability"
	"github.com/danmuck/glapctl/internal/protocol"
	"github.com/danmuck/glapctl/internal/protocol/session"
	"github.com/danmuck/glapctl/internal/scene"
	"github.com/danmuck/glapctl/internal/sessionstore"
	"github.com/danmuck/glapctl/internal/transport"
	"github.com/rs/zerolog"
)

var (
	ErrURLRequired       = errors.New("client: url required")
	ErrUnsupportedScheme = errors.New("client: unsupported url scheme")
)

type Config struct {
	URL                string
	MaxConnectAttempts int
	Session            session.Config
	// Store supplies the session token presented in the handshake. Nil
	// connects anonymously.
	Store sessionstore.Store
	// Renderer observes scene changes. Optional.
	Renderer scene.Renderer
	// OnClose is called exactly once per connection with the error that
	// ended it, or nil after a local close.
	OnClose func(err error)
}

type Client struct {
	cfg    Config
	scene  *scene.Scene
	rng    *rand.Rand
	logger zerolog.Logger
}

func New(cfg Config) (*Client, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, ErrURLRequired
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "tcp":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	cfg.Session = cfg.Session.WithDefaults()
	logger := logging.New("client")
	return &Client{
		cfg:    cfg,
		scene:  scene.New(cfg.Renderer, logger),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger,
	}, nil
}

// Scene is the world state fed by this client's connections.
func (c *Client) Scene() *scene.Scene {
	return c.scene
}

// Run connects and processes updates until ctx ends or the connection
// closes.
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	return conn.Run(ctx)
}

// Connect dials with backoff and completes the handshake. Transport
// failures are retried up to MaxConnectAttempts (0 retries forever); a
// protocol error from the server is not.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	token, err := c.loadToken(ctx)
	if err != nil {
		return nil, err
	}

	var attempt int
	for {
		attempt++
		tr, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn().Int("attempt", attempt).Str("url", c.cfg.URL).Err(err).Msg("dial failed")
			if ctx.Err() != nil || !c.shouldRetry(attempt) {
				return nil, err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		conn, err := c.handshake(ctx, tr, token)
		if err == nil {
			c.logger.Info().Str("url", c.cfg.URL).Int("attempt", attempt).Msg("connected")
			return conn, nil
		}
		_ = tr.Close()
		if isProtocolError(err) {
			c.logger.Error().Err(err).Str("kind", protocol.ErrorKind(err)).Msg("connection closed: protocol error")
			if c.cfg.OnClose != nil {
				c.cfg.OnClose(err)
			}
			return nil, err
		}
		if ctx.Err() != nil || !c.shouldRetry(attempt) {
			return nil, err
		}
		c.logger.Warn().Int("attempt", attempt).Err(err).Msg("handshake failed")
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) loadToken(ctx context.Context) (*string, error) {
	if c.cfg.Store == nil {
		return nil, nil
	}
	token, err := c.cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: load session: %w", err)
	}
	c.logger.Debug().Bool("has_session", token != nil).Msg("session token loaded")
	return token, nil
}

func (c *Client) dial(ctx context.Context) (transport.Transport, error) {
	if err := c.cfg.Session.ValidateClientTransport(); err != nil {
		return nil, err
	}
	opts := transport.OptionsFromSession(c.cfg.Session)
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		return transport.DialStream(ctx, u.Host, opts)
	default:
		tlsCfg, err := c.cfg.Session.ClientTLSConfig()
		if err != nil {
			return nil, err
		}
		return transport.Dial(ctx, c.cfg.URL, opts, tlsCfg)
	}
}

// handshake sends Handshake and waits for HandshakeAccepted within
// HandshakeTimeout.
func (c *Client) handshake(ctx context.Context, tr transport.Transport, token *string) (*Conn, error) {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.Session.HandshakeTimeout)
	defer cancel()

	sess := session.NewClient(c.cfg.Session)
	hello, err := sess.Handshake(token)
	if err != nil {
		return nil, err
	}
	if err := tr.Send(hctx, hello); err != nil {
		return nil, fmt.Errorf("client: send handshake: %w", err)
	}
	observability.RecordMessage(protocol.ToServer.String(), "Handshake")

	buf, err := tr.Recv(hctx)
	if err != nil {
		return nil, fmt.Errorf("client: await handshake accepted: %w", err)
	}
	msg, err := sess.Receive(buf)
	if err != nil {
		observability.RecordProtocolError(protocol.ErrorKind(err))
		return nil, err
	}
	observability.RecordMessage(protocol.ToClient.String(), msg.Variant())
	c.scene.Reset()
	return &Conn{
		tr:      tr,
		sess:    sess,
		scene:   c.scene,
		logger:  c.logger,
		onClose: c.cfg.OnClose,
	}, nil
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isProtocolError(err error) bool {
	switch protocol.ErrorKind(err) {
	case "none", "other":
		return false
	default:
		return true
	}
}
