// Package server is the demo game server: an HTTP endpoint that upgrades
// clients to WebSocket (or accepts raw TCP streams), performs the handshake,
// and streams a small orbiting world as entity updates.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/glapctl/internal/config"
	"github.com/danmuck/glapctl/internal/logging"
	"github.com/danmuck/glapctl/internal/observability"
	"github.com/danmuck/glapctl/internal/sessionstore"
	"github.com/danmuck/glapctl/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Server struct {
	cfg      config.ServerConfig
	world    *World
	registry *sessionstore.Registry
	router   *gin.Engine
	logger   zerolog.Logger
	started  time.Time
	ready    atomic.Bool

	base   context.Context
	cancel context.CancelFunc

	// mu orders conns.Add against Close so no connection is added once
	// Close has started waiting.
	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

const (
	transportWebSocket = "websocket"
	transportStream    = "stream"
)

func New(cfg config.ServerConfig) *Server {
	observability.RegisterMetrics()
	cfg.Session = cfg.Session.WithDefaults()
	logger := logging.New("server")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		world:    NewWorld(cfg.World),
		registry: sessionstore.NewRegistry(),
		router:   r,
		logger:   logger,
		started:  time.Now(),
		base:     base,
		cancel:   cancel,
	}
	s.registerRoutes()
	s.ready.Store(true)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Registry() *sessionstore.Registry {
	return s.registry
}

// ListenAndServe serves HTTP on cfg.Addr, and raw streams on cfg.StreamAddr
// when set, until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing HTTP listener. TLS is applied from
// cfg.Session.TLS.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Session.HandshakeTimeout,
	}

	errCh := make(chan error, 2)
	if s.cfg.StreamAddr != "" {
		streamLn, err := net.Listen("tcp", s.cfg.StreamAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: listen stream %s: %w", s.cfg.StreamAddr, err)
		}
		go func() { errCh <- s.ServeStream(ctx, streamLn) }()
	}
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Bool("tls", s.cfg.Session.TLS.Enabled).
			Str("protocol_version", s.cfg.Session.ProtocolVersion).
			Msg("listening")
		var err error
		if s.cfg.Session.TLS.Enabled {
			err = httpSrv.ServeTLS(ln, s.cfg.Session.TLS.CertFile, s.cfg.Session.TLS.KeyFile)
		} else {
			err = httpSrv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Session.WriteTimeout)
	defer cancel()
	s.ready.Store(false)
	s.cancel()
	if shutdownErr := httpSrv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	s.Close()
	return err
}

// ServeStream accepts length-framed connections on ln until ctx ends.
func (s *Server) ServeStream(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening for streams")

	// Streams have no keepalive and clients stay silent after the handshake,
	// so reads are bounded only by ctx (the handshake adds its own timeout).
	// A dead peer surfaces as a failed write on the next tick.
	opts := transport.OptionsFromSession(s.cfg.Session)
	opts.ReadTimeout = 0
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		if !s.track() {
			_ = nc.Close()
			observability.RecordConnection(transportStream, observability.ResultShuttingDown)
			return nil
		}
		stream := transport.NewStream(nc, opts)
		connCtx, cancel := s.connContext(ctx)
		go func() {
			defer s.conns.Done()
			defer cancel()
			s.serveConn(connCtx, stream, stream.RemoteAddr(), transportStream)
		}()
	}
}

// Close stops every live connection and waits for them to finish.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.ready.Store(false)
	s.cancel()
	s.mu.Unlock()
	s.conns.Wait()
}

// track registers a new connection unless Close has begun. The caller owes
// a conns.Done when it returns true.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns.Add(1)
	return true
}

// connContext ends when either parent or the server does.
func (s *Server) connContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range normalizeOrigins(s.cfg.CorsOrigins) {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
