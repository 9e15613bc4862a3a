package server

import (
	"net/http"
	"time"

	"github.com/danmuck/glapctl/internal/auth"
	"github.com/danmuck/glapctl/internal/observability"
	"github.com/danmuck/glapctl/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/ws", s.handleWebSocket)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"uptime":           time.Since(s.started).String(),
			"service":          "glapctl",
			"protocol_version": s.cfg.Session.ProtocolVersion,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  s.ready.Load(),
			"uptime": time.Since(s.started).String(),
		})
	})

	sessions := s.router.Group("/sessions")
	if s.cfg.AdminToken != "" {
		sessions.Use(auth.RequireBearer(auth.StaticToken{Token: s.cfg.AdminToken}))
	}
	sessions.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"active":   s.registry.ActiveCount(),
			"sessions": s.registry.List(),
		})
	})
	// Issued tokens are the only ones a handshake can resume.
	sessions.POST("", func(c *gin.Context) {
		issued := s.registry.Issue()
		s.logger.Info().Str("session", issued.Token).Msg("session issued")
		c.JSON(http.StatusCreated, issued)
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if !s.track() {
		observability.MarkConnection(c, observability.ConnOutcome{Result: observability.ResultShuttingDown})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server shutting down"})
		return
	}
	defer s.conns.Done()
	ws, err := transport.Upgrade(c.Writer, c.Request, transport.OptionsFromSession(s.cfg.Session), s.checkOrigin)
	if err != nil {
		observability.MarkConnection(c, observability.ConnOutcome{Result: observability.ResultUpgradeFailed})
		observability.RecordConnection(transportWebSocket, observability.ResultUpgradeFailed)
		s.logger.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}
	ctx, cancel := s.connContext(c.Request.Context())
	defer cancel()
	observability.MarkConnection(c, s.serveConn(ctx, ws, ws.RemoteAddr(), transportWebSocket))
}
