package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Connection results shared by the request logger and RecordConnection.
const (
	ResultClosed         = "closed"
	ResultProtocolError  = "protocol_error"
	ResultTransportError = "transport_error"
	ResultUpgradeFailed  = "upgrade_failed"
	ResultShuttingDown   = "shutting_down"
)

const connOutcomeKey = "glap.conn_outcome"

// ConnOutcome is how a /ws request ended. Upgraded requests outlive the
// HTTP exchange, so the request log line is written when the connection
// closes.
type ConnOutcome struct {
	Upgraded bool
	Result   string
	Session  string
	Kind     string
}

// MarkConnection attaches the outcome of a WebSocket request to c.
func MarkConnection(c *gin.Context, outcome ConnOutcome) {
	c.Set(connOutcomeKey, outcome)
}

func connOutcome(c *gin.Context) (ConnOutcome, bool) {
	v, ok := c.Get(connOutcomeKey)
	if !ok {
		return ConnOutcome{}, false
	}
	outcome, ok := v.(ConnOutcome)
	return outcome, ok
}

// responseStatus reports 101 for hijacked upgrades, which gin still sees
// as the default 200.
func responseStatus(c *gin.Context) int {
	if outcome, ok := connOutcome(c); ok && outcome.Upgraded {
		return http.StatusSwitchingProtocols
	}
	return c.Writer.Status()
}

func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := responseStatus(c)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if outcome, ok := connOutcome(c); ok {
			event := logger.Info()
			switch outcome.Result {
			case ResultProtocolError:
				event = logger.Error()
			case ResultTransportError, ResultUpgradeFailed, ResultShuttingDown:
				event = logger.Warn()
			}
			event = event.
				Str("path", path).
				Int("status", status).
				Bool("upgraded", outcome.Upgraded).
				Str("result", outcome.Result).
				Dur("duration", time.Since(start)).
				Str("client_ip", c.ClientIP())
			if outcome.Session != "" {
				event = event.Str("session", outcome.Session)
			}
			if outcome.Kind != "" {
				event = event.Str("kind", outcome.Kind)
			}
			event.Msg("ws_connection")
			return
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}

func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		RecordHTTPRequest(c.Request.Method, path, responseStatus(c), time.Since(start))
	}
}
