package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "glap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	protocolMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glap",
			Subsystem: "protocol",
			Name:      "messages_total",
			Help:      "Protocol messages encoded or decoded, by direction and variant.",
		},
		[]string{"direction", "type"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glap",
			Subsystem: "protocol",
			Name:      "errors_total",
			Help:      "Connections closed by a protocol error, by error kind.",
		},
		[]string{"kind"},
	)
	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glap",
			Name:      "connections_total",
			Help:      "Finished client connections, by transport and how they ended.",
		},
		[]string{"transport", "result"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "glap",
			Name:      "sessions_active",
			Help:      "Connections past the handshake.",
		},
	)
)

// RegisterMetrics adds the collectors to the default registry. Safe to call
// more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, protocolMessages, protocolErrors, connections, sessionsActive)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordMessage counts one message; direction is "to_server" or "to_client".
func RecordMessage(direction, variant string) {
	RegisterMetrics()
	protocolMessages.WithLabelValues(direction, variant).Inc()
}

// RecordProtocolError counts one fatal error by its kind label.
func RecordProtocolError(kind string) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(kind).Inc()
}

// RecordConnection counts one finished connection. transport is "websocket"
// or "stream".
func RecordConnection(transport, result string) {
	RegisterMetrics()
	connections.WithLabelValues(transport, result).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	sessionsActive.Dec()
}
