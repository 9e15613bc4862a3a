package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket carries one protocol message per binary WebSocket message.
type WebSocket struct {
	conn      *websocket.Conn
	opts      Options
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a client connection to a ws:// or wss:// URL.
func Dial(ctx context.Context, url string, opts Options, tlsCfg *tls.Config) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.WriteTimeout,
		TLSClientConfig:  tlsCfg,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return NewWebSocket(conn, opts), nil
}

// Upgrade turns an HTTP request into a server-side connection. A nil
// checkOrigin accepts every origin.
func Upgrade(w http.ResponseWriter, r *http.Request, opts Options, checkOrigin func(*http.Request) bool) (*WebSocket, error) {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		HandshakeTimeout: opts.WriteTimeout,
		CheckOrigin:      checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	return NewWebSocket(conn, opts), nil
}

// NewWebSocket applies read limits and keepalive to an established conn.
func NewWebSocket(conn *websocket.Conn, opts Options) *WebSocket {
	ws := &WebSocket{conn: conn, opts: opts, done: make(chan struct{})}
	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}
	conn.SetPongHandler(func(string) error {
		if opts.ReadTimeout > 0 {
			return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		}
		return nil
	})
	if opts.HeartbeatInterval > 0 {
		go ws.pingLoop()
	}
	return ws
}

func (ws *WebSocket) pingLoop() {
	ticker := time.NewTicker(ws.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			wait := ws.opts.WriteTimeout
			if wait <= 0 {
				wait = ws.opts.HeartbeatInterval
			}
			if err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait)); err != nil {
				return
			}
		case <-ws.done:
			return
		}
	}
}

// Recv blocks for the next binary message. Text messages are rejected.
func (ws *WebSocket) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ws.done:
		return nil, ErrClosed
	default:
	}
	_ = ws.conn.SetReadDeadline(deadline(ctx, ws.opts.ReadTimeout))
	stop := context.AfterFunc(ctx, func() {
		_ = ws.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	kind, msg, err := ws.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, ctxErr(ctx, err)
	}
	if kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: websocket type %d", ErrUnexpectedMessageType, kind)
	}
	return msg, nil
}

func (ws *WebSocket) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	select {
	case <-ws.done:
		return ErrClosed
	default:
	}
	_ = ws.conn.SetWriteDeadline(deadline(ctx, ws.opts.WriteTimeout))
	if err := ws.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return ctxErr(ctx, err)
	}
	return nil
}

// Close sends a normal close frame and releases the connection.
func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.done)
		wait := ws.opts.WriteTimeout
		if wait <= 0 {
			wait = time.Second
		}
		_ = ws.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wait),
		)
		err = ws.conn.Close()
	})
	return err
}

func (ws *WebSocket) RemoteAddr() string {
	return ws.conn.RemoteAddr().String()
}
