package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/glapctl/internal/config"
	"github.com/danmuck/glapctl/internal/protocol"
	"github.com/danmuck/glapctl/internal/protocol/session"
	"github.com/danmuck/glapctl/internal/sessionstore"
	"github.com/danmuck/glapctl/internal/testutil/testlog"
	"github.com/danmuck/glapctl/internal/testutil/tlstest"
	"github.com/danmuck/glapctl/internal/transport"
	"github.com/gin-gonic/gin"
)

func testConfig() config.ServerConfig {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultServerConfig()
	cfg.TickRate = 10 * time.Millisecond
	cfg.Session.HandshakeTimeout = time.Second
	cfg.Session.ReadTimeout = 5 * time.Second
	cfg.Session.WriteTimeout = time.Second
	cfg.Session.HeartbeatInterval = 2 * time.Second
	return cfg
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New(testConfig())
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		hs.Close()
	})
	return s, hs.URL
}

func dialWS(t *testing.T, base string) *transport.WebSocket {
	t.Helper()
	ws, err := transport.Dial(context.Background(), "ws"+strings.TrimPrefix(base, "http")+"/ws", transport.OptionsFromSession(testConfig().Session), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// handshake completes the client side and returns the client state machine.
func handshake(t *testing.T, tr transport.Transport, token *string) *session.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c := session.NewClient(testConfig().Session)
	hello, err := c.Handshake(token)
	if err != nil {
		t.Fatalf("handshake encode: %v", err)
	}
	if err := tr.Send(ctx, hello); err != nil {
		t.Fatalf("send handshake: %v", err)
	}
	buf, err := tr.Recv(ctx)
	if err != nil {
		t.Fatalf("recv accepted: %v", err)
	}
	if _, err := c.Receive(buf); err != nil {
		t.Fatalf("receive accepted: %v", err)
	}
	return c
}

func TestWebSocketStreamsWorld(t *testing.T) {
	testlog.Start(t)
	s, base := startServer(t)
	ws := dialWS(t, base)
	c := handshake(t, ws, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	world := config.DefaultWorld()
	want := len(world.Bodies) + len(world.Parts)
	parts := map[uint32]bool{}
	for i := 0; i < want; i++ {
		buf, err := ws.Recv(ctx)
		if err != nil {
			t.Fatalf("recv announcement %d: %v", i, err)
		}
		msg, err := c.Receive(buf)
		if err != nil {
			t.Fatalf("receive announcement %d: %v", i, err)
		}
		switch m := msg.(type) {
		case protocol.AddCelestialObject:
			if i >= len(world.Bodies) {
				t.Fatalf("celestial object announced after parts at %d", i)
			}
		case protocol.AddPart:
			parts[m.ID] = true
		default:
			t.Fatalf("expected announcement, got %T", msg)
		}
	}

	buf, err := ws.Recv(ctx)
	if err != nil {
		t.Fatalf("recv move: %v", err)
	}
	msg, err := c.Receive(buf)
	if err != nil {
		t.Fatalf("receive move: %v", err)
	}
	move, ok := msg.(protocol.MovePart)
	if !ok || !parts[move.ID] {
		t.Fatalf("expected MovePart for an announced part, got %+v", msg)
	}
	norm := float64(move.RotationI)*float64(move.RotationI) + float64(move.RotationN)*float64(move.RotationN)
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit rotation vector, got %v", norm)
	}
	if s.Registry().ActiveCount() != 1 {
		t.Fatalf("expected one active session, got %d", s.Registry().ActiveCount())
	}
}

func issueSession(t *testing.T, base string) sessionstore.Session {
	t.Helper()
	resp, err := http.Post(base+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var issued sessionstore.Session
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		t.Fatalf("decode issued session: %v", err)
	}
	return issued
}

func waitForSession(t *testing.T, s *Server, token string, ok func(sessionstore.Session) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, found := s.Registry().Get(token)
		if found && ok(rec) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s never reached expected state, got %+v found=%v", token, rec, found)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionTokenResumed(t *testing.T) {
	testlog.Start(t)
	s, base := startServer(t)
	token := issueSession(t, base).Token

	first := dialWS(t, base)
	handshake(t, first, &token)
	_ = first.Close()

	second := dialWS(t, base)
	handshake(t, second, &token)

	waitForSession(t, s, token, func(rec sessionstore.Session) bool {
		return rec.Connections == 2 && !rec.Anonymous
	})
}

func TestUnissuedTokenGetsAnonymousSession(t *testing.T) {
	testlog.Start(t)
	s, base := startServer(t)
	token := sessionstore.NewToken()

	ws := dialWS(t, base)
	handshake(t, ws, &token)

	deadline := time.Now().Add(2 * time.Second)
	for s.Registry().ActiveCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected one active session, got %d", s.Registry().ActiveCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := s.Registry().Get(token); ok {
		t.Fatalf("expected unissued token not to be adopted")
	}
	list := s.Registry().List()
	if len(list) != 1 || !list[0].Anonymous {
		t.Fatalf("expected one anonymous session, got %+v", list)
	}
}

func TestUnsupportedVersionClosesConnection(t *testing.T) {
	testlog.Start(t)
	_, base := startServer(t)
	ws := dialWS(t, base)

	hello, err := protocol.EncodeToServer(protocol.Handshake{ProtocolVersion: "glap.rs-9.0.0"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Send(ctx, hello); err != nil {
		t.Fatalf("send: %v", err)
	}
	if buf, err := ws.Recv(ctx); err == nil {
		t.Fatalf("expected connection closed, got message % x", buf)
	}
}

func TestClientMessageAfterHandshakeClosesConnection(t *testing.T) {
	testlog.Start(t)
	s, base := startServer(t)
	ws := dialWS(t, base)
	handshake(t, ws, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hello, _ := protocol.EncodeToServer(protocol.Handshake{ProtocolVersion: session.DefaultProtocolVersion})
	if err := ws.Send(ctx, hello); err != nil {
		t.Fatalf("send: %v", err)
	}
	for {
		if _, err := ws.Recv(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("expected server to close the connection")
			}
			break
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Registry().ActiveCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected session released, active=%d", s.Registry().ActiveCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamListener(t *testing.T) {
	testlog.Start(t)
	s := New(testConfig())
	defer s.Close()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeStream(ctx, ln) }()

	stream, err := transport.DialStream(context.Background(), ln.Addr().String(), transport.OptionsFromSession(testConfig().Session))
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	c := handshake(t, stream, nil)
	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	buf, err := stream.Recv(rctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg, err := c.Receive(buf); err != nil {
		t.Fatalf("expected first announcement, got %v", err)
	} else if _, ok := msg.(protocol.AddCelestialObject); !ok {
		t.Fatalf("expected AddCelestialObject first, got %T", msg)
	}
	_ = stream.Close()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve stream: %v", err)
	}
}

func TestStreamOutlivesReadTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.Session.ReadTimeout = 300 * time.Millisecond
	s := New(cfg)
	defer s.Close()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.ServeStream(ctx, ln) }()

	stream, err := transport.DialStream(context.Background(), ln.Addr().String(), transport.OptionsFromSession(cfg.Session))
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer stream.Close()
	c := handshake(t, stream, nil)

	start := time.Now()
	received := 0
	for time.Since(start) < 4*cfg.Session.ReadTimeout {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
		buf, err := stream.Recv(rctx)
		rcancel()
		if err != nil {
			t.Fatalf("stream dropped after %d messages, %v: %v", received, time.Since(start), err)
		}
		if _, err := c.Receive(buf); err != nil {
			t.Fatalf("receive: %v", err)
		}
		received++
	}
	if got := s.Registry().ActiveCount(); got != 1 {
		t.Fatalf("expected session still active, got %d", got)
	}
}

func TestCloseRacesNewConnections(t *testing.T) {
	testlog.Start(t)
	s, base := startServer(t)
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws"

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			ws, err := transport.Dial(ctx, url, transport.OptionsFromSession(testConfig().Session), nil)
			if err == nil {
				_ = ws.Close()
			}
		}()
	}
	s.Close()
	wg.Wait()

	resp, err := http.Get(base + "/ws")
	if err != nil {
		t.Fatalf("get ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %d", resp.StatusCode)
	}
}

func TestStatusRoutes(t *testing.T) {
	testlog.Start(t)
	s, base := startServer(t)

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health["protocol_version"] != session.DefaultProtocolVersion {
		t.Fatalf("unexpected health: %d %v", resp.StatusCode, health)
	}

	resp, err = http.Get(base + "/sessions")
	if err != nil {
		t.Fatalf("get sessions: %v", err)
	}
	var sessions struct {
		Active   int                    `json:"active"`
		Sessions []sessionstore.Session `json:"sessions"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&sessions)
	resp.Body.Close()
	if sessions.Active != 0 || len(sessions.Sessions) != 0 {
		t.Fatalf("expected no sessions, got %+v", sessions)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", resp.StatusCode)
	}

	s.Close()
	resp, err = http.Get(base + "/ready")
	if err != nil {
		t.Fatalf("get ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %d", resp.StatusCode)
	}
}

func TestServeOverTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t)
	pair := ca.IssueServer(t, "127.0.0.1")

	cfg := testConfig()
	cfg.Session.SecurityMode = session.SecurityModeProduction
	cfg.Session.TLS = session.TLSConfig{Enabled: true, CertFile: pair.CertFile, KeyFile: pair.KeyFile}
	if err := cfg.Session.ValidateServerTransport(); err != nil {
		t.Fatalf("validate server transport: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	clientCfg := testConfig().Session
	clientCfg.TLS = ca.ClientTLS()
	tlsCfg, err := clientCfg.ClientTLSConfig()
	if err != nil {
		t.Fatalf("client tls config: %v", err)
	}
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	ws, err := transport.Dial(dialCtx, "wss://"+ln.Addr().String()+"/ws", transport.OptionsFromSession(clientCfg), tlsCfg)
	if err != nil {
		t.Fatalf("dial wss: %v", err)
	}
	c := handshake(t, ws, nil)
	if c.Phase() != session.PhaseConnected {
		t.Fatalf("expected connected, got %s", c.Phase())
	}
	_ = ws.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestSessionsRouteRequiresAdminToken(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.AdminToken = "operator-secret"
	s := New(cfg)
	t.Cleanup(s.Close)

	cases := []struct {
		method string
		header string
		want   int
	}{
		{http.MethodGet, "", http.StatusUnauthorized},
		{http.MethodGet, "Bearer wrong", http.StatusUnauthorized},
		{http.MethodGet, "Bearer operator-secret", http.StatusOK},
		{http.MethodPost, "", http.StatusUnauthorized},
		{http.MethodPost, "Bearer operator-secret", http.StatusCreated},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/sessions", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s with header %q: expected %d, got %d", tc.method, tc.header, tc.want, rec.Code)
		}
	}
	if list := s.Registry().List(); len(list) != 1 || list[0].Anonymous {
		t.Fatalf("expected one issued session, got %+v", list)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health to stay open, got %d", rec.Code)
	}
}

func TestWorldMovesFollowOrbit(t *testing.T) {
	testlog.Start(t)
	w := NewWorld(config.WorldConfig{
		Bodies: []config.Body{{ID: 1, Name: "earth", Radius: 10, X: 5, Y: 5}},
		Parts:  []config.Part{{ID: 1, Kind: protocol.PartCore, Body: 1, OrbitRadius: 2, AngularSpeed: math.Pi / 2}},
	})
	moves := w.Moves(time.Second)
	if len(moves) != 1 {
		t.Fatalf("expected one move, got %d", len(moves))
	}
	m := moves[0]
	if math.Abs(float64(m.X)-5) > 1e-5 || math.Abs(float64(m.Y)-7) > 1e-5 {
		t.Fatalf("expected part at (5, 7), got (%v, %v)", m.X, m.Y)
	}
	if math.Abs(m.Angle()-math.Pi) > 1e-5 && math.Abs(m.Angle()+math.Pi) > 1e-5 {
		t.Fatalf("expected heading pi, got %v", m.Angle())
	}
	if got := len(w.Announcements()); got != 2 {
		t.Fatalf("expected two announcements, got %d", got)
	}
}
