package client

import (
	"context"
	"errors"
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
	"github.com/danmuck/glapctl/internal/scene"
	"github.com/danmuck/glapctl/internal/server"
	"github.com/danmuck/glapctl/internal/sessionstore"
	"github.com/danmuck/glapctl/internal/testutil/testlog"
	"github.com/danmuck/glapctl/internal/transport"
	"github.com/gin-gonic/gin"
)

func sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.HandshakeTimeout = time.Second
	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.HeartbeatInterval = 2 * time.Second
	cfg.Backoff = session.BackoffConfig{InitialDelay: 5 * time.Millisecond, Multiplier: 1, MaxDelay: 5 * time.Millisecond}
	return cfg
}

func wsURL(base string) string {
	return "ws" + strings.TrimPrefix(base, "http") + "/ws"
}

type closeRecorder struct {
	mu    sync.Mutex
	calls []error
}

func (r *closeRecorder) OnClose(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, err)
}

func (r *closeRecorder) snapshot() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.calls...)
}

type moveCounter struct {
	mu    sync.Mutex
	moves int
}

func (m *moveCounter) CelestialObjectAdded(scene.CelestialObject) {}
func (m *moveCounter) PartAdded(scene.Part)                       {}
func (m *moveCounter) PartMoved(scene.Part) {
	m.mu.Lock()
	m.moves++
	m.mu.Unlock()
}

func (m *moveCounter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moves
}

func TestRunAgainstServer(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	srvCfg := config.DefaultServerConfig()
	srvCfg.TickRate = 10 * time.Millisecond
	srvCfg.Session = sessionConfig()
	srv := server.New(srvCfg)
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	defer srv.Close()

	store := &sessionstore.MemoryStore{}
	token := srv.Registry().Issue().Token
	if err := store.Save(context.Background(), token); err != nil {
		t.Fatalf("save token: %v", err)
	}
	closes := &closeRecorder{}
	renderer := &moveCounter{}
	c, err := New(Config{
		URL:      wsURL(hs.URL),
		Session:  sessionConfig(),
		Store:    store,
		Renderer: renderer,
		OnClose:  closes.OnClose,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	world := config.DefaultWorld()
	deadline := time.Now().Add(3 * time.Second)
	for renderer.count() < 2*len(world.Parts) {
		if time.Now().After(deadline) {
			t.Fatalf("expected part moves, got %d", renderer.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap := c.Scene().Snapshot()
	if len(snap.CelestialObjects) != len(world.Bodies) || len(snap.Parts) != len(world.Parts) {
		t.Fatalf("unexpected scene: %+v", snap)
	}
	for _, p := range snap.Parts {
		if !p.Placed {
			t.Fatalf("expected part %d placed", p.ID)
		}
	}
	if rec, ok := srv.Registry().Get(token); !ok || rec.Anonymous || rec.Connections != 1 {
		t.Fatalf("expected server to resume stored token, got %+v ok=%v", rec, ok)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	calls := closes.snapshot()
	if len(calls) != 1 || calls[0] != nil {
		t.Fatalf("expected one clean close report, got %v", calls)
	}
}

func TestCloseWhileRunning(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	srvCfg := config.DefaultServerConfig()
	srvCfg.TickRate = time.Millisecond
	srvCfg.Session = sessionConfig()
	srv := server.New(srvCfg)
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	defer srv.Close()

	closes := &closeRecorder{}
	renderer := &moveCounter{}
	c, err := New(Config{URL: wsURL(hs.URL), Session: sessionConfig(), Renderer: renderer, OnClose: closes.OnClose})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- conn.Run(context.Background()) }()

	deadline := time.Now().Add(3 * time.Second)
	for renderer.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected moves before close")
		}
		time.Sleep(time.Millisecond)
	}
	_ = conn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, transport.ErrClosed) {
			t.Fatalf("expected transport.ErrClosed, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not return after close")
	}
	if conn.Phase() != session.PhaseClosed {
		t.Fatalf("expected closed phase, got %s", conn.Phase())
	}
	calls := closes.snapshot()
	if len(calls) != 1 || calls[0] != nil {
		t.Fatalf("expected one clean close report, got %v", calls)
	}
}

// scriptedServer answers the handshake (or not) and then writes msgs.
func scriptedServer(t *testing.T, accept bool, msgs ...protocol.ToClientMsg) *httptest.Server {
	t.Helper()
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := transport.Upgrade(w, r, transport.OptionsFromSession(sessionConfig()), nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ctx := r.Context()
		if _, err := ws.Recv(ctx); err != nil {
			return
		}
		if accept {
			b, _ := protocol.EncodeToClient(protocol.HandshakeAccepted{})
			if err := ws.Send(ctx, b); err != nil {
				return
			}
		}
		for _, m := range msgs {
			b, _ := protocol.EncodeToClient(m)
			if err := ws.Send(ctx, b); err != nil {
				return
			}
		}
		_, _ = ws.Recv(ctx)
	}))
	t.Cleanup(hs.Close)
	return hs
}

func TestUpdateBeforeAcceptIsFatal(t *testing.T) {
	testlog.Start(t)
	hs := scriptedServer(t, false, protocol.AddPart{ID: 1, Kind: protocol.PartCore})
	closes := &closeRecorder{}
	c, err := New(Config{URL: wsURL(hs.URL), Session: sessionConfig(), MaxConnectAttempts: 3, OnClose: closes.OnClose})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Connect(context.Background())
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
	calls := closes.snapshot()
	if len(calls) != 1 || !errors.Is(calls[0], protocol.ErrProtocolViolation) {
		t.Fatalf("expected one violation report, got %v", calls)
	}
}

func TestUnknownPartMoveIsSkipped(t *testing.T) {
	testlog.Start(t)
	hs := scriptedServer(t, true,
		protocol.MovePart{ID: 99, RotationN: 1},
		protocol.AddPart{ID: 4, Kind: protocol.PartHub},
		protocol.MovePart{ID: 4, X: 2, Y: 3, RotationN: 1},
	)
	c, err := New(Config{URL: wsURL(hs.URL), Session: sessionConfig()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if part, ok := c.Scene().Part(4); ok && part.Placed {
			if part.Position != (protocol.Vec2{X: 2, Y: 3}) {
				t.Fatalf("unexpected position: %+v", part.Position)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected part 4 placed after skipped unknown move")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := c.Scene().Part(99); ok {
		t.Fatalf("unknown part must not appear")
	}
}

func TestMalformedUpdateClosesOnce(t *testing.T) {
	testlog.Start(t)
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := transport.Upgrade(w, r, transport.OptionsFromSession(sessionConfig()), nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ctx := r.Context()
		if _, err := ws.Recv(ctx); err != nil {
			return
		}
		_ = ws.Send(ctx, []byte{protocol.TagHandshakeAccepted})
		_ = ws.Send(ctx, []byte{protocol.TagMovePart, 1, 0})
		_, _ = ws.Recv(ctx)
	}))
	defer hs.Close()

	closes := &closeRecorder{}
	c, err := New(Config{URL: wsURL(hs.URL), Session: sessionConfig(), OnClose: closes.OnClose})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = c.Run(context.Background())
	if !errors.Is(err, protocol.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	calls := closes.snapshot()
	if len(calls) != 1 || !errors.Is(calls[0], protocol.ErrOutOfBounds) {
		t.Fatalf("expected one out-of-bounds report, got %v", calls)
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c, err := New(Config{URL: "tcp://" + addr, Session: sessionConfig(), MaxConnectAttempts: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial failure")
	}
}

func TestNewValidatesURL(t *testing.T) {
	testlog.Start(t)
	if _, err := New(Config{}); !errors.Is(err, ErrURLRequired) {
		t.Fatalf("expected ErrURLRequired, got %v", err)
	}
	if _, err := New(Config{URL: "http://localhost/ws"}); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}
