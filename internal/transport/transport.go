// Package transport moves whole protocol messages between peers. A
// transport delivers exactly one encoded message per Recv and writes one per
// Send; the protocol layer never sees partial buffers.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/glapctl/internal/protocol/session"
)

var (
	ErrClosed                = errors.New("transport: closed")
	ErrUnexpectedMessageType = errors.New("transport: unexpected message type")
)

// Transport is a message-oriented duplex connection. Recv is called from a
// single goroutine; Send may be called concurrently with Recv.
type Transport interface {
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Options bounds reads and writes on one connection.
type Options struct {
	MaxMessageBytes   int64
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
}

func DefaultOptions() Options {
	return OptionsFromSession(session.DefaultConfig())
}

// OptionsFromSession copies the transport-facing limits of a session config.
func OptionsFromSession(cfg session.Config) Options {
	cfg = cfg.WithDefaults()
	return Options{
		MaxMessageBytes:   cfg.MaxMessageBytes,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}
}

// deadline picks the earlier of the context deadline and now+timeout.
// A zero result means no deadline.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

// ctxErr prefers the context's error when it ended the operation.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}
