package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/danmuck/glapctl/internal/protocol/frame"
)

// Stream carries length-prefixed messages over a byte stream such as TCP.
type Stream struct {
	conn      net.Conn
	r         *bufio.Reader
	opts      Options
	limits    frame.Limits
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// DialStream opens a TCP connection to addr.
func DialStream(ctx context.Context, addr string, opts Options) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewStream(conn, opts), nil
}

func NewStream(conn net.Conn, opts Options) *Stream {
	limits := frame.DefaultLimits()
	if opts.MaxMessageBytes > 0 {
		limits.MaxPayloadBytes = uint32(min(opts.MaxMessageBytes, math.MaxUint32))
	}
	return &Stream{
		conn:   conn,
		r:      bufio.NewReader(conn),
		opts:   opts,
		limits: limits,
		closed: make(chan struct{}),
	}
}

func (s *Stream) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}
	_ = s.conn.SetReadDeadline(deadline(ctx, s.opts.ReadTimeout))
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	msg, err := frame.ReadFrame(s.r, s.limits)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, ctxErr(ctx, err)
	}
	return msg, nil
}

func (s *Stream) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	_ = s.conn.SetWriteDeadline(deadline(ctx, s.opts.WriteTimeout))
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetWriteDeadline(time.Now())
	})
	defer stop()
	if err := frame.WriteFrame(s.conn, msg, s.limits); err != nil {
		return ctxErr(ctx, err)
	}
	return nil
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
