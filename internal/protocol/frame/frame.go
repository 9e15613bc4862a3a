package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of the length prefix in front of every message.
const HeaderLen = 4

var (
	ErrShortHeader     = errors.New("frame: short length prefix")
	ErrShortPayload    = errors.New("frame: payload shorter than declared length")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrEmptyPayload    = errors.New("frame: empty payload")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 1 << 20}
}

// ReadFrame reads one `[u32 LE length][message]` frame and returns the
// message bytes. A clean EOF before the prefix is returned as io.EOF.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [HeaderLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	n := binary.LittleEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, ErrEmptyPayload
	}
	if n > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, limits.MaxPayloadBytes)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortPayload
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload behind its length prefix in a single Write.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), limits.MaxPayloadBytes)
	}
	buf := make([]byte, HeaderLen, HeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}
