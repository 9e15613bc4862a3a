package protocol

// Cursor is the read position of one decode pass over an immutable buffer.
// Nested reads share it so every step advances the same offset.
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(buf []byte, off int) *Cursor {
	return &Cursor{buf: buf, off: off}
}

// Advance returns the current offset and moves it forward by n.
// It is the only bounds check in the package: no read may pass len(buf).
func (c *Cursor) Advance(n int) (int, error) {
	if n < 0 || c.off < 0 || n > len(c.buf)-c.off {
		return c.off, ErrOutOfBounds
	}
	start := c.off
	c.off += n
	return start, nil
}

func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) Remaining() int {
	if c.off < 0 || c.off > len(c.buf) {
		return 0
	}
	return len(c.buf) - c.off
}

// Next returns a view of the next n bytes. The view aliases the buffer.
func (c *Cursor) Next(n int) ([]byte, error) {
	start, err := c.Advance(n)
	if err != nil {
		return nil, err
	}
	return c.buf[start : start+n : start+n], nil
}
