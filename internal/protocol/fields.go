package protocol

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Encoded widths of the fixed-size field kinds.
const (
	SizeUint8   = 1
	SizeUint32  = 4
	SizeFloat32 = 4
	SizeBool    = 1
)

// AppendUint8 appends one byte.
func AppendUint8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

// AppendUint32 appends v as 4 little-endian bytes.
func AppendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

// AppendFloat32 appends the IEEE-754 bits of v as 4 little-endian bytes.
func AppendFloat32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

// AppendBool appends 0x01 for true and 0x00 for false.
func AppendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// AppendString appends a uint32 byte count followed by the UTF-8 bytes of s.
func AppendString(dst []byte, s string) ([]byte, error) {
	if uint64(len(s)) > math.MaxUint32 || !utf8.ValidString(s) {
		return dst, ErrInvalidEncoding
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...), nil
}

// AppendOptional appends a presence flag and, when v is non-nil, the value
// encoded by appendValue.
func AppendOptional[T any](dst []byte, v *T, appendValue func([]byte, T) ([]byte, error)) ([]byte, error) {
	if v == nil {
		return AppendBool(dst, false), nil
	}
	return appendValue(AppendBool(dst, true), *v)
}

// ReadUint8 reads one byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	b, err := c.Next(SizeUint8)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads 4 little-endian bytes.
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.Next(SizeUint32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadFloat32 reads 4 little-endian bytes as IEEE-754 bits.
func (c *Cursor) ReadFloat32() (float32, error) {
	bits, err := c.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadBool reads a strict 0/1 flag byte.
func (c *Cursor) ReadBool() (bool, error) {
	b, err := c.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidEncoding
	}
}

// ReadString reads a uint32 byte count and that many UTF-8 bytes.
// The declared length is checked against the buffer before any allocation.
func (c *Cursor) ReadString() (string, error) {
	n, err := c.ReadUint32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(c.Remaining()) {
		return "", ErrOutOfBounds
	}
	b, err := c.Next(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidEncoding
	}
	return string(b), nil
}

// ReadOptional reads a presence flag and, when set, one value with read.
func ReadOptional[T any](c *Cursor, read func(*Cursor) (T, error)) (*T, error) {
	present, err := c.ReadBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := read(c)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
