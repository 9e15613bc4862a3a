package protocol

import "fmt"

// DecodeToServer decodes one client->server message starting at off and
// returns it with the offset just past its last byte. The buffer must hold
// the whole message; nothing is resumed across calls. On error the returned
// offset is where decoding stopped.
func DecodeToServer(buf []byte, off int) (ToServerMsg, int, error) {
	c := NewCursor(buf, off)
	msg, err := ReadToServer(c)
	return msg, c.Offset(), err
}

// DecodeToClient decodes one server->client message starting at off.
func DecodeToClient(buf []byte, off int) (ToClientMsg, int, error) {
	c := NewCursor(buf, off)
	msg, err := ReadToClient(c)
	return msg, c.Offset(), err
}

// ReadToServer reads one client->server message through c.
func ReadToServer(c *Cursor) (ToServerMsg, error) {
	tag, err := readTag(c, ToServer)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagHandshake:
		r := fieldReader{c: c, variant: "Handshake"}
		m := Handshake{
			ProtocolVersion: r.text("protocol_version"),
			Session:         r.optionalText("session"),
		}
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	default:
		return nil, unknownTag(ToServer, tag)
	}
}

// ReadToClient reads one server->client message through c.
func ReadToClient(c *Cursor) (ToClientMsg, error) {
	tag, err := readTag(c, ToClient)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagHandshakeAccepted:
		return HandshakeAccepted{}, nil
	case TagAddCelestialObject:
		r := fieldReader{c: c, variant: "AddCelestialObject"}
		m := AddCelestialObject{
			ID:     r.uint32("id"),
			Name:   r.text("name"),
			Radius: r.float32("radius"),
			Position: Vec2{
				X: r.float32("position.x"),
				Y: r.float32("position.y"),
			},
		}
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	case TagAddPart:
		r := fieldReader{c: c, variant: "AddPart"}
		m := AddPart{
			ID:   r.uint32("id"),
			Kind: r.partKind("kind"),
		}
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	case TagMovePart:
		r := fieldReader{c: c, variant: "MovePart"}
		m := MovePart{
			ID:        r.uint32("id"),
			X:         r.float32("x"),
			Y:         r.float32("y"),
			RotationI: r.float32("rotation_i"),
			RotationN: r.float32("rotation_n"),
		}
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	default:
		return nil, unknownTag(ToClient, tag)
	}
}

func readTag(c *Cursor, dir Direction) (uint8, error) {
	at := c.Offset()
	tag, err := c.ReadUint8()
	if err != nil {
		return 0, &DecodeError{Variant: dir.String(), Field: "tag", Offset: at, Err: err}
	}
	return tag, nil
}

func unknownTag(dir Direction, tag uint8) error {
	return fmt.Errorf("%w: 0x%02x in %s space", ErrUnknownMessageTag, tag, dir)
}

// fieldReader reads the fields of one variant in declaration order (Go
// evaluates composite literal elements left to right). After the first
// failure every read is a no-op and err holds the located cause.
type fieldReader struct {
	c       *Cursor
	variant string
	err     error
}

func (r *fieldReader) fail(field string, at int, err error) {
	r.err = &DecodeError{Variant: r.variant, Field: field, Offset: at, Err: err}
}

func (r *fieldReader) uint32(field string) uint32 {
	if r.err != nil {
		return 0
	}
	at := r.c.Offset()
	v, err := r.c.ReadUint32()
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

func (r *fieldReader) float32(field string) float32 {
	if r.err != nil {
		return 0
	}
	at := r.c.Offset()
	v, err := r.c.ReadFloat32()
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

func (r *fieldReader) text(field string) string {
	if r.err != nil {
		return ""
	}
	at := r.c.Offset()
	v, err := r.c.ReadString()
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

func (r *fieldReader) optionalText(field string) *string {
	if r.err != nil {
		return nil
	}
	at := r.c.Offset()
	v, err := ReadOptional(r.c, (*Cursor).ReadString)
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

func (r *fieldReader) partKind(field string) PartKind {
	if r.err != nil {
		return 0
	}
	at := r.c.Offset()
	b, err := r.c.ReadUint8()
	if err != nil {
		r.fail(field, at, err)
		return 0
	}
	kind := PartKind(b)
	if !kind.Valid() {
		r.fail(field, at, fmt.Errorf("%w: part kind %d", ErrUnknownVariant, b))
		return 0
	}
	return kind
}
