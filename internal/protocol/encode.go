package protocol

import "fmt"

// EncodeToServer returns the wire bytes of a client->server message.
func EncodeToServer(msg ToServerMsg) ([]byte, error) {
	return AppendToServer(nil, msg)
}

// EncodeToClient returns the wire bytes of a server->client message.
func EncodeToClient(msg ToClientMsg) ([]byte, error) {
	return AppendToClient(nil, msg)
}

// AppendToServer appends msg to dst: tag byte, then fields in declared order.
// There is no length prefix and no padding.
func AppendToServer(dst []byte, msg ToServerMsg) ([]byte, error) {
	switch m := msg.(type) {
	case Handshake:
		var err error
		dst = append(dst, TagHandshake)
		if dst, err = AppendString(dst, m.ProtocolVersion); err != nil {
			return nil, encodeError(m, "protocol_version", err)
		}
		if dst, err = AppendOptional(dst, m.Session, AppendString); err != nil {
			return nil, encodeError(m, "session", err)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: to_server message %T", ErrUnknownVariant, msg)
	}
}

// AppendToClient appends msg to dst: tag byte, then fields in declared order.
func AppendToClient(dst []byte, msg ToClientMsg) ([]byte, error) {
	switch m := msg.(type) {
	case HandshakeAccepted:
		return append(dst, TagHandshakeAccepted), nil
	case AddCelestialObject:
		var err error
		dst = append(dst, TagAddCelestialObject)
		dst = AppendUint32(dst, m.ID)
		if dst, err = AppendString(dst, m.Name); err != nil {
			return nil, encodeError(m, "name", err)
		}
		dst = AppendFloat32(dst, m.Radius)
		dst = AppendFloat32(dst, m.Position.X)
		return AppendFloat32(dst, m.Position.Y), nil
	case AddPart:
		if !m.Kind.Valid() {
			return nil, encodeError(m, "kind", ErrUnknownVariant)
		}
		dst = append(dst, TagAddPart)
		dst = AppendUint32(dst, m.ID)
		return AppendUint8(dst, uint8(m.Kind)), nil
	case MovePart:
		dst = append(dst, TagMovePart)
		dst = AppendUint32(dst, m.ID)
		dst = AppendFloat32(dst, m.X)
		dst = AppendFloat32(dst, m.Y)
		dst = AppendFloat32(dst, m.RotationI)
		return AppendFloat32(dst, m.RotationN), nil
	default:
		return nil, fmt.Errorf("%w: to_client message %T", ErrUnknownVariant, msg)
	}
}

type variant interface {
	Variant() string
}

func encodeError(m variant, field string, err error) error {
	return fmt.Errorf("protocol: encode %s.%s: %w", m.Variant(), field, err)
}
