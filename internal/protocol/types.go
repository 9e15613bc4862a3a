package protocol

import (
	"fmt"
	"math"
)

// Direction selects one of the two disjoint tag spaces.
type Direction uint8

const (
	ToServer Direction = iota
	ToClient
)

func (d Direction) String() string {
	switch d {
	case ToServer:
		return "to_server"
	case ToClient:
		return "to_client"
	default:
		return "unknown"
	}
}

// Client->server tags.
const (
	TagHandshake uint8 = 0x00
)

// Server->client tags.
const (
	TagHandshakeAccepted  uint8 = 0x00
	TagAddCelestialObject uint8 = 0x01
	TagAddPart            uint8 = 0x02
	TagMovePart           uint8 = 0x03
)

// ToServerMsg is the closed set of messages a client sends.
type ToServerMsg interface {
	Tag() uint8
	Variant() string
	toServer()
}

// ToClientMsg is the closed set of messages a server sends.
type ToClientMsg interface {
	Tag() uint8
	Variant() string
	toClient()
}

// Handshake opens a connection. Session is an opaque token supplied by the
// session store; nil asks for a new anonymous session.
type Handshake struct {
	ProtocolVersion string
	Session         *string
}

func (Handshake) Tag() uint8      { return TagHandshake }
func (Handshake) Variant() string { return "Handshake" }
func (Handshake) toServer()       {}

// HandshakeAccepted confirms protocol compatibility. It has no payload.
type HandshakeAccepted struct{}

func (HandshakeAccepted) Tag() uint8      { return TagHandshakeAccepted }
func (HandshakeAccepted) Variant() string { return "HandshakeAccepted" }
func (HandshakeAccepted) toClient()       {}

// Vec2 is a world-space position.
type Vec2 struct {
	X float32
	Y float32
}

// AddCelestialObject announces a planet-like body.
type AddCelestialObject struct {
	ID       uint32
	Name     string
	Radius   float32
	Position Vec2
}

func (AddCelestialObject) Tag() uint8      { return TagAddCelestialObject }
func (AddCelestialObject) Variant() string { return "AddCelestialObject" }
func (AddCelestialObject) toClient()       {}

// AddPart announces a ship part.
type AddPart struct {
	ID   uint32
	Kind PartKind
}

func (AddPart) Tag() uint8      { return TagAddPart }
func (AddPart) Variant() string { return "AddPart" }
func (AddPart) toClient()       {}

// MovePart moves a previously announced part. Orientation travels as the
// unit vector (sin, cos) of the angle.
type MovePart struct {
	ID        uint32
	X         float32
	Y         float32
	RotationI float32
	RotationN float32
}

func (MovePart) Tag() uint8      { return TagMovePart }
func (MovePart) Variant() string { return "MovePart" }
func (MovePart) toClient()       {}

// Angle reconstructs the rotation in radians, in (-pi, pi].
func (m MovePart) Angle() float64 {
	return math.Atan2(float64(m.RotationI), float64(m.RotationN))
}

// RotationFromAngle returns the (sin, cos) pair carried by MovePart.
func RotationFromAngle(theta float64) (rotationI, rotationN float32) {
	s, c := math.Sincos(theta)
	return float32(s), float32(c)
}

// PartKind is the closed enumeration of part type codes.
type PartKind uint8

const (
	PartCore PartKind = iota
	PartCargo
	PartLandingThruster
	PartHub
	PartSolarPanel
)

var partKindNames = [...]string{
	PartCore:            "Core",
	PartCargo:           "Cargo",
	PartLandingThruster: "LandingThruster",
	PartHub:             "Hub",
	PartSolarPanel:      "SolarPanel",
}

// PartKinds lists every mapped kind in code order.
func PartKinds() []PartKind {
	out := make([]PartKind, len(partKindNames))
	for i := range partKindNames {
		out[i] = PartKind(i)
	}
	return out
}

func (k PartKind) Valid() bool {
	return int(k) < len(partKindNames)
}

func (k PartKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("PartKind(%d)", uint8(k))
	}
	return partKindNames[k]
}

// SpriteKey is the sprite-sheet entry the renderer draws for k.
func (k PartKind) SpriteKey() string {
	return k.String() + ".png"
}

// ParsePartKind maps a kind name back to its code.
func ParsePartKind(name string) (PartKind, error) {
	for i, n := range partKindNames {
		if n == name {
			return PartKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: part kind %q", ErrUnknownVariant, name)
}
