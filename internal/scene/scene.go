// Package scene holds the client's view of the world: the celestial objects
// and parts a server has announced, keyed by id. Decoded entity updates are
// applied here and forwarded to an optional Renderer.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/glapctl/internal/protocol"
	"github.com/rs/zerolog"
)

var ErrUnknownEntity = errors.New("scene: unknown entity")

// Renderer receives scene changes after they are applied. Implementations
// must not call back into the Scene.
type Renderer interface {
	CelestialObjectAdded(obj CelestialObject)
	PartAdded(part Part)
	PartMoved(part Part)
}

// CelestialObject is a planet-like body. Size is the rendered diameter.
type CelestialObject struct {
	ID        uint32
	Name      string
	Radius    float32
	Position  protocol.Vec2
	SpriteKey string
	Size      float32
}

// Part is a ship part. Rotation is in radians.
type Part struct {
	ID        uint32
	Kind      protocol.PartKind
	SpriteKey string
	Position  protocol.Vec2
	Rotation  float64
	Placed    bool
}

// PartSize is the rendered width and height of every part.
const PartSize float32 = 1

type Scene struct {
	mu       sync.RWMutex
	bodies   map[uint32]CelestialObject
	parts    map[uint32]Part
	renderer Renderer
	logger   zerolog.Logger
}

func New(renderer Renderer, logger zerolog.Logger) *Scene {
	return &Scene{
		bodies:   make(map[uint32]CelestialObject),
		parts:    make(map[uint32]Part),
		renderer: renderer,
		logger:   logger,
	}
}

// Apply routes one entity update. HandshakeAccepted is not a scene update
// and is rejected like any other unexpected variant.
func (s *Scene) Apply(msg protocol.ToClientMsg) error {
	switch m := msg.(type) {
	case protocol.AddCelestialObject:
		s.AddCelestialObject(m)
		return nil
	case protocol.AddPart:
		s.AddPart(m)
		return nil
	case protocol.MovePart:
		return s.MovePart(m)
	default:
		return fmt.Errorf("%w: scene cannot apply %T", protocol.ErrUnknownVariant, msg)
	}
}

func (s *Scene) AddCelestialObject(m protocol.AddCelestialObject) {
	obj := CelestialObject{
		ID:        m.ID,
		Name:      m.Name,
		Radius:    m.Radius,
		Position:  m.Position,
		SpriteKey: m.Name + ".png",
		Size:      2 * m.Radius,
	}
	s.mu.Lock()
	if _, ok := s.bodies[m.ID]; ok {
		s.logger.Warn().Uint32("id", m.ID).Msg("celestial object announced twice; replacing")
	}
	s.bodies[m.ID] = obj
	s.mu.Unlock()

	if s.renderer != nil {
		s.renderer.CelestialObjectAdded(obj)
	}
}

func (s *Scene) AddPart(m protocol.AddPart) {
	part := Part{
		ID:        m.ID,
		Kind:      m.Kind,
		SpriteKey: m.Kind.SpriteKey(),
	}
	s.mu.Lock()
	if _, ok := s.parts[m.ID]; ok {
		s.logger.Warn().Uint32("id", m.ID).Msg("part announced twice; replacing")
	}
	s.parts[m.ID] = part
	s.mu.Unlock()

	if s.renderer != nil {
		s.renderer.PartAdded(part)
	}
}

// MovePart updates a known part. An id never announced with AddPart
// returns ErrUnknownEntity and leaves the scene unchanged.
func (s *Scene) MovePart(m protocol.MovePart) error {
	s.mu.Lock()
	part, ok := s.parts[m.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: part %d", ErrUnknownEntity, m.ID)
	}
	part.Position = protocol.Vec2{X: m.X, Y: m.Y}
	part.Rotation = m.Angle()
	part.Placed = true
	s.parts[m.ID] = part
	s.mu.Unlock()

	if s.renderer != nil {
		s.renderer.PartMoved(part)
	}
	return nil
}

func (s *Scene) CelestialObject(id uint32) (CelestialObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.bodies[id]
	return obj, ok
}

func (s *Scene) Part(id uint32) (Part, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part, ok := s.parts[id]
	return part, ok
}

// Snapshot is a point-in-time copy of the scene, ordered by id.
type Snapshot struct {
	CelestialObjects []CelestialObject `json:"celestial_objects"`
	Parts            []Part            `json:"parts"`
}

func (s *Scene) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		CelestialObjects: make([]CelestialObject, 0, len(s.bodies)),
		Parts:            make([]Part, 0, len(s.parts)),
	}
	for _, obj := range s.bodies {
		snap.CelestialObjects = append(snap.CelestialObjects, obj)
	}
	for _, part := range s.parts {
		snap.Parts = append(snap.Parts, part)
	}
	sort.Slice(snap.CelestialObjects, func(i, j int) bool {
		return snap.CelestialObjects[i].ID < snap.CelestialObjects[j].ID
	})
	sort.Slice(snap.Parts, func(i, j int) bool { return snap.Parts[i].ID < snap.Parts[j].ID })
	return snap
}

// Reset drops every entity; ids are only unique within one connection.
func (s *Scene) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.bodies)
	clear(s.parts)
}
