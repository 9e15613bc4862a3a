package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/danmuck/glapctl/internal/protocol"
	"github.com/danmuck/glapctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

type recorder struct {
	bodies []CelestialObject
	added  []Part
	moved  []Part
}

func (r *recorder) CelestialObjectAdded(obj CelestialObject) { r.bodies = append(r.bodies, obj) }
func (r *recorder) PartAdded(part Part)                      { r.added = append(r.added, part) }
func (r *recorder) PartMoved(part Part)                      { r.moved = append(r.moved, part) }

func TestApplyEntityUpdates(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	s := New(rec, zerolog.Nop())

	updates := []protocol.ToClientMsg{
		protocol.AddCelestialObject{ID: 1, Name: "earth", Radius: 10, Position: protocol.Vec2{X: 3, Y: 4}},
		protocol.AddPart{ID: 7, Kind: protocol.PartLandingThruster},
		protocol.MovePart{ID: 7, X: 1.5, Y: -2, RotationI: 1, RotationN: 0},
	}
	for _, u := range updates {
		if err := s.Apply(u); err != nil {
			t.Fatalf("apply %s: %v", u.Variant(), err)
		}
	}

	earth, ok := s.CelestialObject(1)
	if !ok || earth.SpriteKey != "earth.png" || earth.Size != 20 {
		t.Fatalf("unexpected celestial object: %+v ok=%v", earth, ok)
	}
	part, ok := s.Part(7)
	if !ok {
		t.Fatalf("expected part 7")
	}
	if part.SpriteKey != "LandingThruster.png" || !part.Placed {
		t.Fatalf("unexpected part: %+v", part)
	}
	if part.Position != (protocol.Vec2{X: 1.5, Y: -2}) || math.Abs(part.Rotation-math.Pi/2) > 1e-9 {
		t.Fatalf("unexpected placement: %+v", part)
	}
	if len(rec.bodies) != 1 || len(rec.added) != 1 || len(rec.moved) != 1 {
		t.Fatalf("unexpected renderer calls: %+v", rec)
	}
}

func TestMoveUnknownPartIsRejected(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	s := New(rec, zerolog.Nop())
	if err := s.Apply(protocol.AddCelestialObject{ID: 7, Name: "moon", Radius: 1}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	err := s.Apply(protocol.MovePart{ID: 7, RotationN: 1})
	if !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
	if _, ok := s.Part(7); ok {
		t.Fatalf("unknown move must not create a part")
	}
	if len(rec.moved) != 0 {
		t.Fatalf("renderer must not see a rejected move")
	}
}

func TestApplyRejectsHandshakeAccepted(t *testing.T) {
	testlog.Start(t)
	s := New(nil, zerolog.Nop())
	if err := s.Apply(protocol.HandshakeAccepted{}); !errors.Is(err, protocol.ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestDuplicateAddReplaces(t *testing.T) {
	testlog.Start(t)
	s := New(nil, zerolog.Nop())
	s.AddPart(protocol.AddPart{ID: 3, Kind: protocol.PartCore})
	if err := s.MovePart(protocol.MovePart{ID: 3, X: 9, RotationN: 1}); err != nil {
		t.Fatalf("move: %v", err)
	}
	s.AddPart(protocol.AddPart{ID: 3, Kind: protocol.PartCargo})
	part, _ := s.Part(3)
	if part.Kind != protocol.PartCargo || part.Placed {
		t.Fatalf("expected fresh cargo part, got %+v", part)
	}
}

func TestSnapshotOrderedAndReset(t *testing.T) {
	testlog.Start(t)
	s := New(nil, zerolog.Nop())
	for _, id := range []uint32{5, 1, 3} {
		s.AddPart(protocol.AddPart{ID: id, Kind: protocol.PartSolarPanel})
		s.AddCelestialObject(protocol.AddCelestialObject{ID: id, Name: "body", Radius: 2})
	}
	snap := s.Snapshot()
	if len(snap.Parts) != 3 || snap.Parts[0].ID != 1 || snap.Parts[2].ID != 5 {
		t.Fatalf("unexpected part order: %+v", snap.Parts)
	}
	if len(snap.CelestialObjects) != 3 || snap.CelestialObjects[1].ID != 3 {
		t.Fatalf("unexpected body order: %+v", snap.CelestialObjects)
	}
	s.Reset()
	if snap := s.Snapshot(); len(snap.Parts) != 0 || len(snap.CelestialObjects) != 0 {
		t.Fatalf("expected empty scene after reset, got %+v", snap)
	}
}
