package server

import (
	"math"
	"time"

	"github.com/danmuck/glapctl/internal/config"
	"github.com/danmuck/glapctl/internal/protocol"
)

// World is the demo scene streamed to every connection: fixed celestial
// bodies and parts circling them. It is immutable; positions are a pure
// function of elapsed time, so connections share one World without locks.
type World struct {
	bodies map[uint32]config.Body
	cfg    config.WorldConfig
}

func NewWorld(cfg config.WorldConfig) *World {
	bodies := make(map[uint32]config.Body, len(cfg.Bodies))
	for _, b := range cfg.Bodies {
		bodies[b.ID] = b
	}
	return &World{bodies: bodies, cfg: cfg}
}

// Announcements lists every entity in the order a client must learn about
// them: bodies, then parts.
func (w *World) Announcements() []protocol.ToClientMsg {
	out := make([]protocol.ToClientMsg, 0, len(w.cfg.Bodies)+len(w.cfg.Parts))
	for _, b := range w.cfg.Bodies {
		out = append(out, protocol.AddCelestialObject{
			ID:       b.ID,
			Name:     b.Name,
			Radius:   b.Radius,
			Position: protocol.Vec2{X: b.X, Y: b.Y},
		})
	}
	for _, p := range w.cfg.Parts {
		out = append(out, protocol.AddPart{ID: p.ID, Kind: p.Kind})
	}
	return out
}

// Moves places every part at elapsed time t. A part faces along its orbit.
func (w *World) Moves(t time.Duration) []protocol.MovePart {
	out := make([]protocol.MovePart, 0, len(w.cfg.Parts))
	secs := t.Seconds()
	for _, p := range w.cfg.Parts {
		body := w.bodies[p.Body]
		phi := float64(p.Phase) + float64(p.AngularSpeed)*secs
		sin, cos := math.Sincos(phi)
		heading := phi + math.Pi/2
		if p.AngularSpeed < 0 {
			heading = phi - math.Pi/2
		}
		ri, rn := protocol.RotationFromAngle(heading)
		out = append(out, protocol.MovePart{
			ID:        p.ID,
			X:         body.X + p.OrbitRadius*float32(cos),
			Y:         body.Y + p.OrbitRadius*float32(sin),
			RotationI: ri,
			RotationN: rn,
		})
	}
	return out
}
