package headless

import (
	"github.com/dcrodman/netmanager/internal/world"
)

// StartPoint is a start position that stays valid until Invalidate is called,
// the way a scene object's spawn marker dies with its scene.
type StartPoint struct {
	name      string
	transform world.Transform
	invalid   bool
}

func NewStartPoint(name string, position world.Vector3) *StartPoint {
	return &StartPoint{
		name:      name,
		transform: world.Transform{Position: position, Rotation: world.IdentityRotation},
	}
}

func (p *StartPoint) Name() string               { return p.name }
func (p *StartPoint) Transform() world.Transform { return p.transform }
func (p *StartPoint) Valid() bool                { return !p.invalid }
func (p *StartPoint) Invalidate()                { p.invalid = true }
