package elements

import "gonum.org/v1/gonum/spatial/r3"

// Body prescribes the rigid motion of any bodybound collections
// attached to it. Velocities are constant over a run; position is
// integrated from them when needed.
type Body struct {
	Name string

	// Translational and rotational velocity, world frame.
	Vel    r3.Vec
	RotVel r3.Vec
}

// NewBody returns a stationary body with the given name.
func NewBody(name string) *Body {
	return &Body{Name: name}
}

// VelAt returns the translational velocity at the given time.
func (b *Body) VelAt(_ float64) r3.Vec {
	if b == nil {
		return r3.Vec{}
	}
	return b.Vel
}

// RotVelAt returns the rotational velocity vector at the given time.
func (b *Body) RotVelAt(_ float64) r3.Vec {
	if b == nil {
		return r3.Vec{}
	}
	return b.RotVel
}

// Moves reports whether the body has any prescribed motion.
func (b *Body) Moves() bool {
	if b == nil {
		return false
	}
	return b.Vel != (r3.Vec{}) || b.RotVel != (r3.Vec{})
}
