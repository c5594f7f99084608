package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
)

// Convection advances all element collections through one time step of
// the convection half of the operator split: particles move with the
// local induced velocity, strengths stretch with the velocity
// gradient, and bodybound surfaces follow their bodies.
type Convection struct {
	Core kernels.CoreFunc
}

// NewConvection returns an integrator using the given core.
func NewConvection(core kernels.CoreFunc) *Convection {
	return &Convection{Core: core}
}

// FindVels refreshes velocities (no gradients) on the target
// collections without moving anything. The BEM must be current.
func (c *Convection) FindVels(fs r3.Vec, vort, bdry, targets []elements.Collection) {
	EvalVelocities(fs, vort, bdry, targets, c.Core, false)
}

// Advect1st is the forward-Euler step: solve the BEM, evaluate
// velocities and gradients once, and advance positions and strengths.
// A zero dt only refreshes the solution, which is how the first step
// of a run initializes velocities without moving anything.
func (c *Convection) Advect1st(t, dt float64, fs r3.Vec, vort, bdry, fldpt []elements.Collection, bem *BEM) error {
	if err := bem.Solve(t, fs, vort, bdry); err != nil {
		return err
	}
	EvalVelocities(fs, vort, bdry, vort, c.Core, true)
	EvalVelocities(fs, vort, bdry, fldpt, c.Core, false)
	if dt == 0 {
		return nil
	}

	for _, vc := range vort {
		if pts, ok := vc.(*elements.Points); ok {
			advanceParticles(pts, dt)
		}
	}
	for _, fc := range fldpt {
		if pts, ok := fc.(*elements.Points); ok && pts.MoveKind() == elements.Lagrangian {
			advancePositions(pts, dt)
		}
	}
	moveBodies(t, dt, bdry, bem)
	return nil
}

// Advect2nd is the two-stage midpoint step. Velocities are evaluated
// at the start, positions advanced a half step, the BEM re-solved and
// velocities re-evaluated there, then the full step is taken with the
// midpoint rates.
func (c *Convection) Advect2nd(t, dt float64, fs r3.Vec, vort, bdry, fldpt []elements.Collection, bem *BEM) error {
	if err := bem.Solve(t, fs, vort, bdry); err != nil {
		return err
	}
	EvalVelocities(fs, vort, bdry, vort, c.Core, true)
	EvalVelocities(fs, vort, bdry, fldpt, c.Core, false)

	// stash the start-of-step state, then take the trial half step
	saved := saveState(vort, fldpt)
	for _, vc := range vort {
		if pts, ok := vc.(*elements.Points); ok {
			advanceParticles(pts, 0.5*dt)
		}
	}
	for _, fc := range fldpt {
		if pts, ok := fc.(*elements.Points); ok && pts.MoveKind() == elements.Lagrangian {
			advancePositions(pts, 0.5*dt)
		}
	}

	// midpoint rates
	if err := bem.Solve(t+0.5*dt, fs, vort, bdry); err != nil {
		return err
	}
	EvalVelocities(fs, vort, bdry, vort, c.Core, true)
	EvalVelocities(fs, vort, bdry, fldpt, c.Core, false)

	// restore and take the full step with the midpoint rates
	restoreState(vort, fldpt, saved)
	for _, vc := range vort {
		if pts, ok := vc.(*elements.Points); ok {
			advanceParticles(pts, dt)
		}
	}
	for _, fc := range fldpt {
		if pts, ok := fc.(*elements.Points); ok && pts.MoveKind() == elements.Lagrangian {
			advancePositions(pts, dt)
		}
	}
	moveBodies(t, dt, bdry, bem)
	return nil
}

type savedCols struct {
	x, y, z    []float64
	sx, sy, sz []float64
	elong      []float64
}

func saveState(vort, fldpt []elements.Collection) map[*elements.Points]savedCols {
	out := make(map[*elements.Points]savedCols)
	grab := func(pts *elements.Points) {
		out[pts] = savedCols{
			x:  append([]float64(nil), pts.X...),
			y:  append([]float64(nil), pts.Y...),
			z:  append([]float64(nil), pts.Z...),
			sx: append([]float64(nil), pts.Sx...),
			sy: append([]float64(nil), pts.Sy...),
			sz: append([]float64(nil), pts.Sz...),

			elong: append([]float64(nil), pts.Elong...),
		}
	}
	for _, vc := range vort {
		if pts, ok := vc.(*elements.Points); ok {
			grab(pts)
		}
	}
	for _, fc := range fldpt {
		if pts, ok := fc.(*elements.Points); ok {
			grab(pts)
		}
	}
	return out
}

func restoreState(vort, fldpt []elements.Collection, saved map[*elements.Points]savedCols) {
	put := func(pts *elements.Points) {
		s, ok := saved[pts]
		if !ok {
			return
		}
		copy(pts.X, s.x)
		copy(pts.Y, s.y)
		copy(pts.Z, s.z)
		copy(pts.Sx, s.sx)
		copy(pts.Sy, s.sy)
		copy(pts.Sz, s.sz)
		copy(pts.Elong, s.elong)
	}
	for _, vc := range vort {
		if pts, ok := vc.(*elements.Points); ok {
			put(pts)
		}
	}
	for _, fc := range fldpt {
		if pts, ok := fc.(*elements.Points); ok {
			put(pts)
		}
	}
}

// advanceParticles moves Lagrangian particles and applies vortex
// stretching from the evaluated gradients. Elongation accumulates the
// relative strength growth, floored at one.
func advanceParticles(pts *elements.Points, dt float64) {
	if pts.MoveKind() != elements.Lagrangian {
		return
	}
	for i := 0; i < pts.N(); i++ {
		pts.X[i] += dt * pts.U[i]
		pts.Y[i] += dt * pts.V[i]
		pts.Z[i] += dt * pts.W[i]

		sx, sy, sz := pts.Sx[i], pts.Sy[i], pts.Sz[i]
		mag0 := math.Sqrt(sx*sx + sy*sy + sz*sz)
		if mag0 == 0 {
			continue
		}
		// ds/dt = (s . grad) u
		pts.Sx[i] += dt * (sx*pts.UX[i] + sy*pts.UY[i] + sz*pts.UZ[i])
		pts.Sy[i] += dt * (sx*pts.VX[i] + sy*pts.VY[i] + sz*pts.VZ[i])
		pts.Sz[i] += dt * (sx*pts.WX[i] + sy*pts.WY[i] + sz*pts.WZ[i])

		mag1 := pts.StrMag(i)
		e := pts.Elong[i] * mag1 / mag0
		if e < 1 {
			e = 1
		}
		pts.Elong[i] = e
	}
}

func advancePositions(pts *elements.Points, dt float64) {
	for i := 0; i < pts.N(); i++ {
		pts.X[i] += dt * pts.U[i]
		pts.Y[i] += dt * pts.V[i]
		pts.Z[i] += dt * pts.W[i]
	}
}

// moveBodies translates bodybound surfaces by their prescribed motion
// and invalidates the BEM factorization when anything moved.
func moveBodies(t, dt float64, bdry []elements.Collection, bem *BEM) {
	moved := false
	for _, bc := range bdry {
		surf, ok := bc.(*elements.Surfaces)
		if !ok || surf.MoveKind() != elements.Bodybound {
			continue
		}
		body := surf.Body()
		if body == nil || !body.Moves() {
			continue
		}
		surf.Translate(r3.Scale(dt, body.VelAt(t)))
		moved = true
	}
	if moved {
		bem.MarkDirty()
	}
}
