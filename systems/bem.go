package systems

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
)

// MaxPanels caps the dense BEM system size.
const MaxPanels = 21000

// BEM solves for the vortex sheet strengths on all reactive surfaces
// such that the boundary condition (interior stagnation, expressed on
// the two tangential components at every panel centroid) holds. The
// self-influence matrix depends only on geometry, so its LU
// factorization is retained across steps until a surface moves.
type BEM struct {
	Core kernels.CoreFunc

	lu    *mat.LU
	amat  *mat.Dense
	dirty bool
	nun   int
}

// NewBEM returns a solver using the given core regularization.
func NewBEM(core kernels.CoreFunc) *BEM {
	return &BEM{Core: core, dirty: true}
}

// Reset drops any cached factorization.
func (b *BEM) Reset() {
	b.lu = nil
	b.amat = nil
	b.dirty = true
	b.nun = 0
}

// MarkDirty invalidates the cached factorization after any surface
// geometry change.
func (b *BEM) MarkDirty() { b.dirty = true }

// reactiveSurfaces gathers the unknown-carrying surfaces in order.
func reactiveSurfaces(bdry []elements.Collection) []*elements.Surfaces {
	var out []*elements.Surfaces
	for _, c := range bdry {
		if s, ok := c.(*elements.Surfaces); ok && s.ElemKind() == elements.Reactive {
			out = append(out, s)
		}
	}
	return out
}

// Solve updates the sheet strengths of every reactive surface given
// the current particle cloud and freestream. A no-op when there are no
// reactive panels.
func (b *BEM) Solve(t float64, fs r3.Vec, vort, bdry []elements.Collection) error {
	surfs := reactiveSurfaces(bdry)
	ntot := 0
	for _, s := range surfs {
		ntot += s.NPanels()
	}
	if ntot == 0 {
		return nil
	}
	if ntot > MaxPanels {
		return fmt.Errorf("bem: %d panels exceeds capacity %d", ntot, MaxPanels)
	}

	nun := 2 * ntot
	if b.dirty || b.lu == nil || b.nun != nun {
		if err := b.assemble(surfs, nun); err != nil {
			return err
		}
	}

	rhs := b.buildRHS(t, fs, vort, surfs, nun)

	var sol mat.VecDense
	if err := b.lu.SolveVecTo(&sol, false, rhs); err != nil {
		return fmt.Errorf("bem: factorized solve failed: %w", err)
	}

	row := 0
	for _, s := range surfs {
		for i := 0; i < s.NPanels(); i++ {
			s.Gamma1[i] = sol.AtVec(row)
			s.Gamma2[i] = sol.AtVec(row + 1)
			row += 2
		}
		s.UpdateMaxStr()
	}
	return nil
}

// assemble builds the dense self-influence matrix: the tangential
// velocity at every panel centroid due to a unit sheet strength on
// every panel, with the principal-value jump terms on the diagonal
// blocks, and factorizes it.
func (b *BEM) assemble(surfs []*elements.Surfaces, nun int) error {
	a := mat.NewDense(nun, nun, nil)

	// global panel walk helpers
	type panelRef struct {
		s *elements.Surfaces
		i int
	}
	var panels []panelRef
	for _, s := range surfs {
		for i := 0; i < s.NPanels(); i++ {
			panels = append(panels, panelRef{s, i})
		}
	}

	for jj, src := range panels {
		v0 := src.s.Vertex(src.i, 0)
		v1 := src.s.Vertex(src.i, 1)
		v2 := src.s.Vertex(src.i, 2)
		area := src.s.Area[src.i]
		// unit strengths along the source panel's two tangents
		for comp := 0; comp < 2; comp++ {
			g := src.s.T1[src.i]
			if comp == 1 {
				g = src.s.T2[src.i]
			}
			col := 2*jj + comp
			for ii, tgt := range panels {
				if ii == jj {
					continue
				}
				c := tgt.s.Center(tgt.i)
				var u, v, w float64
				kernels.Panel2v0p(b.Core,
					v0.X, v0.Y, v0.Z,
					v1.X, v1.Y, v1.Z,
					v2.X, v2.Y, v2.Z,
					g.X*area, g.Y*area, g.Z*area,
					c.X, c.Y, c.Z,
					&u, &v, &w)
				vel := r3.Vec{X: u / fourPi, Y: v / fourPi, Z: w / fourPi}
				a.Set(2*ii+0, col, a.At(2*ii+0, col)+r3.Dot(vel, tgt.s.T1[tgt.i]))
				a.Set(2*ii+1, col, a.At(2*ii+1, col)+r3.Dot(vel, tgt.s.T2[tgt.i]))
			}
		}
		// diagonal block: the half-jump of the sheet itself,
		// -(gamma x n) / 2 seen from the interior side
		a.Set(2*jj+0, 2*jj+1, a.At(2*jj+0, 2*jj+1)-0.5)
		a.Set(2*jj+1, 2*jj+0, a.At(2*jj+1, 2*jj+0)+0.5)
	}

	lu := &mat.LU{}
	lu.Factorize(a)
	if lu.Cond() > 1e14 {
		return fmt.Errorf("bem: influence matrix is singular to working precision")
	}
	b.amat = a
	b.lu = lu
	b.nun = nun
	b.dirty = false
	return nil
}

// buildRHS evaluates the known external velocity (particles plus
// freestream, minus any prescribed body motion) at each panel centroid
// and projects its negation onto the panel tangents.
func (b *BEM) buildRHS(t float64, fs r3.Vec, vort []elements.Collection, surfs []*elements.Surfaces, nun int) *mat.VecDense {
	rhs := mat.NewVecDense(nun, nil)
	row := 0
	for _, s := range surfs {
		body := s.Body()
		for i := 0; i < s.NPanels(); i++ {
			c := s.Center(i)
			uext := InducedAt(fs, vort, nil, c, b.Core)
			var ubody r3.Vec
			if body != nil {
				ubody = r3.Add(body.VelAt(t), r3.Cross(body.RotVelAt(t), c))
			}
			diff := r3.Sub(ubody, uext)
			rhs.SetVec(row, r3.Dot(diff, s.T1[i]))
			rhs.SetVec(row+1, r3.Dot(diff, s.T2[i]))
			row += 2
		}
	}
	return rhs
}
