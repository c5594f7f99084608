package elements

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Surfaces owns triangle panel geometry and the per-panel vortex sheet
// strengths that the BEM solves for. Node coordinates are columnar;
// panels index into them three at a time.
type Surfaces struct {
	// Node coordinates
	NX, NY, NZ []float64
	// Triangle connectivity, 3 indices per panel
	Idx []int32

	// Per-panel orthonormal basis and geometry
	T1, T2, Norm []r3.Vec
	Area         []float64
	CX, CY, CZ   []float64

	// Sheet strength 2-vector in the local tangent basis
	Gamma1, Gamma2 []float64
	// Optional scalar source strength
	Sigma []float64

	elemKind ElemKind
	moveKind MoveKind
	body     *Body

	maxStr float64
}

// NewSurfaces builds a surface collection from flat node coordinates
// (x,y,z interleaved) and triangle indices. Panel bases, areas and
// centroids are derived immediately; sheet strengths start at zero.
func NewSurfaces(nodes []float64, idx []int32, ek ElemKind, mk MoveKind, body *Body) (*Surfaces, error) {
	if len(nodes)%3 != 0 {
		return nil, fmt.Errorf("elements: node array length %d not a multiple of 3", len(nodes))
	}
	if len(idx)%3 != 0 {
		return nil, fmt.Errorf("elements: index array length %d not a multiple of 3", len(idx))
	}
	s := &Surfaces{elemKind: ek, moveKind: mk, body: body}
	nn := len(nodes) / 3
	s.NX = make([]float64, nn)
	s.NY = make([]float64, nn)
	s.NZ = make([]float64, nn)
	for i := 0; i < nn; i++ {
		s.NX[i] = nodes[3*i+0]
		s.NY[i] = nodes[3*i+1]
		s.NZ[i] = nodes[3*i+2]
	}
	s.Idx = append(s.Idx, idx...)
	np := len(idx) / 3
	s.Gamma1 = make([]float64, np)
	s.Gamma2 = make([]float64, np)
	s.Sigma = make([]float64, np)
	s.computeGeometry()
	return s, nil
}

// AddNew appends more nodes and panels to an existing collection. The
// incoming indices are local to the incoming node block.
func (s *Surfaces) AddNew(nodes []float64, idx []int32) error {
	if len(nodes)%3 != 0 || len(idx)%3 != 0 {
		return fmt.Errorf("elements: malformed surface batch")
	}
	base := int32(len(s.NX))
	for i := 0; i < len(nodes)/3; i++ {
		s.NX = append(s.NX, nodes[3*i+0])
		s.NY = append(s.NY, nodes[3*i+1])
		s.NZ = append(s.NZ, nodes[3*i+2])
	}
	for _, ix := range idx {
		s.Idx = append(s.Idx, base+ix)
	}
	grow := len(idx) / 3
	s.Gamma1 = append(s.Gamma1, make([]float64, grow)...)
	s.Gamma2 = append(s.Gamma2, make([]float64, grow)...)
	s.Sigma = append(s.Sigma, make([]float64, grow)...)
	s.computeGeometry()
	return nil
}

// computeGeometry rebuilds panel tangents, normals, areas and
// centroids from the node and index arrays.
func (s *Surfaces) computeGeometry() {
	np := len(s.Idx) / 3
	s.T1 = make([]r3.Vec, np)
	s.T2 = make([]r3.Vec, np)
	s.Norm = make([]r3.Vec, np)
	s.Area = make([]float64, np)
	s.CX = make([]float64, np)
	s.CY = make([]float64, np)
	s.CZ = make([]float64, np)
	for i := 0; i < np; i++ {
		a, b, c := s.Vertex(i, 0), s.Vertex(i, 1), s.Vertex(i, 2)
		e1 := r3.Sub(b, a)
		e2 := r3.Sub(c, a)
		n := r3.Cross(e1, e2)
		twoA := r3.Norm(n)
		s.Area[i] = 0.5 * twoA
		if twoA > 0 {
			n = r3.Scale(1/twoA, n)
		}
		t1 := e1
		if l := r3.Norm(t1); l > 0 {
			t1 = r3.Scale(1/l, t1)
		}
		s.T1[i] = t1
		s.T2[i] = r3.Cross(n, t1)
		s.Norm[i] = n
		s.CX[i] = (a.X + b.X + c.X) / 3
		s.CY[i] = (a.Y + b.Y + c.Y) / 3
		s.CZ[i] = (a.Z + b.Z + c.Z) / 3
	}
}

// Vertex returns corner k (0..2) of panel i.
func (s *Surfaces) Vertex(i, k int) r3.Vec {
	j := s.Idx[3*i+k]
	return r3.Vec{X: s.NX[j], Y: s.NY[j], Z: s.NZ[j]}
}

// Center returns the centroid of panel i.
func (s *Surfaces) Center(i int) r3.Vec {
	return r3.Vec{X: s.CX[i], Y: s.CY[i], Z: s.CZ[i]}
}

// WorldGamma returns panel i's sheet strength rotated into the world
// frame.
func (s *Surfaces) WorldGamma(i int) r3.Vec {
	return r3.Add(r3.Scale(s.Gamma1[i], s.T1[i]), r3.Scale(s.Gamma2[i], s.T2[i]))
}

// NPanels returns the panel count.
func (s *Surfaces) NPanels() int { return len(s.Idx) / 3 }

// NNodes returns the node count.
func (s *Surfaces) NNodes() int { return len(s.NX) }

// N returns the panel count; Collection interface.
func (s *Surfaces) N() int { return s.NPanels() }

// ElemKind returns the element kind of the collection.
func (s *Surfaces) ElemKind() ElemKind { return s.elemKind }

// MoveKind returns the motion kind of the collection.
func (s *Surfaces) MoveKind() MoveKind { return s.moveKind }

// Body returns the driving body, or nil.
func (s *Surfaces) Body() *Body { return s.body }

// IsInert reports whether the collection carries no strength.
func (s *Surfaces) IsInert() bool { return s.elemKind == Inert }

// RepresentAsParticles emits one particle per panel, located at the
// panel centroid displaced along the outward normal by offset, carrying
// the panel's world-frame sheet strength times its area. The returned
// batch is the flat 7-tuple format AddNew expects.
func (s *Surfaces) RepresentAsParticles(offset, vdelta float64) []float64 {
	np := s.NPanels()
	out := make([]float64, 0, np*TupleLen)
	for i := 0; i < np; i++ {
		g := s.WorldGamma(i)
		pos := r3.Add(s.Center(i), r3.Scale(offset, s.Norm[i]))
		out = append(out,
			pos.X, pos.Y, pos.Z,
			g.X*s.Area[i], g.Y*s.Area[i], g.Z*s.Area[i],
			vdelta)
	}
	return out
}

// TotalCirculation integrates the sheet strengths over the surface.
func (s *Surfaces) TotalCirculation() r3.Vec {
	var tot r3.Vec
	for i := 0; i < s.NPanels(); i++ {
		g := s.WorldGamma(i)
		tot = r3.Add(tot, r3.Scale(s.Area[i], g))
	}
	return tot
}

// BodyCirculation returns the circulation bound in the body interior.
// Zero for now; stationary closed surfaces carry none.
func (s *Surfaces) BodyCirculation() r3.Vec { return r3.Vec{} }

// TotalImpulse returns the impulse carried by the sheet strengths.
func (s *Surfaces) TotalImpulse() r3.Vec {
	var imp r3.Vec
	for i := 0; i < s.NPanels(); i++ {
		g := r3.Scale(s.Area[i], s.WorldGamma(i))
		c := s.Center(i)
		imp = r3.Add(imp, r3.Cross(c, g))
	}
	return imp
}

// UpdateMaxStr recomputes the cached maximum panel strength magnitude.
func (s *Surfaces) UpdateMaxStr() {
	m := 0.0
	for i := range s.Gamma1 {
		v := s.Gamma1[i]*s.Gamma1[i] + s.Gamma2[i]*s.Gamma2[i]
		if v > m {
			m = v
		}
	}
	s.maxStr = math.Sqrt(m)
}

// MaxStr returns the cached maximum strength magnitude.
func (s *Surfaces) MaxStr() float64 { return s.maxStr }

// MaxBC returns the largest boundary-condition magnitude a panel would
// see from body motion alone; used by initialization checks.
func (s *Surfaces) MaxBC(t float64) float64 {
	if s.body == nil {
		return 0
	}
	v := s.body.VelAt(t)
	w := s.body.RotVelAt(t)
	return r3.Norm(v) + r3.Norm(w)
}

// Translate moves every node (and derived geometry) by d.
func (s *Surfaces) Translate(d r3.Vec) {
	for i := range s.NX {
		s.NX[i] += d.X
		s.NY[i] += d.Y
		s.NZ[i] += d.Z
	}
	s.computeGeometry()
}
