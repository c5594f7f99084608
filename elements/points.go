package elements

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// TupleLen is the stride of a flat particle batch: x,y,z, sx,sy,sz, r.
const TupleLen = 7

// Points is the columnar particle store. All slices share a common
// length; the position, strength and radius columns are the canonical
// state, the rest are auxiliaries resized to match after any operation
// that changes the population.
type Points struct {
	// Position
	X, Y, Z []float64
	// Vorticity strength (circulation contribution)
	Sx, Sy, Sz []float64
	// Core radius
	R []float64
	// Accumulated elongation since birth, >= 1
	Elong []float64

	// Velocity accumulators
	U, V, W []float64
	// Velocity gradient accumulators, d(vel component)/d(direction)
	UX, UY, UZ []float64
	VX, VY, VZ []float64
	WX, WY, WZ []float64

	elemKind ElemKind
	moveKind MoveKind
	body     *Body

	maxStr float64
}

// NewPoints builds a store from a flat batch of 7-tuples. A zero radius
// in the batch is replaced with vdelta. Panics if the batch length is
// not a multiple of 7; callers construct batches programmatically.
func NewPoints(batch []float64, vdelta float64, ek ElemKind, mk MoveKind, body *Body) *Points {
	p := &Points{elemKind: ek, moveKind: mk, body: body}
	p.AddNew(batch, vdelta)
	return p
}

// N returns the particle count.
func (p *Points) N() int { return len(p.R) }

// ElemKind returns the element kind of the collection.
func (p *Points) ElemKind() ElemKind { return p.elemKind }

// MoveKind returns the motion kind of the collection.
func (p *Points) MoveKind() MoveKind { return p.moveKind }

// Body returns the driving body, or nil.
func (p *Points) Body() *Body { return p.body }

// IsInert reports whether the collection carries no strength.
func (p *Points) IsInert() bool { return p.elemKind == Inert }

// AddNew appends a flat batch of 7-tuples, growing every column in
// lockstep. Zero radii are assigned vdelta. New particles start with
// unit elongation and zero velocity state.
func (p *Points) AddNew(batch []float64, vdelta float64) {
	if len(batch)%TupleLen != 0 {
		panic(fmt.Sprintf("elements: particle batch length %d not a multiple of %d", len(batch), TupleLen))
	}
	nnew := len(batch) / TupleLen
	if nnew == 0 {
		return
	}
	for i := 0; i < nnew; i++ {
		j := i * TupleLen
		p.X = append(p.X, batch[j+0])
		p.Y = append(p.Y, batch[j+1])
		p.Z = append(p.Z, batch[j+2])
		p.Sx = append(p.Sx, batch[j+3])
		p.Sy = append(p.Sy, batch[j+4])
		p.Sz = append(p.Sz, batch[j+5])
		r := batch[j+6]
		if r == 0 {
			r = vdelta
		}
		p.R = append(p.R, r)
	}
	p.Resize(len(p.R))
}

// Resize truncates or zero-extends the auxiliary columns to match a new
// canonical length chosen by VRM, merge or split. The canonical columns
// (positions, strengths, radii) must already have the new length.
func (p *Points) Resize(n int) {
	p.Elong = resizeFill(p.Elong, n, 1.0)
	p.U = resizeFill(p.U, n, 0)
	p.V = resizeFill(p.V, n, 0)
	p.W = resizeFill(p.W, n, 0)
	p.UX = resizeFill(p.UX, n, 0)
	p.UY = resizeFill(p.UY, n, 0)
	p.UZ = resizeFill(p.UZ, n, 0)
	p.VX = resizeFill(p.VX, n, 0)
	p.VY = resizeFill(p.VY, n, 0)
	p.VZ = resizeFill(p.VZ, n, 0)
	p.WX = resizeFill(p.WX, n, 0)
	p.WY = resizeFill(p.WY, n, 0)
	p.WZ = resizeFill(p.WZ, n, 0)
}

func resizeFill(s []float64, n int, fill float64) []float64 {
	if len(s) > n {
		return s[:n]
	}
	for len(s) < n {
		s = append(s, fill)
	}
	return s
}

// TotalCirculation returns the vector sum of particle strengths.
func (p *Points) TotalCirculation() r3.Vec {
	return r3.Vec{
		X: floats.Sum(p.Sx),
		Y: floats.Sum(p.Sy),
		Z: floats.Sum(p.Sz),
	}
}

// TotalImpulse returns sum over particles of position cross strength.
func (p *Points) TotalImpulse() r3.Vec {
	var imp r3.Vec
	for i := range p.R {
		imp.X += p.Y[i]*p.Sz[i] - p.Z[i]*p.Sy[i]
		imp.Y += p.Z[i]*p.Sx[i] - p.X[i]*p.Sz[i]
		imp.Z += p.X[i]*p.Sy[i] - p.Y[i]*p.Sx[i]
	}
	return imp
}

// UpdateMaxStr recomputes the cached maximum strength magnitude, used
// for relative-threshold decisions downstream.
func (p *Points) UpdateMaxStr() {
	m := 0.0
	for i := range p.Sx {
		s := p.Sx[i]*p.Sx[i] + p.Sy[i]*p.Sy[i] + p.Sz[i]*p.Sz[i]
		if s > m {
			m = s
		}
	}
	p.maxStr = math.Sqrt(m)
}

// MaxStr returns the cached maximum strength magnitude.
func (p *Points) MaxStr() float64 { return p.maxStr }

// MaxElong returns the largest accumulated elongation.
func (p *Points) MaxElong() float64 {
	if len(p.Elong) == 0 {
		return 0
	}
	return floats.Max(p.Elong)
}

// StrMag returns the strength magnitude of particle i.
func (p *Points) StrMag(i int) float64 {
	return math.Sqrt(p.Sx[i]*p.Sx[i] + p.Sy[i]*p.Sy[i] + p.Sz[i]*p.Sz[i])
}

// Remove deletes the particles whose indices are set in the dead
// bitmap, compacting every column. Order of survivors is preserved.
func (p *Points) Remove(dead []bool) {
	keep := 0
	for i := range p.R {
		if dead[i] {
			continue
		}
		if keep != i {
			p.X[keep], p.Y[keep], p.Z[keep] = p.X[i], p.Y[i], p.Z[i]
			p.Sx[keep], p.Sy[keep], p.Sz[keep] = p.Sx[i], p.Sy[i], p.Sz[i]
			p.R[keep] = p.R[i]
			p.Elong[keep] = p.Elong[i]
			p.U[keep], p.V[keep], p.W[keep] = p.U[i], p.V[i], p.W[i]
			p.UX[keep], p.UY[keep], p.UZ[keep] = p.UX[i], p.UY[i], p.UZ[i]
			p.VX[keep], p.VY[keep], p.VZ[keep] = p.VX[i], p.VY[i], p.VZ[i]
			p.WX[keep], p.WY[keep], p.WZ[keep] = p.WX[i], p.WY[i], p.WZ[i]
		}
		keep++
	}
	p.truncate(keep)
}

func (p *Points) truncate(n int) {
	p.X, p.Y, p.Z = p.X[:n], p.Y[:n], p.Z[:n]
	p.Sx, p.Sy, p.Sz = p.Sx[:n], p.Sy[:n], p.Sz[:n]
	p.R = p.R[:n]
	p.Resize(n)
}

// HasNonFinite reports whether any position or strength component is
// NaN or infinite.
func (p *Points) HasNonFinite() bool {
	cols := [][]float64{p.X, p.Y, p.Z, p.Sx, p.Sy, p.Sz}
	for _, c := range cols {
		for _, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
