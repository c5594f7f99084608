package systems

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
)

const (
	// momentRows counts the moment constraints through second order:
	// 1; x,y,z; xx,yy,zz,xy,xz,yz.
	momentRows = 10

	// neighborFactor scales the candidate search radius in units of
	// the diffusion length.
	neighborFactor = 3.0

	// vrmResidTol decides feasibility of the moment system.
	vrmResidTol = 1e-6

	// parent radius growth applied when adaptation absorbs an
	// infeasible system
	adaptGrowth = 1.1
)

// VRM is the vorticity redistribution diffusion engine. One call to
// DiffuseAll approximates a single time step of Laplacian diffusion of
// the vorticity field by moment-matched, non-negative strength
// exchange among neighbors. With adaptive radii enabled it may spawn
// new lattice particles where the local cloud cannot absorb the flux;
// otherwise infeasible parents are skipped with strength in place.
type VRM struct {
	// Ignore skips parents below this strength threshold.
	Ignore float64
	// Adapt lets weak parents grow instead of spawning neighbors.
	Adapt float64
	// RadGrad bounds the spatial gradient of radius between neighbors.
	RadGrad float64
	// Relative scales the thresholds by the strongest particle.
	Relative bool
	// Simplex requests the alternative exact solver; the standard NNLS
	// path is used either way.
	Simplex bool
	// AdaptiveRadii permits per-particle radius adaptation.
	AdaptiveRadii bool
}

// NewVRM returns an engine with the customary thresholds.
func NewVRM() *VRM {
	return &VRM{
		Ignore:   1e-4,
		Adapt:    1e-5,
		RadGrad:  0.05,
		Relative: true,
	}
}

// InfeasibleParent records a parent whose moment system had no
// non-negative solution and whose redistribution was skipped, strength
// left in place. The caller decides how to report it.
type InfeasibleParent struct {
	Index     int
	Strength  float64
	Neighbors int
}

// DiffuseAll redistributes strength among the particles of pts for one
// diffusion step of length scale hnu. In adaptive mode the particle
// arrays may be extended with newly spawned lattice particles; the new
// count is returned and the caller must resize its auxiliary arrays.
// Parents whose systems stay infeasible are skipped and reported.
func (v *VRM) DiffuseAll(pts *elements.Points, hnu float64, _ kernels.CoreFunc, overlap float64) (int, []InfeasibleParent) {
	n0 := pts.N()
	if n0 == 0 {
		return 0, nil
	}

	pts.UpdateMaxStr()
	scale := 1.0
	if v.Relative {
		scale = pts.MaxStr()
	}
	ignoreThresh := v.Ignore * scale
	adaptThresh := v.Adapt * scale

	ips := math.Sqrt(8.0) * hnu
	searchRad := neighborFactor * hnu

	grid := NewSpatialHash(searchRad, pts.X, pts.Y, pts.Z)

	// double-buffered strength deltas so every parent redistributes
	// against pre-step strengths
	dsx := make([]float64, n0)
	dsy := make([]float64, n0)
	dsz := make([]float64, n0)

	scratch := make([]Neighbor, 0, 64)
	var skipped []InfeasibleParent

	for p := 0; p < n0; p++ {
		smag := math.Sqrt(pts.Sx[p]*pts.Sx[p] + pts.Sy[p]*pts.Sy[p] + pts.Sz[p]*pts.Sz[p])
		if smag < ignoreThresh || smag == 0 {
			continue
		}

		scratch = grid.QueryRadiusInto(scratch[:0],
			pts.X[p], pts.Y[p], pts.Z[p], searchRad, p, pts.X, pts.Y, pts.Z)

		// candidate columns: parent first, then the neighbors
		cand := make([]Neighbor, 0, len(scratch)+1)
		cand = append(cand, Neighbor{Idx: p})
		cand = append(cand, scratch...)

		w, ok := solveMoments(cand, hnu)
		if !ok && v.AdaptiveRadii {
			if smag < adaptThresh {
				// a weak parent may grow instead of resolving the flux
				pts.R[p] *= adaptGrowth
				continue
			}
			// materialize the missing lattice sites around the parent
			// and retry once
			added := v.spawnLatticeSites(pts, grid, p, ips, cand)
			if added > 0 {
				dsx = append(dsx, make([]float64, added)...)
				dsy = append(dsy, make([]float64, added)...)
				dsz = append(dsz, make([]float64, added)...)
				cand = cand[:1]
				cand = append(cand, grid.QueryRadiusInto(scratch[:0],
					pts.X[p], pts.Y[p], pts.Z[p], searchRad, p, pts.X, pts.Y, pts.Z)...)
				w, ok = solveMoments(cand, hnu)
			}
		}
		if !ok {
			// with adaptation disallowed (or exhausted) the parent is
			// left unchanged for this step
			skipped = append(skipped, InfeasibleParent{
				Index:     p,
				Strength:  smag,
				Neighbors: len(cand) - 1,
			})
			continue
		}

		// renormalize so the redistributed strength sums to exactly
		// the parent's, whatever residual the solver left
		wsum := 0.0
		for _, v := range w {
			wsum += v
		}
		if wsum > 0 {
			for c := range w {
				w[c] /= wsum
			}
		}

		// apply: neighbors (parent included as column 0) gain w*s,
		// the parent sheds its entire pre-step strength
		for c, nb := range cand {
			j := nb.Idx
			dsx[j] += w[c] * pts.Sx[p]
			dsy[j] += w[c] * pts.Sy[p]
			dsz[j] += w[c] * pts.Sz[p]
		}
		dsx[p] -= pts.Sx[p]
		dsy[p] -= pts.Sy[p]
		dsz[p] -= pts.Sz[p]
	}

	for i := range dsx {
		pts.Sx[i] += dsx[i]
		pts.Sy[i] += dsy[i]
		pts.Sz[i] += dsz[i]
	}

	if v.AdaptiveRadii && v.RadGrad > 0 {
		v.clampRadiusGradient(pts, grid, searchRad, ips)
	}

	return pts.N(), skipped
}

// solveMoments assembles and solves the non-negative moment-matching
// system for one parent. Offsets are scaled by the diffusion length;
// the right-hand side holds the moments of one heat-kernel step.
func solveMoments(cand []Neighbor, hnu float64) ([]float64, bool) {
	nc := len(cand)
	a := mat.NewDense(momentRows, nc, nil)
	for c, nb := range cand {
		x := nb.DX / hnu
		y := nb.DY / hnu
		z := nb.DZ / hnu
		a.Set(0, c, 1)
		a.Set(1, c, x)
		a.Set(2, c, y)
		a.Set(3, c, z)
		a.Set(4, c, x*x)
		a.Set(5, c, y*y)
		a.Set(6, c, z*z)
		a.Set(7, c, x*y)
		a.Set(8, c, x*z)
		a.Set(9, c, y*z)
	}
	b := []float64{1, 0, 0, 0, 2, 2, 2, 0, 0, 0}

	w, resid := NNLS(a, b)
	return w, resid < vrmResidTol
}

// latticeOffsets are the six face sites of the nominal particle
// lattice around a parent.
var latticeOffsets = [6][3]float64{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// spawnLatticeSites appends zero-strength particles at any nominal
// lattice site around parent p that has no occupant, inserting them
// into the hash so later parents see them. Returns the number spawned.
func (v *VRM) spawnLatticeSites(pts *elements.Points, grid *SpatialHash, p int, ips float64, cand []Neighbor) int {
	added := 0
	half := 0.5 * ips
	for _, off := range latticeOffsets {
		sx := pts.X[p] + off[0]*ips
		sy := pts.Y[p] + off[1]*ips
		sz := pts.Z[p] + off[2]*ips

		occupied := false
		for _, nb := range cand[1:] {
			dx := pts.X[nb.Idx] - sx
			dy := pts.Y[nb.Idx] - sy
			dz := pts.Z[nb.Idx] - sz
			if dx*dx+dy*dy+dz*dz < half*half {
				occupied = true
				break
			}
		}
		if occupied {
			continue
		}

		pts.X = append(pts.X, sx)
		pts.Y = append(pts.Y, sy)
		pts.Z = append(pts.Z, sz)
		pts.Sx = append(pts.Sx, 0)
		pts.Sy = append(pts.Sy, 0)
		pts.Sz = append(pts.Sz, 0)
		pts.R = append(pts.R, pts.R[p])
		grid.Insert(len(pts.R)-1, sx, sy, sz)
		added++
	}
	if added > 0 {
		pts.Resize(len(pts.R))
	}
	return added
}

// clampRadiusGradient enforces the maximum spatial gradient of radius
// over the same neighbor lists the redistribution used.
func (v *VRM) clampRadiusGradient(pts *elements.Points, grid *SpatialHash, searchRad, ips float64) {
	scratch := make([]Neighbor, 0, 64)
	for i := 0; i < pts.N(); i++ {
		scratch = grid.QueryRadiusInto(scratch[:0],
			pts.X[i], pts.Y[i], pts.Z[i], searchRad, i, pts.X, pts.Y, pts.Z)
		for _, nb := range scratch {
			lim := (1 + v.RadGrad*math.Sqrt(nb.DistSq)/ips) * pts.R[i]
			if pts.R[nb.Idx] > lim {
				pts.R[nb.Idx] = lim
			}
		}
	}
}
