package systems

import (
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
)

// parallelThreshold is the minimum target count for chunked workers.
// Below it the goroutine overhead outweighs the summation.
const parallelThreshold = 256

const fourPi = 4.0 * math.Pi

// EvalVelocities computes the induced velocity (and, when grads is
// set, the velocity gradient) at every particle of every Points
// collection in targets, from all vortex particles in vort and all
// panel sheets in bdry, plus the freestream. Results overwrite the
// targets' accumulator columns. The summation is chunked across
// GOMAXPROCS workers; the kernels are pure so sources are shared
// freely.
func EvalVelocities(fs r3.Vec, vort, bdry, targets []elements.Collection, core kernels.CoreFunc, grads bool) {
	for _, tc := range targets {
		pts, ok := tc.(*elements.Points)
		if !ok || pts.N() == 0 {
			continue
		}
		evalOnPoints(fs, vort, bdry, pts, core, grads)
	}
}

func evalOnPoints(fs r3.Vec, vort, bdry []elements.Collection, tgt *elements.Points, core kernels.CoreFunc, grads bool) {
	n := tgt.N()

	work := func(start, end int) {
		for i := start; i < end; i++ {
			var u, v, w float64
			var ux, uy, uz, vx, vy, vz, wx, wy, wz float64
			tx, ty, tz := tgt.X[i], tgt.Y[i], tgt.Z[i]
			tr := 0.0
			if !tgt.IsInert() {
				tr = tgt.R[i]
			}

			for _, sc := range vort {
				src, ok := sc.(*elements.Points)
				if !ok || src.IsInert() {
					continue
				}
				for j := 0; j < src.N(); j++ {
					if src == tgt && j == i {
						continue
					}
					if grads {
						kernels.Particle0v0bg(core,
							src.X[j], src.Y[j], src.Z[j], src.R[j],
							src.Sx[j], src.Sy[j], src.Sz[j],
							tx, ty, tz, tr,
							&u, &v, &w,
							&ux, &vx, &wx,
							&uy, &vy, &wy,
							&uz, &vz, &wz)
					} else {
						kernels.Particle0v0b(core,
							src.X[j], src.Y[j], src.Z[j], src.R[j],
							src.Sx[j], src.Sy[j], src.Sz[j],
							tx, ty, tz, tr,
							&u, &v, &w)
					}
				}
			}

			for _, sc := range bdry {
				surf, ok := sc.(*elements.Surfaces)
				if !ok {
					continue
				}
				for j := 0; j < surf.NPanels(); j++ {
					g := surf.WorldGamma(j)
					if g == (r3.Vec{}) {
						continue
					}
					a0 := surf.Vertex(j, 0)
					a1 := surf.Vertex(j, 1)
					a2 := surf.Vertex(j, 2)
					area := surf.Area[j]
					kernels.Panel2v0b(core,
						a0.X, a0.Y, a0.Z,
						a1.X, a1.Y, a1.Z,
						a2.X, a2.Y, a2.Z,
						g.X*area, g.Y*area, g.Z*area,
						tx, ty, tz, tr,
						&u, &v, &w)
				}
			}

			tgt.U[i] = u/fourPi + fs.X
			tgt.V[i] = v/fourPi + fs.Y
			tgt.W[i] = w/fourPi + fs.Z
			if grads {
				tgt.UX[i], tgt.UY[i], tgt.UZ[i] = ux/fourPi, uy/fourPi, uz/fourPi
				tgt.VX[i], tgt.VY[i], tgt.VZ[i] = vx/fourPi, vy/fourPi, vz/fourPi
				tgt.WX[i], tgt.WY[i], tgt.WZ[i] = wx/fourPi, wy/fourPi, wz/fourPi
			}
		}
	}

	if n < parallelThreshold {
		work(0, n)
		return
	}

	numWorkers := runtime.GOMAXPROCS(0)
	chunk := (n + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunk
		end := min(start+chunk, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			work(s, e)
		}(start, end)
	}
	wg.Wait()
}

// InducedAt returns the velocity induced at a single point by the
// particle cloud and panel sheets, freestream included. Used for the
// BEM right-hand side and spot checks.
func InducedAt(fs r3.Vec, vort, bdry []elements.Collection, p r3.Vec, core kernels.CoreFunc) r3.Vec {
	var u, v, w float64
	for _, sc := range vort {
		src, ok := sc.(*elements.Points)
		if !ok || src.IsInert() {
			continue
		}
		for j := 0; j < src.N(); j++ {
			kernels.Particle0v0p(core,
				src.X[j], src.Y[j], src.Z[j], src.R[j],
				src.Sx[j], src.Sy[j], src.Sz[j],
				p.X, p.Y, p.Z,
				&u, &v, &w)
		}
	}
	for _, sc := range bdry {
		surf, ok := sc.(*elements.Surfaces)
		if !ok {
			continue
		}
		for j := 0; j < surf.NPanels(); j++ {
			g := surf.WorldGamma(j)
			if g == (r3.Vec{}) {
				continue
			}
			a0 := surf.Vertex(j, 0)
			a1 := surf.Vertex(j, 1)
			a2 := surf.Vertex(j, 2)
			area := surf.Area[j]
			kernels.Panel2v0p(core,
				a0.X, a0.Y, a0.Z,
				a1.X, a1.Y, a1.Z,
				a2.X, a2.Y, a2.Z,
				g.X*area, g.Y*area, g.Z*area,
				p.X, p.Y, p.Z,
				&u, &v, &w)
		}
	}
	return r3.Vec{X: u/fourPi + fs.X, Y: v/fourPi + fs.Y, Z: w/fourPi + fs.Z}
}
