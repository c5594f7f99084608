package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/elements"
)

// ClearMode selects how ClearInnerLayer treats particles that sit too
// close to a surface.
type ClearMode int

const (
	// ClearTrim removes weak offenders and pushes the rest out.
	ClearTrim ClearMode = iota
	// ClearPush moves every offender out to the cutoff distance.
	ClearPush
)

// surfacePoint is the result of a closest-point query against a
// surface: the closest point, the panel's outward normal there, and
// the signed distance (negative inside).
type surfacePoint struct {
	closest r3.Vec
	normal  r3.Vec
	dist    float64
}

// closestOnTriangle returns the point on triangle abc closest to p.
// Standard Voronoi-region walk.
func closestOnTriangle(p, a, b, c r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)

	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return r3.Add(a, r3.Scale(v, ab))
	}

	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return r3.Add(a, r3.Scale(w, ac))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}

	denom := 1.0 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
}

// signedDistance finds the nearest point on the surface and the signed
// distance to it, negative when p is inside the closed surface.
func signedDistance(s *elements.Surfaces, p r3.Vec) surfacePoint {
	best := surfacePoint{dist: math.Inf(1)}
	bestAbs := math.Inf(1)
	for i := 0; i < s.NPanels(); i++ {
		q := closestOnTriangle(p, s.Vertex(i, 0), s.Vertex(i, 1), s.Vertex(i, 2))
		d := r3.Sub(p, q)
		abs := r3.Norm(d)
		if abs < bestAbs {
			bestAbs = abs
			best.closest = q
			best.normal = s.Norm[i]
			if r3.Dot(d, s.Norm[i]) < 0 {
				best.dist = -abs
			} else {
				best.dist = abs
			}
		}
	}
	return best
}

// ReflectInterior mirrors any particle that lies inside a reactive
// surface out to the same perpendicular distance on the exterior,
// preserving strength. Returns the number of particles moved.
// Applying it twice equals applying it once.
func ReflectInterior(bdry, vort []elements.Collection) int {
	moved := 0
	for _, bc := range bdry {
		surf, ok := bc.(*elements.Surfaces)
		if !ok || surf.ElemKind() != elements.Reactive {
			continue
		}
		for _, vc := range vort {
			pts, ok := vc.(*elements.Points)
			if !ok || pts.IsInert() {
				continue
			}
			for i := 0; i < pts.N(); i++ {
				p := r3.Vec{X: pts.X[i], Y: pts.Y[i], Z: pts.Z[i]}
				sp := signedDistance(surf, p)
				if sp.dist >= 0 {
					continue
				}
				// mirror across the surface point
				out := r3.Add(sp.closest, r3.Scale(-sp.dist, sp.normal))
				pts.X[i], pts.Y[i], pts.Z[i] = out.X, out.Y, out.Z
				moved++
			}
		}
	}
	return moved
}

// ClearInnerLayer enforces a minimum exterior standoff between the
// given point collections and all reactive surfaces. In ClearPush mode
// every particle closer than cutoff is moved out along the surface
// normal to exactly cutoff. In ClearTrim mode, offenders whose
// strength magnitude is below threshFactor times the collection's max
// strength are deleted instead. Afterwards no surviving particle lies
// closer than cutoff to any surface.
func ClearInnerLayer(mode ClearMode, bdry, targets []elements.Collection, threshFactor, cutoff float64) int {
	affected := 0
	for _, tc := range targets {
		pts, ok := tc.(*elements.Points)
		if !ok {
			continue
		}
		var dead []bool
		for _, bc := range bdry {
			surf, ok := bc.(*elements.Surfaces)
			if !ok || surf.ElemKind() != elements.Reactive {
				continue
			}
			thresh := threshFactor * pts.MaxStr()
			for i := 0; i < pts.N(); i++ {
				if dead != nil && dead[i] {
					continue
				}
				p := r3.Vec{X: pts.X[i], Y: pts.Y[i], Z: pts.Z[i]}
				sp := signedDistance(surf, p)
				if sp.dist >= cutoff {
					continue
				}
				if mode == ClearTrim && !pts.IsInert() && pts.StrMag(i) < thresh {
					if dead == nil {
						dead = make([]bool, pts.N())
					}
					dead[i] = true
					affected++
					continue
				}
				out := r3.Add(sp.closest, r3.Scale(cutoff, sp.normal))
				pts.X[i], pts.Y[i], pts.Z[i] = out.X, out.Y, out.Z
				affected++
			}
		}
		if dead != nil {
			pts.Remove(dead)
		}
	}
	return affected
}
