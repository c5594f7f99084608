package systems

import (
	"math"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
)

// SplitElongated replaces each particle whose accumulated elongation
// exceeds emax with two particles offset by half a radius along the
// principal stretching axis of its local velocity gradient. Each child
// carries half the strength; radius shrinks by 2^(-1/3) when adaptive
// so the children together occupy the parent's volume. Elongation
// resets to one. Returns the number of particles split.
func SplitElongated(pts *elements.Points, _ kernels.CoreFunc, _ float64, emax float64, adaptive bool) int {
	n := pts.N()
	split := 0
	radScale := 1.0
	if adaptive {
		radScale = math.Pow(2, -1.0/3.0)
	}

	for i := 0; i < n; i++ {
		if pts.Elong[i] <= emax {
			continue
		}

		ax, ay, az := principalAxis(pts, i)

		// halve in place, then append the sibling
		pts.Sx[i] *= 0.5
		pts.Sy[i] *= 0.5
		pts.Sz[i] *= 0.5
		pts.R[i] *= radScale
		dx := 0.5 * pts.R[i]
		ox, oy, oz := pts.X[i], pts.Y[i], pts.Z[i]
		pts.X[i] = ox + dx*ax
		pts.Y[i] = oy + dx*ay
		pts.Z[i] = oz + dx*az
		pts.Elong[i] = 1.0

		pts.X = append(pts.X, ox-dx*ax)
		pts.Y = append(pts.Y, oy-dx*ay)
		pts.Z = append(pts.Z, oz-dx*az)
		pts.Sx = append(pts.Sx, pts.Sx[i])
		pts.Sy = append(pts.Sy, pts.Sy[i])
		pts.Sz = append(pts.Sz, pts.Sz[i])
		pts.R = append(pts.R, pts.R[i])
		split++
	}
	if split > 0 {
		pts.Resize(len(pts.R))
	}
	return split
}

// principalAxis estimates the dominant stretching direction of the
// symmetric part of the particle's velocity gradient by shifted power
// iteration. Falls back to the strength direction, then to x-hat, when
// the gradient carries no signal.
func principalAxis(pts *elements.Points, i int) (float64, float64, float64) {
	// symmetric strain tensor
	sxx := pts.UX[i]
	syy := pts.VY[i]
	szz := pts.WZ[i]
	sxy := 0.5 * (pts.UY[i] + pts.VX[i])
	sxz := 0.5 * (pts.UZ[i] + pts.WX[i])
	syz := 0.5 * (pts.VZ[i] + pts.WY[i])

	frob := math.Sqrt(sxx*sxx + syy*syy + szz*szz + 2*(sxy*sxy+sxz*sxz+syz*syz))
	if frob < 1e-30 {
		return fallbackAxis(pts, i)
	}

	// shift makes the most-positive eigenvalue dominant in magnitude
	d := frob
	vx, vy, vz := 1.0, 1.0, 1.0
	if s := pts.StrMag(i); s > 0 {
		vx, vy, vz = pts.Sx[i]/s, pts.Sy[i]/s, pts.Sz[i]/s
	}
	for iter := 0; iter < 24; iter++ {
		nx := (sxx+d)*vx + sxy*vy + sxz*vz
		ny := sxy*vx + (syy+d)*vy + syz*vz
		nz := sxz*vx + syz*vy + (szz+d)*vz
		nrm := math.Sqrt(nx*nx + ny*ny + nz*nz)
		if nrm < 1e-30 {
			return fallbackAxis(pts, i)
		}
		vx, vy, vz = nx/nrm, ny/nrm, nz/nrm
	}
	return vx, vy, vz
}

func fallbackAxis(pts *elements.Points, i int) (float64, float64, float64) {
	if s := pts.StrMag(i); s > 0 {
		return pts.Sx[i] / s, pts.Sy[i] / s, pts.Sz[i] / s
	}
	return 1, 0, 0
}
