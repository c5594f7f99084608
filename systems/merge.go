package systems

import (
	"math"
	"sort"

	"github.com/vortexlab/vpm/elements"
)

// maxMergePasses bounds the fixed-point iteration of MergeClose.
const maxMergePasses = 4

// MergeClose combines near-coincident particles of similar size to
// control the particle count. A pair merges when its center separation
// divided by the mean radius is below thresh and the radius ratio lies
// within the allowed band (1.5 when adaptive, essentially unity
// otherwise). The survivor sits at the strength-weighted centroid,
// carries the vector sum of strengths, and, when adaptive, a radius
// conserving the second moment of vorticity. Passes repeat until no
// pair merges or the pass cap is hit. Returns particles removed.
func MergeClose(vort []elements.Collection, overlap, thresh float64, adaptive bool) int {
	removed := 0
	for _, vc := range vort {
		pts, ok := vc.(*elements.Points)
		if !ok || pts.IsInert() {
			continue
		}
		for pass := 0; pass < maxMergePasses; pass++ {
			n := mergePass(pts, overlap, thresh, adaptive)
			removed += n
			if n == 0 {
				break
			}
		}
	}
	return removed
}

type mergePair struct {
	i, j int
}

func mergePass(pts *elements.Points, overlap, thresh float64, adaptive bool) int {
	n := pts.N()
	if n < 2 {
		return 0
	}

	// radius ratio band
	phi := 1.0001
	if adaptive {
		phi = 1.5
	}

	// cell size of twice the largest core radius catches every
	// admissible pair in the 27-cell neighborhood
	maxRad := 0.0
	for i := 0; i < n; i++ {
		if pts.R[i] > maxRad {
			maxRad = pts.R[i]
		}
	}
	if maxRad == 0 {
		return 0
	}
	grid := NewSpatialHash(2*maxRad, pts.X, pts.Y, pts.Z)

	var pairs []mergePair
	scratch := make([]Neighbor, 0, 32)
	for i := 0; i < n; i++ {
		scratch = grid.QueryRadiusInto(scratch[:0], pts.X[i], pts.Y[i], pts.Z[i],
			thresh*(pts.R[i]+maxRad)/2, i, pts.X, pts.Y, pts.Z)
		for _, nb := range scratch {
			j := nb.Idx
			if j <= i {
				continue
			}
			meanRad := 0.5 * (pts.R[i] + pts.R[j])
			if math.Sqrt(nb.DistSq) >= thresh*meanRad {
				continue
			}
			ratio := pts.R[i] / pts.R[j]
			if ratio < 1/phi || ratio > phi {
				continue
			}
			pairs = append(pairs, mergePair{i, j})
		}
	}
	if len(pairs) == 0 {
		return 0
	}

	// deterministic order regardless of hash iteration
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].i != pairs[b].i {
			return pairs[a].i < pairs[b].i
		}
		return pairs[a].j < pairs[b].j
	})

	dead := make([]bool, n)
	merged := 0
	for _, pr := range pairs {
		i, j := pr.i, pr.j
		if dead[i] || dead[j] {
			continue
		}
		mergeInto(pts, i, j, adaptive)
		dead[j] = true
		merged++
	}
	if merged > 0 {
		pts.Remove(dead)
	}
	return merged
}

// mergeInto folds particle j into particle i.
func mergeInto(pts *elements.Points, i, j int, adaptive bool) {
	si := pts.StrMag(i)
	sj := pts.StrMag(j)
	wsum := si + sj

	var fi, fj float64
	if wsum > 0 {
		fi = si / wsum
		fj = sj / wsum
	} else {
		fi, fj = 0.5, 0.5
	}

	nx := fi*pts.X[i] + fj*pts.X[j]
	ny := fi*pts.Y[i] + fj*pts.Y[j]
	nz := fi*pts.Z[i] + fj*pts.Z[j]

	if adaptive {
		// conserve the second moment of |vorticity| about the new center
		di := sqr(pts.X[i]-nx) + sqr(pts.Y[i]-ny) + sqr(pts.Z[i]-nz)
		dj := sqr(pts.X[j]-nx) + sqr(pts.Y[j]-ny) + sqr(pts.Z[j]-nz)
		if wsum > 0 {
			r2 := (si*(pts.R[i]*pts.R[i]+di) + sj*(pts.R[j]*pts.R[j]+dj)) / wsum
			pts.R[i] = math.Sqrt(r2)
		}
	}

	pts.X[i], pts.Y[i], pts.Z[i] = nx, ny, nz
	pts.Sx[i] += pts.Sx[j]
	pts.Sy[i] += pts.Sy[j]
	pts.Sz[i] += pts.Sz[j]
	if pts.Elong[j] > pts.Elong[i] {
		pts.Elong[i] = pts.Elong[j]
	}
}

func sqr(v float64) float64 { return v * v }
