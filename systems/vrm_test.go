package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
)

// latticeBlob builds a cube lattice of particles at the nominal
// spacing, carrying a Gaussian strength profile along x.
func latticeBlob(t *testing.T, half int, ips, vdelta float64) *elements.Points {
	t.Helper()
	batch := make([]float64, 0, 7*(2*half+1)*(2*half+1)*(2*half+1))
	sigma := float64(half) * ips / 2
	for i := -half; i <= half; i++ {
		for j := -half; j <= half; j++ {
			for k := -half; k <= half; k++ {
				x := float64(i) * ips
				y := float64(j) * ips
				z := float64(k) * ips
				s := math.Exp(-(x*x + y*y + z*z) / (2 * sigma * sigma))
				batch = append(batch, x, y, z, s, 0, 0, vdelta)
			}
		}
	}
	return elements.NewPoints(batch, vdelta, elements.Active, elements.Lagrangian, nil)
}

func TestVRMConservesCirculation(t *testing.T) {
	hnu := 0.1
	ips := math.Sqrt(8.0) * hnu
	pts := latticeBlob(t, 3, ips, 1.5*ips)

	circ0 := pts.TotalCirculation()

	vrm := NewVRM()
	newN, _ := vrm.DiffuseAll(pts, hnu, kernels.RosenheadMoore, 1.5)
	pts.Resize(newN)

	circ1 := pts.TotalCirculation()
	scale := math.Max(r3.Norm(circ0), 1e-12)
	if d := r3.Norm(r3.Sub(circ1, circ0)) / scale; d > 1e-8 {
		t.Errorf("diffusion changed circulation by relative %v", d)
	}
}

func TestVRMSpreadsVorticity(t *testing.T) {
	hnu := 0.1
	ips := math.Sqrt(8.0) * hnu
	pts := latticeBlob(t, 3, ips, 1.5*ips)

	m0 := secondMoment(pts)
	vrm := NewVRM()
	newN, _ := vrm.DiffuseAll(pts, hnu, kernels.RosenheadMoore, 1.5)
	pts.Resize(newN)
	m1 := secondMoment(pts)

	// one step of the heat kernel adds 2*hnu^2 of variance per axis
	grow := m1 - m0
	want := 6 * hnu * hnu
	if grow < 0.3*want || grow > 3*want {
		t.Errorf("second moment grew by %v, want about %v", grow, want)
	}
}

// secondMoment returns the strength-weighted mean square distance from
// the strength centroid.
func secondMoment(pts *elements.Points) float64 {
	var wsum, cx, cy, cz float64
	for i := 0; i < pts.N(); i++ {
		w := pts.StrMag(i)
		wsum += w
		cx += w * pts.X[i]
		cy += w * pts.Y[i]
		cz += w * pts.Z[i]
	}
	if wsum == 0 {
		return 0
	}
	cx /= wsum
	cy /= wsum
	cz /= wsum
	var m float64
	for i := 0; i < pts.N(); i++ {
		w := pts.StrMag(i)
		m += w * (sqr(pts.X[i]-cx) + sqr(pts.Y[i]-cy) + sqr(pts.Z[i]-cz))
	}
	return m / wsum
}

func TestVRMAdaptiveGrowsCloudAtEdges(t *testing.T) {
	// an isolated particle cannot absorb its own diffusion; with
	// adaptive radii the engine spawns lattice neighbors for the flux
	hnu := 0.1
	ips := math.Sqrt(8.0) * hnu
	batch := []float64{0, 0, 0, 1, 0, 0, 1.5 * ips}
	pts := elements.NewPoints(batch, 1.5*ips, elements.Active, elements.Lagrangian, nil)

	vrm := NewVRM()
	vrm.AdaptiveRadii = true
	newN, skipped := vrm.DiffuseAll(pts, hnu, kernels.RosenheadMoore, 1.5)
	pts.Resize(newN)

	if len(skipped) != 0 {
		t.Fatalf("adaptive mode skipped %d parents", len(skipped))
	}
	if pts.N() != 7 {
		t.Fatalf("N = %d, want parent plus 6 lattice sites", pts.N())
	}
	circ := pts.TotalCirculation()
	if math.Abs(circ.X-1) > 1e-8 || math.Abs(circ.Y) > 1e-10 || math.Abs(circ.Z) > 1e-10 {
		t.Errorf("circulation drifted: %+v", circ)
	}
	// the spawned shell received real strength
	edge := 0.0
	for i := 1; i < pts.N(); i++ {
		edge += pts.Sx[i]
	}
	if edge <= 0 {
		t.Errorf("lattice sites carry no strength: %v", edge)
	}
}

func TestVRMNonAdaptiveSkipsInfeasible(t *testing.T) {
	// with adaptation disallowed an infeasible parent is reported and
	// left untouched; no particle may ever be created
	hnu := 0.1
	ips := math.Sqrt(8.0) * hnu
	batch := []float64{0, 0, 0, 1, 0, 0, 1.5 * ips}
	pts := elements.NewPoints(batch, 1.5*ips, elements.Active, elements.Lagrangian, nil)

	vrm := NewVRM()
	newN, skipped := vrm.DiffuseAll(pts, hnu, kernels.RosenheadMoore, 1.5)
	pts.Resize(newN)

	if pts.N() != 1 {
		t.Fatalf("non-adaptive mode spawned particles: N = %d", pts.N())
	}
	if len(skipped) != 1 || skipped[0].Index != 0 {
		t.Fatalf("skipped = %+v, want the lone parent", skipped)
	}
	if pts.Sx[0] != 1 || pts.Sy[0] != 0 || pts.Sz[0] != 0 {
		t.Errorf("skipped parent strength changed: %v %v %v", pts.Sx[0], pts.Sy[0], pts.Sz[0])
	}
	if pts.R[0] != 1.5*ips {
		t.Errorf("skipped parent radius changed: %v", pts.R[0])
	}
}

func TestVRMIgnoreThreshold(t *testing.T) {
	hnu := 0.1
	ips := math.Sqrt(8.0) * hnu
	// one strong and one far, weak particle
	batch := []float64{
		0, 0, 0, 1, 0, 0, 1.5 * ips,
		10, 0, 0, 1e-9, 0, 0, 1.5 * ips,
	}
	pts := elements.NewPoints(batch, 1.5*ips, elements.Active, elements.Lagrangian, nil)

	vrm := NewVRM()
	vrm.AdaptiveRadii = true
	vrm.Relative = true
	vrm.Ignore = 1e-4
	newN, _ := vrm.DiffuseAll(pts, hnu, kernels.RosenheadMoore, 1.5)
	pts.Resize(newN)

	// the weak particle was below the ignore threshold: not a parent,
	// so no lattice spawned around it and its strength is untouched
	for i := 0; i < pts.N(); i++ {
		if pts.X[i] > 5 && pts.X[i] < 15 && pts.X[i] != 10 {
			t.Errorf("lattice spawned around an ignored parent at x=%v", pts.X[i])
		}
	}
}

func TestVRMAdaptiveGrowsWeakParent(t *testing.T) {
	hnu := 0.1
	ips := math.Sqrt(8.0) * hnu
	batch := []float64{
		0, 0, 0, 1, 0, 0, 1.5 * ips,
		10, 0, 0, 1e-6, 0, 0, 1.5 * ips,
	}
	pts := elements.NewPoints(batch, 1.5*ips, elements.Active, elements.Lagrangian, nil)

	vrm := NewVRM()
	vrm.AdaptiveRadii = true
	vrm.Relative = true
	vrm.Ignore = 1e-8 // weak parent participates
	vrm.Adapt = 1e-3  // but is allowed to grow instead
	r0 := pts.R[1]
	newN, _ := vrm.DiffuseAll(pts, hnu, kernels.RosenheadMoore, 1.5)
	pts.Resize(newN)

	if pts.R[1] <= r0 {
		t.Errorf("weak parent radius %v did not grow from %v", pts.R[1], r0)
	}
	if math.Abs(pts.Sx[1]-1e-6) > 1e-18 {
		t.Errorf("adapted parent strength changed: %v", pts.Sx[1])
	}
}
