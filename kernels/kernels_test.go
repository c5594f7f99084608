package kernels

import (
	"math"
	"testing"
)

func TestCoreFarField(t *testing.T) {
	// far from the core both regularizations approach 1/d^3
	tests := []struct {
		name string
		cf   CoreFunc
	}{
		{"rosenhead-moore", RosenheadMoore},
		{"compact exponential", CompactExp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := 100.0
			got := Core(tt.cf, d*d, 0.01, 0.01)
			want := 1.0 / (d * d * d)
			if math.Abs(got-want)/want > 1e-3 {
				t.Errorf("far field core = %v, want ~%v", got, want)
			}
		})
	}
}

func TestCoreFiniteAtZero(t *testing.T) {
	for _, cf := range []CoreFunc{RosenheadMoore, CompactExp} {
		got := Core(cf, 0, 0.1, 0.1)
		if math.IsInf(got, 0) || math.IsNaN(got) {
			t.Errorf("%v core not regularized at zero distance: %v", cf, got)
		}
	}
}

func TestParticleVelocityPerpendicular(t *testing.T) {
	// the induced velocity is (r x omega)-shaped: perpendicular to both
	// the offset and the strength
	var u, v, w float64
	Particle0v0b(RosenheadMoore,
		0, 0, 0, 0.1, 0, 0, 1, // source at origin, strength +z
		1, 0, 0, 0.1, // target at +x
		&u, &v, &w)
	// expect velocity along +y only
	if u != 0 || w != 0 {
		t.Errorf("velocity (%v,%v,%v) not perpendicular", u, v, w)
	}
	if v <= 0 {
		t.Errorf("swirl velocity = %v, want positive", v)
	}
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	sx, sy, sz, sr := 0.1, -0.2, 0.3, 0.15
	ssx, ssy, ssz := 0.5, 1.0, -0.7
	tx, ty, tz, tr := 1.0, 0.4, -0.3, 0.12

	for _, cf := range []CoreFunc{RosenheadMoore, CompactExp} {
		var u, v, w float64
		var ux, vx, wx, uy, vy, wy, uz, vz, wz float64
		Particle0v0bg(cf, sx, sy, sz, sr, ssx, ssy, ssz, tx, ty, tz, tr,
			&u, &v, &w, &ux, &vx, &wx, &uy, &vy, &wy, &uz, &vz, &wz)

		eval := func(x, y, z float64) (float64, float64, float64) {
			var eu, ev, ew float64
			Particle0v0b(cf, sx, sy, sz, sr, ssx, ssy, ssz, x, y, z, tr, &eu, &ev, &ew)
			return eu, ev, ew
		}

		up, vp, wp := eval(tx+h, ty, tz)
		um, vm, wm := eval(tx-h, ty, tz)
		checkClose(t, "du/dx", ux, (up-um)/(2*h))
		checkClose(t, "dv/dx", vx, (vp-vm)/(2*h))
		checkClose(t, "dw/dx", wx, (wp-wm)/(2*h))

		up, vp, wp = eval(tx, ty+h, tz)
		um, vm, wm = eval(tx, ty-h, tz)
		checkClose(t, "du/dy", uy, (up-um)/(2*h))
		checkClose(t, "dv/dy", vy, (vp-vm)/(2*h))
		checkClose(t, "dw/dy", wy, (wp-wm)/(2*h))

		up, vp, wp = eval(tx, ty, tz+h)
		um, vm, wm = eval(tx, ty, tz-h)
		checkClose(t, "du/dz", uz, (up-um)/(2*h))
		checkClose(t, "dv/dz", vz, (vp-vm)/(2*h))
		checkClose(t, "dw/dz", wz, (wp-wm)/(2*h))
	}
}

func checkClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	scale := math.Max(math.Abs(want), 1e-8)
	if math.Abs(got-want)/scale > 1e-4 {
		t.Errorf("%s = %v, finite difference %v", name, got, want)
	}
}

func TestPanelMatchesParticleFarField(t *testing.T) {
	// far away a panel looks like a point vortex carrying the same
	// total strength at the centroid
	v0 := [3]float64{0, 0, 0}
	v1 := [3]float64{0.1, 0, 0}
	v2 := [3]float64{0, 0.1, 0}
	ssx, ssy, ssz := 0.3, -0.2, 0.9
	tx, ty, tz := 10.0, 5.0, -3.0

	var pu, pv, pw float64
	Panel2v0p(RosenheadMoore,
		v0[0], v0[1], v0[2], v1[0], v1[1], v1[2], v2[0], v2[1], v2[2],
		ssx, ssy, ssz, tx, ty, tz, &pu, &pv, &pw)

	cx := (v0[0] + v1[0] + v2[0]) / 3
	cy := (v0[1] + v1[1] + v2[1]) / 3
	cz := (v0[2] + v1[2] + v2[2]) / 3
	var qu, qv, qw float64
	Particle0v0p(RosenheadMoore, cx, cy, cz, 0, ssx, ssy, ssz, tx, ty, tz, &qu, &qv, &qw)

	// the 4-point rule matches the centroid point vortex through first
	// order; the leftover is the second-moment term
	for _, pair := range [][2]float64{{pu, qu}, {pv, qv}, {pw, qw}} {
		if math.Abs(pair[0]-pair[1]) > 1e-4*math.Abs(pair[1])+1e-10 {
			t.Errorf("panel far field %v differs from point %v", pair[0], pair[1])
		}
	}
}
