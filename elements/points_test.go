package elements

import (
	"math"
	"testing"
)

func TestAddNewAssignsVdelta(t *testing.T) {
	batch := []float64{
		0, 0, 0, 1, 0, 0, 0, // radius left for the store
		1, 0, 0, 0, 1, 0, 0.25, // explicit radius
	}
	p := NewPoints(batch, 0.1, Active, Lagrangian, nil)

	if p.N() != 2 {
		t.Fatalf("N = %d, want 2", p.N())
	}
	if p.R[0] != 0.1 {
		t.Errorf("R[0] = %v, want vdelta 0.1", p.R[0])
	}
	if p.R[1] != 0.25 {
		t.Errorf("R[1] = %v, want 0.25", p.R[1])
	}
	if p.Elong[0] != 1 || p.Elong[1] != 1 {
		t.Errorf("new particles must start at unit elongation, got %v", p.Elong)
	}
}

func TestResizeLockstep(t *testing.T) {
	p := NewPoints([]float64{0, 0, 0, 1, 0, 0, 0.1}, 0.1, Active, Lagrangian, nil)

	// simulate VRM growing the canonical arrays
	p.X = append(p.X, 1)
	p.Y = append(p.Y, 1)
	p.Z = append(p.Z, 1)
	p.Sx = append(p.Sx, 0)
	p.Sy = append(p.Sy, 0)
	p.Sz = append(p.Sz, 0)
	p.R = append(p.R, 0.1)
	p.Resize(p.N())

	if len(p.Elong) != 2 || len(p.U) != 2 || len(p.WZ) != 2 {
		t.Fatalf("auxiliary arrays did not grow: elong=%d u=%d wz=%d",
			len(p.Elong), len(p.U), len(p.WZ))
	}
	if p.Elong[1] != 1 {
		t.Errorf("grown elongation = %v, want 1", p.Elong[1])
	}
}

func TestTotalImpulse(t *testing.T) {
	// one particle at x-hat with strength y-hat: impulse = x cross s = z-hat
	p := NewPoints([]float64{1, 0, 0, 0, 1, 0, 0.1}, 0.1, Active, Lagrangian, nil)
	imp := p.TotalImpulse()
	if imp.X != 0 || imp.Y != 0 || imp.Z != 1 {
		t.Errorf("impulse = %+v, want (0,0,1)", imp)
	}
}

func TestUpdateMaxStr(t *testing.T) {
	batch := []float64{
		0, 0, 0, 3, 4, 0, 0.1, // |s| = 5
		1, 0, 0, 0, 1, 0, 0.1,
	}
	p := NewPoints(batch, 0.1, Active, Lagrangian, nil)
	p.UpdateMaxStr()
	if math.Abs(p.MaxStr()-5) > 1e-14 {
		t.Errorf("MaxStr = %v, want 5", p.MaxStr())
	}
}

func TestRemoveCompacts(t *testing.T) {
	batch := []float64{
		0, 0, 0, 1, 0, 0, 0.1,
		1, 0, 0, 2, 0, 0, 0.2,
		2, 0, 0, 3, 0, 0, 0.3,
	}
	p := NewPoints(batch, 0.1, Active, Lagrangian, nil)
	p.Remove([]bool{false, true, false})

	if p.N() != 2 {
		t.Fatalf("N = %d, want 2", p.N())
	}
	if p.X[1] != 2 || p.Sx[1] != 3 || p.R[1] != 0.3 {
		t.Errorf("survivor mismatch: x=%v sx=%v r=%v", p.X[1], p.Sx[1], p.R[1])
	}
}

func TestHasNonFinite(t *testing.T) {
	p := NewPoints([]float64{0, 0, 0, 1, 0, 0, 0.1}, 0.1, Active, Lagrangian, nil)
	if p.HasNonFinite() {
		t.Fatal("clean store reported non-finite")
	}
	p.Sy[0] = math.NaN()
	if !p.HasNonFinite() {
		t.Fatal("NaN strength not detected")
	}
}
