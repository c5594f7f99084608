package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/config"
	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/features"
	"github.com/vortexlab/vpm/kernels"
	"github.com/vortexlab/vpm/systems"
)

func TestDerivedScales(t *testing.T) {
	s := New(kernels.RosenheadMoore)
	s.SetRe(100)
	s.SetDt(0.01)

	wantHnu := math.Sqrt(0.01 / 100.0)
	require.InDelta(t, wantHnu, s.Hnu(), 1e-15)
	require.InDelta(t, math.Sqrt(8)*wantHnu, s.Ips(), 1e-15)
	require.InDelta(t, 1.5*s.Ips(), s.Vdelta(), 1e-15)
}

func TestCheckInitializationEmpty(t *testing.T) {
	s := New(kernels.RosenheadMoore)
	err := s.CheckInitialization()
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
}

func TestCheckInitializationBodyNoFlow(t *testing.T) {
	s := New(kernels.RosenheadMoore)
	bf, err := features.BoundaryFromSpec(config.BoundarySpec{Type: "sphere", Radius: 1, Subdivisions: 0})
	require.NoError(t, err)
	pkt := bf.InitElements(0)
	require.NoError(t, s.AddBoundary(nil, pkt.Nodes, pkt.Idx))

	// no particles, no freestream, no motion: dead flow
	var initErr *InitError
	require.ErrorAs(t, s.CheckInitialization(), &initErr)

	// freestream alone makes it viable
	s.SetFreestream(r3.Vec{X: 1})
	require.NoError(t, s.CheckInitialization())

	// but not without viscosity, which a lone body needs to shed
	s.SetDiffuse(false)
	require.ErrorAs(t, s.CheckInitialization(), &initErr)
}

func TestCheckSimulationBlowup(t *testing.T) {
	s := New(kernels.RosenheadMoore)
	s.AddParticles([]float64{0, 0, 0, 1, 0, 0, 0})
	require.NoError(t, s.CheckSimulation())

	vort, _, _ := s.Collections()
	vort[0].(*elements.Points).Sx[0] = math.Inf(1)
	var blowup *BlowupError
	require.ErrorAs(t, s.CheckSimulation(), &blowup)
}

func TestCheckSimulationElongation(t *testing.T) {
	s := New(kernels.RosenheadMoore)
	s.AddParticles([]float64{0, 0, 0, 1, 0, 0, 0})
	vort, _, _ := s.Collections()
	vort[0].(*elements.Points).Elong[0] = 1.6
	var elong *ElongationExceededError
	require.ErrorAs(t, s.CheckSimulation(), &elong)
}

func TestStopCriteria(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*Simulation)
		steps    int
		wantStop bool
	}{
		{"no criteria", func(s *Simulation) {}, 3, false},
		{"max steps hit", func(s *Simulation) { s.SetMaxSteps(2) }, 2, true},
		{"max steps not hit", func(s *Simulation) { s.SetMaxSteps(5) }, 2, false},
		{"end time hit", func(s *Simulation) { s.SetEndTime(0.015) }, 2, true},
		{"end time far", func(s *Simulation) { s.SetEndTime(10) }, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(kernels.RosenheadMoore)
			s.SetDt(0.01)
			tt.setup(s)
			// stand in for completed steps
			for i := 0; i < tt.steps; i++ {
				s.time += s.dt
				s.nstep++
			}
			require.Equal(t, tt.wantStop, s.TestVsStop())
		})
	}
}

func TestFieldPointsJoinTracerCollection(t *testing.T) {
	s := New(kernels.RosenheadMoore)
	s.AddFldPts([]float64{0, 0, 0}, true)
	s.AddFldPts([]float64{1, 0, 0}, true)
	s.AddFldPts([]float64{2, 0, 0}, false)

	_, _, fldpt := s.Collections()
	require.Len(t, fldpt, 2, "tracers share one collection, fixed points get their own")
	require.Equal(t, 2, fldpt[0].N())
	require.Equal(t, elements.Lagrangian, fldpt[0].MoveKind())
	require.Equal(t, elements.Fixed, fldpt[1].MoveKind())
	require.True(t, fldpt[0].IsInert())
}

func TestAsyncStepCompletes(t *testing.T) {
	s := New(kernels.RosenheadMoore)
	s.SetRe(100)
	s.SetDt(0.01)
	s.SetDiffuse(false)
	s.AddParticles([]float64{0, 0, 0, 0, 0, 1, 0})
	s.SetInitialized()

	s.AsyncStep() // first step: no advection
	deadline := time.Now().Add(5 * time.Second)
	for {
		done, err := s.TestForNewResults()
		if done {
			require.NoError(t, err)
			break
		}
		require.True(t, time.Now().Before(deadline), "step never completed")
		time.Sleep(time.Millisecond)
	}

	s.AsyncStep() // a real step
	for {
		done, err := s.TestForNewResults()
		if done {
			require.NoError(t, err)
			break
		}
		require.True(t, time.Now().Before(deadline), "step never completed")
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, s.NStep())
	require.InDelta(t, 0.01, s.Time(), 1e-12)
}

// An isolated singular ring on the z axis induces a purely axial
// velocity on the axis.
func TestRingAxisSymmetry(t *testing.T) {
	ff, err := features.FlowFromSpec(config.FeatureSpec{
		Type:   "singular ring",
		Center: []float64{0, 0, 0},
		Normal: []float64{0, 0, 1},
		MajRad: 1.0,
		Circ:   1.0,
	}, nil)
	require.NoError(t, err)

	pts := elements.NewPoints(ff.InitParticles(0.05), 0.075, elements.Active, elements.Lagrangian, nil)
	vort := []elements.Collection{pts}

	for _, z := range []float64{0, 0.5, 1.0, -0.7} {
		v := systems.InducedAt(r3.Vec{}, vort, nil, r3.Vec{Z: z}, kernels.RosenheadMoore)
		mag := r3.Norm(v)
		require.Greater(t, mag, 0.0)
		lateral := math.Hypot(v.X, v.Y)
		require.Less(t, lateral, 1e-5*mag,
			"axis velocity at z=%v has lateral part %v of %v", z, lateral, mag)
	}
}

// A thick ring propels itself along its axis.
func TestThickRingSelfAdvection(t *testing.T) {
	if testing.Short() {
		t.Skip("ring advection in short mode")
	}

	s := New(kernels.RosenheadMoore)
	s.SetRe(10) // sets the resolution scales; the run is inviscid
	s.SetDt(0.05)
	s.SetDiffuse(false)

	ff, err := features.FlowFromSpec(config.FeatureSpec{
		Type:   "thick ring",
		Center: []float64{0, 0, 0},
		Normal: []float64{0, 0, 1},
		MajRad: 1.0,
		MinRad: 0.1,
		Circ:   1.0,
	}, nil)
	require.NoError(t, err)
	s.AddParticles(ff.InitParticles(s.Ips()))
	s.SetInitialized()
	require.NoError(t, s.CheckInitialization())

	centroid := func() r3.Vec {
		vort, _, _ := s.Collections()
		var c r3.Vec
		var w float64
		for _, vc := range vort {
			pts := vc.(*elements.Points)
			for i := 0; i < pts.N(); i++ {
				m := pts.StrMag(i)
				w += m
				c = r3.Add(c, r3.Scale(m, r3.Vec{X: pts.X[i], Y: pts.Y[i], Z: pts.Z[i]}))
			}
		}
		return r3.Scale(1/w, c)
	}

	c0 := centroid()
	require.NoError(t, s.FirstStep())
	for i := 0; i < 40; i++ {
		require.NoError(t, s.Step())
	}
	c1 := centroid()

	dz := c1.Z - c0.Z
	require.Greater(t, dz, 0.2, "ring failed to self-advect along +z")
	require.Less(t, dz, 0.9, "ring advected implausibly far")
	require.Less(t, math.Hypot(c1.X-c0.X, c1.Y-c0.Y), 0.05,
		"ring centroid drifted off axis")
}
