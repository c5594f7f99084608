// Batch driver for the vortex particle / boundary element flow
// solver. One argument: the path to a YAML configuration document.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/config"
	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/features"
	"github.com/vortexlab/vpm/kernels"
	"github.com/vortexlab/vpm/sim"
	"github.com/vortexlab/vpm/vtkout"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s config.yaml\n", os.Args[0])
		return -1
	}

	if err := config.Init(os.Args[1]); err != nil {
		return fail(err)
	}
	cfg := config.Cfg()

	s := sim.New(kernels.RosenheadMoore)
	s.SetDescription(cfg.Description)
	s.SetRe(cfg.Flow.Re)
	s.SetDt(cfg.Sim.NominalDt)
	s.SetFreestream(r3.Vec{X: cfg.Flow.Uinf[0], Y: cfg.Flow.Uinf[1], Z: cfg.Flow.Uinf[2]})
	s.SetOutputDt(cfg.Sim.OutputDt)
	if cfg.Sim.MaxSteps != nil {
		s.SetMaxSteps(*cfg.Sim.MaxSteps)
	}
	if cfg.Sim.EndTime != nil {
		s.SetEndTime(*cfg.Sim.EndTime)
	}
	s.SetDiffuse(cfg.Derived.Viscous)
	s.SetAMR(cfg.Sim.AdaptiveSize && cfg.Derived.Viscous)
	vrm := s.Diffusion().VRM()
	vrm.Ignore = cfg.Sim.VRM.Ignore
	vrm.Adapt = cfg.Sim.VRM.Adapt
	vrm.RadGrad = cfg.Sim.VRM.RadGrad
	vrm.Relative = cfg.Sim.VRM.Relative
	vrm.Simplex = cfg.Sim.VRM.Simplex

	sf, err := sim.NewStatusFile(cfg.Runtime.StatusFile)
	if err != nil {
		return fail(err)
	}
	defer sf.Close()
	s.SetStatusFile(sf)

	slog.Info("initializing simulation", "description", cfg.Description,
		"Re", cfg.Flow.Re, "dt", cfg.Sim.NominalDt, "ips", s.Ips())

	rng := newRunRand()
	var ffeatures []features.FlowFeature
	for _, spec := range cfg.Features {
		ff, err := features.FlowFromSpec(spec, rng)
		if err != nil {
			return fail(&config.ConfigError{Reason: "bad flow feature", Err: err})
		}
		ffeatures = append(ffeatures, ff)
		s.AddParticles(ff.InitParticles(s.Ips()))
	}

	for _, bs := range cfg.Bodies {
		b := elements.NewBody(bs.Name)
		if len(bs.Velocity) == 3 {
			b.Vel = r3.Vec{X: bs.Velocity[0], Y: bs.Velocity[1], Z: bs.Velocity[2]}
		}
		if len(bs.Rotation) == 3 {
			b.RotVel = r3.Vec{X: bs.Rotation[0], Y: bs.Rotation[1], Z: bs.Rotation[2]}
		}
		s.AddBody(b)
	}

	for _, spec := range cfg.Boundaries {
		bf, err := features.BoundaryFromSpec(spec)
		if err != nil {
			return fail(&config.ConfigError{Reason: "bad boundary feature", Err: err})
		}
		pkt := bf.InitElements(s.Ips())
		var body *elements.Body
		if bf.BodyName() != "" {
			body = s.BodyByName(bf.BodyName())
		}
		if err := s.AddBoundary(body, pkt.Nodes, pkt.Idx); err != nil {
			return fail(&config.ConfigError{Reason: "bad boundary geometry", Err: err})
		}
	}

	var mfeatures []features.MeasureFeature
	for _, spec := range cfg.Measures {
		mf, err := features.MeasureFromSpec(spec)
		if err != nil {
			return fail(&config.ConfigError{Reason: "bad measurement feature", Err: err})
		}
		mfeatures = append(mfeatures, mf)
		s.AddFldPts(mf.InitParticles(0.1*s.Ips()), mf.Moves())
	}

	s.SetInitialized()
	if err := s.CheckInitialization(); err != nil {
		return fail(err)
	}

	if err := s.FirstStep(); err != nil {
		return fail(err)
	}
	if err := writeOutput(s, cfg); err != nil {
		return fail(err)
	}

	outputEvery := 0
	if cfg.Sim.OutputDt > 0 {
		outputEvery = int(math.Round(cfg.Sim.OutputDt / cfg.Sim.NominalDt))
		if outputEvery < 1 {
			outputEvery = 1
		}
	}

	start := time.Now()
	for {
		if err := s.CheckSimulation(); err != nil {
			return fail(err)
		}

		// generate new particles from emitters
		for _, ff := range ffeatures {
			s.AddParticles(ff.StepParticles(s.Ips()))
		}
		for _, mf := range mfeatures {
			s.AddFldPts(mf.StepParticles(0.1*s.Ips()), mf.Moves())
		}

		if err := s.Step(); err != nil {
			return fail(err)
		}

		if outputEvery > 0 && s.NStep()%outputEvery == 0 {
			if err := writeOutput(s, cfg); err != nil {
				return fail(err)
			}
		}

		if s.TestVsStop() {
			break
		}
	}

	slog.Info("run complete", "steps", s.NStep(), "t", s.Time(),
		"particles", s.NParts(), "elapsed", time.Since(start).String())
	return 0
}

// fail logs a fatal error according to its kind in the error taxonomy
// and returns the simulation-error exit code.
func fail(err error) int {
	var (
		cfgErr   *config.ConfigError
		initErr  *sim.InitError
		solErr   *sim.SolverError
		elongErr *sim.ElongationExceededError
		blowErr  *sim.BlowupError
	)
	switch {
	case errors.As(err, &cfgErr):
		slog.Error("configuration rejected", "error", cfgErr)
	case errors.As(err, &initErr):
		slog.Error("initialization failed", "error", initErr)
	case errors.As(err, &solErr):
		slog.Error("bem solve failed", "error", solErr)
	case errors.As(err, &elongErr):
		slog.Error("elongation bound exceeded", "error", elongErr)
	case errors.As(err, &blowErr):
		slog.Error("numerical blowup", "error", blowErr)
	default:
		slog.Error("simulation error", "error", err)
	}
	return 1
}

// newRunRand seeds the generator used by random flow features.
func newRunRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// writeOutput refreshes velocities and writes one frame of vtu files.
func writeOutput(s *sim.Simulation, cfg *config.Config) error {
	if cfg.Sim.OutputDt <= 0 {
		return nil
	}
	if err := s.RefreshVelocities(); err != nil {
		return err
	}
	vort, bdry, fldpt := s.Collections()
	opts := vtkout.Options{Base64: true}
	if _, err := vtkout.WriteCollections(cfg.Runtime.OutputDir, vort, s.NStep(), opts); err != nil {
		return err
	}
	if _, err := vtkout.WriteCollections(cfg.Runtime.OutputDir, fldpt, s.NStep(), opts); err != nil {
		return err
	}
	_, err := vtkout.WriteCollections(cfg.Runtime.OutputDir, bdry, s.NStep(), opts)
	return err
}
