package sim

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
	"github.com/vortexlab/vpm/systems"
)

// Simulation owns the run state: physical parameters, the three
// collection lists, the BEM, the diffusion driver and the convection
// integrator. One Simulation advances one flow in time.
type Simulation struct {
	re float64
	dt float64
	fs r3.Vec

	bodies []*elements.Body

	// active Lagrangian elements
	vort []elements.Collection
	// reactive elements, the BEM surfaces
	bdry []elements.Collection
	// inert tracers and field points
	fldpt []elements.Collection

	bem  *systems.BEM
	diff *Diffusion
	conv *systems.Convection
	sf   *StatusFile

	description string
	time        float64
	outputDt    float64
	endTime     float64
	useEndTime  bool
	nstep       int
	maxSteps    int
	useMaxSteps bool

	initialized  bool
	stepStarted  bool
	stepFinished bool
	stepDone     chan error

	// previous impulse for the force derivative
	lastTime    float64
	lastImpulse r3.Vec
}

// New returns a simulation with the customary defaults and the given
// core regularization.
func New(core kernels.CoreFunc) *Simulation {
	return &Simulation{
		re:   100.0,
		dt:   0.01,
		bem:  systems.NewBEM(core),
		diff: NewDiffusion(core),
		conv: systems.NewConvection(core),
	}
}

// Parameter access

// SetRe sets the Reynolds number.
func (s *Simulation) SetRe(re float64) { s.re = re }

// Re returns the Reynolds number.
func (s *Simulation) Re() float64 { return s.re }

// SetDt sets the nominal time step.
func (s *Simulation) SetDt(dt float64) { s.dt = dt }

// Dt returns the nominal time step.
func (s *Simulation) Dt() float64 { return s.dt }

// SetFreestream sets the freestream velocity.
func (s *Simulation) SetFreestream(fs r3.Vec) { s.fs = fs }

// Freestream returns the freestream velocity.
func (s *Simulation) Freestream() r3.Vec { return s.fs }

// Hnu returns the diffusion length scale sqrt(dt/Re).
func (s *Simulation) Hnu() float64 { return math.Sqrt(s.dt / s.re) }

// Ips returns the nominal inter-particle spacing.
func (s *Simulation) Ips() float64 { return s.diff.NomSep(s.Hnu()) }

// Vdelta returns the nominal particle core radius.
func (s *Simulation) Vdelta() float64 { return s.diff.Overlap() * s.Ips() }

// Time returns the current simulation time.
func (s *Simulation) Time() float64 { return s.time }

// NStep returns the completed step count.
func (s *Simulation) NStep() int { return s.nstep }

// SetDescription records the run description.
func (s *Simulation) SetDescription(d string) { s.description = d }

// Description returns the run description.
func (s *Simulation) Description() string { return s.description }

// SetEndTime sets and enables the end-time stopping criterion.
func (s *Simulation) SetEndTime(t float64) { s.endTime = t; s.useEndTime = true }

// SetMaxSteps sets and enables the step-count stopping criterion.
func (s *Simulation) SetMaxSteps(n int) { s.maxSteps = n; s.useMaxSteps = true }

// SetOutputDt sets the output interval.
func (s *Simulation) SetOutputDt(dt float64) { s.outputDt = dt }

// OutputDt returns the output interval.
func (s *Simulation) OutputDt() float64 { return s.outputDt }

// SetStatusFile attaches the status sink; nil disables it.
func (s *Simulation) SetStatusFile(sf *StatusFile) { s.sf = sf }

// SetDiffuse toggles viscosity.
func (s *Simulation) SetDiffuse(on bool) { s.diff.SetDiffuse(on) }

// SetAMR toggles adaptive particle radii.
func (s *Simulation) SetAMR(on bool) { s.diff.SetAMR(on) }

// Diffusion exposes the diffusion driver for threshold configuration.
func (s *Simulation) Diffusion() *Diffusion { return s.diff }

// Collections exposes the three element lists for output and tests.
func (s *Simulation) Collections() (vort, bdry, fldpt []elements.Collection) {
	return s.vort, s.bdry, s.fldpt
}

// Population counts

// NParts returns the total particle count.
func (s *Simulation) NParts() int {
	n := 0
	for _, c := range s.vort {
		n += c.N()
	}
	return n
}

// NPanels returns the total panel count.
func (s *Simulation) NPanels() int {
	n := 0
	for _, c := range s.bdry {
		if surf, ok := c.(*elements.Surfaces); ok {
			n += surf.NPanels()
		}
	}
	return n
}

// NFldPts returns the total field point count.
func (s *Simulation) NFldPts() int {
	n := 0
	for _, c := range s.fldpt {
		n += c.N()
	}
	return n
}

// Element management

// AddParticles appends a flat 7-tuple batch to the main particle
// collection, assigning the nominal core radius where the batch left
// it zero.
func (s *Simulation) AddParticles(batch []float64) {
	if len(batch) == 0 {
		return
	}
	appendToLastPoints(&s.vort, batch, s.Vdelta())
}

// AddFldPts appends inert field points given as interleaved positions.
// Moving points join the existing tracer collection; fixed points get
// their own.
func (s *Simulation) AddFldPts(positions []float64, moves bool) {
	if len(positions) == 0 {
		return
	}
	batch := make([]float64, 0, len(positions)/3*elements.TupleLen)
	for i := 0; i+2 < len(positions); i += 3 {
		batch = append(batch, positions[i], positions[i+1], positions[i+2], 0, 0, 0, 1)
	}
	mk := elements.Fixed
	if moves {
		mk = elements.Lagrangian
	}
	if moves {
		for _, fc := range s.fldpt {
			if pts, ok := fc.(*elements.Points); ok && pts.MoveKind() == elements.Lagrangian {
				pts.AddNew(batch, 1)
				return
			}
		}
	}
	s.fldpt = append(s.fldpt, elements.NewPoints(batch, 1, elements.Inert, mk, nil))
}

// AddBody registers a rigid body.
func (s *Simulation) AddBody(b *elements.Body) {
	s.bodies = append(s.bodies, b)
	slog.Info("added body", "name", b.Name, "count", len(s.bodies))
}

// BodyByName returns the named body, creating a stationary ground
// body when nothing matches.
func (s *Simulation) BodyByName(name string) *elements.Body {
	for _, b := range s.bodies {
		if b.Name == name {
			return b
		}
	}
	slog.Info("no body matched, creating ground", "requested", name)
	b := elements.NewBody("ground")
	s.AddBody(b)
	return b
}

// AddBoundary appends surface geometry, joining an existing collection
// with the same motion type and body when one exists.
func (s *Simulation) AddBoundary(body *elements.Body, nodes []float64, idx []int32) error {
	if len(idx) == 0 {
		return nil
	}
	mk := elements.Fixed
	if body != nil && body.Moves() {
		mk = elements.Bodybound
	}
	for _, bc := range s.bdry {
		surf, ok := bc.(*elements.Surfaces)
		if !ok || surf.ElemKind() != elements.Reactive {
			continue
		}
		if surf.MoveKind() == mk && surf.Body() == body {
			s.bem.MarkDirty()
			return surf.AddNew(nodes, idx)
		}
	}
	surf, err := elements.NewSurfaces(nodes, idx, elements.Reactive, mk, body)
	if err != nil {
		return err
	}
	s.bdry = append(s.bdry, surf)
	s.bem.MarkDirty()
	return nil
}

// Lifecycle

// SetInitialized marks setup complete.
func (s *Simulation) SetInitialized() { s.initialized = true }

// IsInitialized reports whether setup completed.
func (s *Simulation) IsInitialized() bool { return s.initialized }

// Reset drops all state so a new case can be loaded. Any running step
// completes first.
func (s *Simulation) Reset() {
	if s.stepStarted && s.stepDone != nil {
		<-s.stepDone
		s.stepStarted = false
	}
	s.time = 0
	s.nstep = 0
	s.vort = nil
	s.bdry = nil
	s.fldpt = nil
	s.bodies = nil
	s.bem.Reset()
	s.initialized = false
	s.stepFinished = false
	s.lastTime = 0
	s.lastImpulse = r3.Vec{}
}

// CheckInitialization returns an InitError for any condition that
// prevents the run from starting.
func (s *Simulation) CheckInitialization() error {
	if s.NPanels() == 0 && s.NParts() == 0 {
		return &InitError{Reason: "no flow features and no bodies; add one or both"}
	}
	if s.NPanels() > 0 && s.NParts() == 0 {
		zeroFS := r3.Norm(s.fs) < 1e-12
		noMotion := true
		for _, b := range s.bodies {
			if b.Moves() {
				noMotion = false
			}
		}
		noBCs := true
		for _, bc := range s.bdry {
			if surf, ok := bc.(*elements.Surfaces); ok && surf.MaxBC(s.time) > 1e-12 {
				noBCs = false
			}
		}
		if zeroFS && noMotion && noBCs {
			return &InitError{Reason: "no flow features, zero freestream, no movement and no driven boundaries"}
		}
		if !s.diff.Diffuse() {
			return &InitError{Reason: "a solid body without diffusion will not shed; turn on viscosity or add a flow feature"}
		}
	}
	if n := s.NPanels(); n > systems.MaxPanels {
		return &InitError{Reason: fmt.Sprintf("%d panels exceeds the %d panel capacity; reduce Re or increase dt", n, systems.MaxPanels)}
	}
	if e := s.maxElong(); e > 1.5 {
		return &InitError{Reason: "elongation threshold exceeded; reduce the time step"}
	}
	return nil
}

// CheckSimulation returns a fatal error for any dynamic condition that
// should stop the run.
func (s *Simulation) CheckSimulation() error {
	for _, vc := range s.vort {
		if pts, ok := vc.(*elements.Points); ok && pts.HasNonFinite() {
			return &BlowupError{Step: s.nstep}
		}
	}
	if e := s.maxElong(); e > 1.5 {
		return &ElongationExceededError{Max: e}
	}
	return nil
}

func (s *Simulation) maxElong() float64 {
	m := 0.0
	for _, vc := range s.vort {
		if pts, ok := vc.(*elements.Points); ok {
			if e := pts.MaxElong(); e > m {
				m = e
			}
		}
	}
	return m
}

// Stepping

// FirstStep solves the BEM and fills in velocities at t=0 without
// advecting anything, then writes the first status line.
func (s *Simulation) FirstStep() error {
	slog.Info("taking step", "n", s.nstep, "t", s.time)
	if err := s.conv.Advect1st(s.time, 0, s.fs, s.vort, s.bdry, s.fldpt, s.bem); err != nil {
		return &SolverError{Err: err}
	}
	return s.dumpStats()
}

// Step advances the flow by one nominal time step: diffusion, then
// convection, then particle-field housekeeping.
func (s *Simulation) Step() error {
	slog.Info("taking step", "n", s.nstep, "t", s.time, "particles", s.NParts())

	if err := s.diff.Step(s.time, s.dt, s.re, s.Vdelta(), s.fs, &s.vort, s.bdry, s.bem); err != nil {
		return err
	}

	if err := s.conv.Advect2nd(s.time, s.dt, s.fs, s.vort, s.bdry, s.fldpt, s.bem); err != nil {
		return &SolverError{Err: err}
	}

	// push field points out of bodies every few steps
	if s.nstep%5 == 0 {
		systems.ClearInnerLayer(systems.ClearPush, s.bdry, s.fldpt, 0, 0.5*s.Ips())
	}

	// split any elongated particles
	for _, vc := range s.vort {
		if pts, ok := vc.(*elements.Points); ok {
			systems.SplitElongated(pts, s.diff.Core(), s.diff.Overlap(), 1.2, s.diff.AMR())
		}
	}

	s.time += s.dt
	s.nstep++

	if err := s.CheckSimulation(); err != nil {
		return err
	}
	return s.dumpStats()
}

// AsyncStep launches one step (the first when none has run) in the
// background. Poll TestForNewResults for completion.
func (s *Simulation) AsyncStep() {
	s.stepStarted = true
	s.stepDone = make(chan error, 1)
	go func() {
		if s.nstep == 0 && !s.stepFinished {
			s.stepDone <- s.FirstStep()
			return
		}
		s.stepDone <- s.Step()
	}()
}

// TestForNewResults polls the running step. It returns true when no
// step is in flight (results are current); the error is the completed
// step's outcome.
func (s *Simulation) TestForNewResults() (bool, error) {
	if !s.stepStarted {
		return true, nil
	}
	select {
	case err := <-s.stepDone:
		s.stepStarted = false
		s.stepFinished = true
		return true, err
	default:
		return false, nil
	}
}

// TestVsStop reports whether the run reached a stopping criterion.
func (s *Simulation) TestVsStop() bool {
	if s.useMaxSteps && s.nstep >= s.maxSteps {
		slog.Info("stopping at step limit", "steps", s.maxSteps)
		return true
	}
	if s.useEndTime && s.time+0.5*s.dt >= s.endTime {
		slog.Info("stopping at end time", "time", s.endTime)
		return true
	}
	return false
}

// Diagnostics

// TotalCirculation sums particle strengths and panel sheet strengths.
func (s *Simulation) TotalCirculation() r3.Vec {
	var tot r3.Vec
	for _, vc := range s.vort {
		if pts, ok := vc.(*elements.Points); ok {
			tot = r3.Add(tot, pts.TotalCirculation())
		}
	}
	for _, bc := range s.bdry {
		if surf, ok := bc.(*elements.Surfaces); ok {
			tot = r3.Add(tot, surf.TotalCirculation())
			tot = r3.Add(tot, surf.BodyCirculation())
		}
	}
	return tot
}

// TotalImpulse sums position-cross-strength over particles and panels.
func (s *Simulation) TotalImpulse() r3.Vec {
	var imp r3.Vec
	for _, vc := range s.vort {
		if pts, ok := vc.(*elements.Points); ok {
			imp = r3.Add(imp, pts.TotalImpulse())
		}
	}
	for _, bc := range s.bdry {
		if surf, ok := bc.(*elements.Surfaces); ok {
			imp = r3.Add(imp, surf.TotalImpulse())
		}
	}
	return imp
}

// simpleForces differentiates the total impulse in time.
func (s *Simulation) simpleForces() r3.Vec {
	if s.time < 0.1*s.dt {
		s.lastTime = -s.dt
		s.lastImpulse = r3.Vec{}
	}
	imp := s.TotalImpulse()
	denom := s.time - s.lastTime
	var f r3.Vec
	if denom > 0 {
		f = r3.Scale(1.0/denom, r3.Sub(imp, s.lastImpulse))
	}
	s.lastTime = s.time
	s.lastImpulse = imp
	return f
}

// dumpStats refreshes the BEM so panel circulation is current, then
// appends one status line.
func (s *Simulation) dumpStats() error {
	if s.sf == nil {
		return nil
	}
	if err := s.bem.Solve(s.time, s.fs, s.vort, s.bdry); err != nil {
		return &SolverError{Err: err}
	}
	circ := s.TotalCirculation()
	force := s.simpleForces()
	return s.sf.Append(StatusRecord{
		Time:   s.time,
		NParts: s.NParts(),
		CircX:  circ.X, CircY: circ.Y, CircZ: circ.Z,
		ForceX: force.X, ForceY: force.Y, ForceZ: force.Z,
	})
}

// RefreshVelocities solves the BEM and evaluates element velocities,
// as output writers need before sampling the state.
func (s *Simulation) RefreshVelocities() error {
	if err := s.bem.Solve(s.time, s.fs, s.vort, s.bdry); err != nil {
		return &SolverError{Err: err}
	}
	s.conv.FindVels(s.fs, s.vort, s.bdry, s.vort)
	s.conv.FindVels(s.fs, s.vort, s.bdry, s.fldpt)
	return nil
}
