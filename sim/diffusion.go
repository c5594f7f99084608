package sim

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/elements"
	"github.com/vortexlab/vpm/kernels"
	"github.com/vortexlab/vpm/systems"
)

// Diffusion sequences one viscous step: clear the inner layer, solve
// the BEM, shed, redistribute, reflect, merge, clear again, and merge
// again. The order is fixed; no stage may move across the
// solve/shed/redistribute boundary.
type Diffusion struct {
	vrm  *systems.VRM
	core kernels.CoreFunc

	hnu           float64
	isInviscid    bool
	adaptiveRadii bool

	// nominal separation normalized by h_nu
	nomSepScaled float64
	// particle core size is nominal separation times this
	overlap float64
	// merge aggressivity
	mergeThresh float64

	// true sheds at the boundary before redistribution and cleans the
	// sub-surface layer afterwards; false redistributes first and
	// sheds at the diffused-sheet centroid distance
	shedBeforeDiffuse bool
}

// NewDiffusion returns a driver with the customary constants.
func NewDiffusion(core kernels.CoreFunc) *Diffusion {
	return &Diffusion{
		vrm:               systems.NewVRM(),
		core:              core,
		hnu:               0.1,
		nomSepScaled:      math.Sqrt(8.0),
		overlap:           1.5,
		mergeThresh:       0.2,
		shedBeforeDiffuse: true,
	}
}

// SetDiffuse toggles viscosity.
func (d *Diffusion) SetDiffuse(on bool) { d.isInviscid = !on }

// Diffuse reports whether viscosity is on.
func (d *Diffusion) Diffuse() bool { return !d.isInviscid }

// SetAMR toggles adaptive particle radii; enabling it forces
// viscosity on.
func (d *Diffusion) SetAMR(on bool) {
	d.adaptiveRadii = on
	d.vrm.AdaptiveRadii = on
	if on {
		d.SetDiffuse(true)
	}
}

// AMR reports whether adaptive radii are allowed.
func (d *Diffusion) AMR() bool { return d.adaptiveRadii }

// VRM exposes the redistribution engine for threshold configuration.
func (d *Diffusion) VRM() *systems.VRM { return d.vrm }

// NomSepScaled returns the nominal separation in units of h_nu.
func (d *Diffusion) NomSepScaled() float64 { return d.nomSepScaled }

// Overlap returns the core overlap factor.
func (d *Diffusion) Overlap() float64 { return d.overlap }

// Core returns the core regularization in use.
func (d *Diffusion) Core() kernels.CoreFunc { return d.core }

// NomSep returns the nominal inter-particle spacing for a given
// diffusion length.
func (d *Diffusion) NomSep(hnu float64) float64 { return d.nomSepScaled * hnu }

// Step takes one full diffusion step. The particle collections may
// grow (shedding, redistribution) and shrink (merging).
func (d *Diffusion) Step(t, dt, re, vdelta float64, fs r3.Vec,
	vort *[]elements.Collection, bdry []elements.Collection, bem *systems.BEM) error {

	if d.isInviscid {
		return nil
	}

	d.hnu = math.Sqrt(dt / re)
	ips := d.NomSep(d.hnu)

	// push away particles inside or too close to any body, then bring
	// the panel strengths up to date before shedding
	dInner := ips / math.Sqrt(2.0*math.Pi)
	systems.ClearInnerLayer(systems.ClearPush, bdry, *vort, 0, dInner)
	if err := bem.Solve(t, fs, *vort, bdry); err != nil {
		return &SolverError{Err: err}
	}

	// generate particles at the boundary so the newly shed circulation
	// takes part in this step's redistribution
	if d.shedBeforeDiffuse {
		d.shed(vort, bdry, 0.01*d.hnu, vdelta)
	}

	// diffuse strength among existing particles
	for _, vc := range *vort {
		pts, ok := vc.(*elements.Points)
		if !ok || pts.IsInert() {
			continue
		}
		slog.Debug("computing diffusion", "particles", pts.N())
		newN, skipped := d.vrm.DiffuseAll(pts, d.hnu, d.core, d.overlap)
		pts.Resize(newN)
		for _, ip := range skipped {
			verr := &VrmInfeasibleError{
				Particle:  ip.Index,
				Strength:  ip.Strength,
				Neighbors: ip.Neighbors,
			}
			slog.Warn("redistribution skipped", "error", verr)
		}
	}

	// redistribution works in free space; anything it pushed inside a
	// body comes back out
	systems.ReflectInterior(bdry, *vort)

	systems.MergeClose(*vort, d.overlap, d.mergeThresh, d.adaptiveRadii)

	// remove the innermost layer, which the boundary strengths will
	// represent next solve
	systems.ClearInnerLayer(systems.ClearPush, bdry, *vort, 0, vdelta/d.overlap)

	// generate particles at the centroid of one step of diffusion from
	// a flat plate
	if !d.shedBeforeDiffuse {
		d.shed(vort, bdry, d.hnu*math.Sqrt(4.0/math.Pi), vdelta)
	}

	if len(bdry) > 0 {
		systems.MergeClose(*vort, d.overlap, d.mergeThresh, d.adaptiveRadii)
	}

	for _, vc := range *vort {
		vc.UpdateMaxStr()
	}
	return nil
}

// shed converts every reactive surface's sheet strengths into
// particles at the given standoff and appends them to the last
// particle collection, creating one if none exists.
func (d *Diffusion) shed(vort *[]elements.Collection, bdry []elements.Collection, offset, vdelta float64) {
	for _, bc := range bdry {
		surf, ok := bc.(*elements.Surfaces)
		if !ok || surf.ElemKind() != elements.Reactive {
			continue
		}
		batch := surf.RepresentAsParticles(offset, vdelta)
		if len(batch) == 0 {
			continue
		}
		appendToLastPoints(vort, batch, vdelta)
	}
}

// appendToLastPoints adds a particle batch to the trailing Points
// collection, making a fresh active Lagrangian collection when there
// is none.
func appendToLastPoints(vort *[]elements.Collection, batch []float64, vdelta float64) {
	if len(*vort) > 0 {
		if pts, ok := (*vort)[len(*vort)-1].(*elements.Points); ok {
			pts.AddNew(batch, vdelta)
			return
		}
	}
	*vort = append(*vort, elements.NewPoints(batch, vdelta, elements.Active, elements.Lagrangian, nil))
}
