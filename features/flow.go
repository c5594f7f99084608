// Package features converts configuration descriptors into element
// batches: initial particle distributions, boundary meshes, and
// measurement points.
package features

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/config"
)

// FlowFeature is one initial or recurring source of vortex particles.
// InitParticles runs once before the first step; StepParticles runs
// before every step. Both return flat 7-tuple batches.
type FlowFeature interface {
	InitParticles(ips float64) []float64
	StepParticles(ips float64) []float64
	String() string
}

// FlowFromSpec builds a feature from its configuration descriptor.
// Disabled features still construct; they emit nothing.
func FlowFromSpec(spec config.FeatureSpec, rng *rand.Rand) (FlowFeature, error) {
	center := vec3(spec.Center)
	switch spec.Type {
	case "single particle":
		return &SingleParticle{enabled: spec.IsEnabled(), pos: center, str: vec3(spec.Strength)}, nil
	case "vortex blob":
		if spec.BlobRadius() <= 0 {
			return nil, fmt.Errorf("features: vortex blob needs a positive radius")
		}
		return &VortexBlob{
			enabled: spec.IsEnabled(), pos: center, str: vec3(spec.Strength),
			rad: spec.BlobRadius(), softness: spec.Softness,
		}, nil
	case "block of random":
		if spec.Num <= 0 {
			return nil, fmt.Errorf("features: block of random needs num > 0")
		}
		return &BlockOfRandom{
			enabled: spec.IsEnabled(), pos: center, size: vec3(spec.Size),
			maxStr: spec.MaxStr, num: spec.Num, rng: rng,
		}, nil
	case "particle emitter":
		return &ParticleEmitter{enabled: spec.IsEnabled(), pos: center, str: vec3(spec.Strength)}, nil
	case "singular ring":
		if spec.MajRad <= 0 {
			return nil, fmt.Errorf("features: singular ring needs a positive major radius")
		}
		return &SingularRing{
			enabled: spec.IsEnabled(), pos: center, normal: vec3(spec.Normal),
			majRad: spec.MajRad, circ: spec.Circ,
		}, nil
	case "thick ring":
		if spec.MajRad <= 0 || spec.MinRad <= 0 {
			return nil, fmt.Errorf("features: thick ring needs positive radii")
		}
		return &ThickRing{
			enabled: spec.IsEnabled(), pos: center, normal: vec3(spec.Normal),
			majRad: spec.MajRad, minRad: spec.MinRad, circ: spec.Circ,
		}, nil
	default:
		return nil, fmt.Errorf("features: unknown flow feature type %q", spec.Type)
	}
}

func vec3(s []float64) r3.Vec {
	var v r3.Vec
	if len(s) > 0 {
		v.X = s[0]
	}
	if len(s) > 1 {
		v.Y = s[1]
	}
	if len(s) > 2 {
		v.Z = s[2]
	}
	return v
}

// orthonormalBasis builds two unit vectors spanning the plane normal
// to n, branch-free in the sign of n.Z.
func orthonormalBasis(n r3.Vec) (b1, b2 r3.Vec) {
	sign := math.Copysign(1.0, n.Z)
	a := -1.0 / (sign + n.Z)
	b := n.X * n.Y * a
	b1 = r3.Vec{X: 1.0 + sign*n.X*n.X*a, Y: sign * b, Z: -sign * n.X}
	b2 = r3.Vec{X: b, Y: sign + n.Y*n.Y*a, Z: -n.Y}
	return b1, b2
}

// SingleParticle drops one particle.
type SingleParticle struct {
	enabled bool
	pos     r3.Vec
	str     r3.Vec
}

func (f *SingleParticle) InitParticles(_ float64) []float64 {
	if !f.enabled {
		return nil
	}
	return []float64{f.pos.X, f.pos.Y, f.pos.Z, f.str.X, f.str.Y, f.str.Z, 0}
}

func (f *SingleParticle) StepParticles(_ float64) []float64 { return nil }

func (f *SingleParticle) String() string {
	return fmt.Sprintf("single particle at %g %g %g with strength %g %g %g",
		f.pos.X, f.pos.Y, f.pos.Z, f.str.X, f.str.Y, f.str.Z)
}

// VortexBlob fills a sphere with a lattice of particles whose
// strengths taper smoothly over a softness band and normalize to the
// requested total.
type VortexBlob struct {
	enabled  bool
	pos      r3.Vec
	str      r3.Vec
	rad      float64
	softness float64
}

func (f *VortexBlob) InitParticles(ips float64) []float64 {
	if !f.enabled {
		return nil
	}
	irad := 1 + int((f.rad+0.5*f.softness)/ips)
	var out []float64
	totWgt := 0.0
	for i := -irad; i <= irad; i++ {
		for j := -irad; j <= irad; j++ {
			for k := -irad; k <= irad; k++ {
				dr := math.Sqrt(float64(i*i+j*j+k*k)) * ips
				if dr >= f.rad+0.5*f.softness {
					continue
				}
				wgt := 1.0
				if f.softness > 0 && dr > f.rad-0.5*f.softness {
					wgt = 0.5 - 0.5*math.Sin(math.Pi*(dr-f.rad)/f.softness)
				}
				totWgt += wgt
				out = append(out,
					f.pos.X+ips*float64(i),
					f.pos.Y+ips*float64(j),
					f.pos.Z+ips*float64(k),
					f.str.X*wgt, f.str.Y*wgt, f.str.Z*wgt,
					0)
			}
		}
	}
	if totWgt > 0 {
		scale := 1.0 / totWgt
		for i := 3; i < len(out); i += 7 {
			out[i+0] *= scale
			out[i+1] *= scale
			out[i+2] *= scale
		}
	}
	return out
}

func (f *VortexBlob) StepParticles(_ float64) []float64 { return nil }

func (f *VortexBlob) String() string {
	return fmt.Sprintf("vortex blob at %g %g %g, radius %g, softness %g",
		f.pos.X, f.pos.Y, f.pos.Z, f.rad, f.softness)
}

// BlockOfRandom scatters particles uniformly through a box with
// uniformly random strengths.
type BlockOfRandom struct {
	enabled bool
	pos     r3.Vec
	size    r3.Vec
	maxStr  float64
	num     int
	rng     *rand.Rand
}

func (f *BlockOfRandom) InitParticles(_ float64) []float64 {
	if !f.enabled {
		return nil
	}
	out := make([]float64, 0, 7*f.num)
	zmean := func() float64 { return f.rng.Float64() - 0.5 }
	perStr := f.maxStr / float64(f.num)
	for i := 0; i < f.num; i++ {
		out = append(out,
			f.pos.X+f.size.X*zmean(),
			f.pos.Y+f.size.Y*zmean(),
			f.pos.Z+f.size.Z*zmean(),
			perStr*zmean(), perStr*zmean(), perStr*zmean(),
			0)
	}
	return out
}

func (f *BlockOfRandom) StepParticles(_ float64) []float64 { return nil }

func (f *BlockOfRandom) String() string {
	return fmt.Sprintf("block of %d random particles, max strength %g", f.num, f.maxStr)
}

// ParticleEmitter drops one particle per step at a fixed point.
type ParticleEmitter struct {
	enabled bool
	pos     r3.Vec
	str     r3.Vec
}

func (f *ParticleEmitter) InitParticles(_ float64) []float64 { return nil }

func (f *ParticleEmitter) StepParticles(_ float64) []float64 {
	if !f.enabled {
		return nil
	}
	return []float64{f.pos.X, f.pos.Y, f.pos.Z, f.str.X, f.str.Y, f.str.Z, 0}
}

func (f *ParticleEmitter) String() string {
	return fmt.Sprintf("particle emitter at %g %g %g", f.pos.X, f.pos.Y, f.pos.Z)
}

// SingularRing lays one row of particles around a circle, strengths
// tangent to it.
type SingularRing struct {
	enabled bool
	pos     r3.Vec
	normal  r3.Vec
	majRad  float64
	circ    float64
}

func (f *SingularRing) InitParticles(ips float64) []float64 {
	if !f.enabled {
		return nil
	}
	ndiam := 1 + int(2.0*math.Pi*f.majRad/ips)
	thisIps := 2.0 * math.Pi * f.majRad / float64(ndiam)

	n := f.normal
	if l := r3.Norm(n); l > 0 {
		n = r3.Scale(1/l, n)
	} else {
		n = r3.Vec{Z: 1}
	}
	b1, b2 := orthonormalBasis(n)

	out := make([]float64, 0, 7*ndiam)
	for i := 0; i < ndiam; i++ {
		theta := 2.0 * math.Pi * float64(i) / float64(ndiam)
		ct, st := math.Cos(theta), math.Sin(theta)
		out = append(out,
			f.pos.X+f.majRad*(b1.X*ct+b2.X*st),
			f.pos.Y+f.majRad*(b1.Y*ct+b2.Y*st),
			f.pos.Z+f.majRad*(b1.Z*ct+b2.Z*st),
			thisIps*f.circ*(b2.X*ct-b1.X*st),
			thisIps*f.circ*(b2.Y*ct-b1.Y*st),
			thisIps*f.circ*(b2.Z*ct-b1.Z*st),
			0)
	}
	return out
}

func (f *SingularRing) StepParticles(_ float64) []float64 { return nil }

func (f *SingularRing) String() string {
	return fmt.Sprintf("singular vortex ring at %g %g %g, radius %g, circulation %g",
		f.pos.X, f.pos.Y, f.pos.Z, f.majRad, f.circ)
}

// ThickRing sweeps a disk cross-section of particle layers around the
// major circle; strength scales with the local major radius so the
// core carries uniform vorticity.
type ThickRing struct {
	enabled bool
	pos     r3.Vec
	normal  r3.Vec
	majRad  float64
	minRad  float64
	circ    float64
}

func (f *ThickRing) InitParticles(ips float64) []float64 {
	if !f.enabled {
		return nil
	}

	// cross-section: local x away from the ring center, local y along
	// the ring normal, plus a length scale for the strength
	type diskPt struct{ x, y, l float64 }
	disk := []diskPt{{0, 0, 1}}
	nlayers := 1 + int(f.minRad/ips)
	for l := 1; l < nlayers; l++ {
		thisRad := float64(l) * ips
		nthis := 1 + int(2.0*math.Pi*thisRad/ips)
		for i := 0; i < nthis; i++ {
			phi := 2.0 * math.Pi * float64(i) / float64(nthis)
			dx := thisRad * math.Cos(phi)
			disk = append(disk, diskPt{
				x: dx,
				y: thisRad * math.Sin(phi),
				l: (f.majRad + dx) / f.majRad,
			})
		}
	}

	ndiam := 1 + int(2.0*math.Pi*f.majRad/ips)
	thisIps := 2.0 * math.Pi * f.majRad / float64(ndiam)

	n := f.normal
	if l := r3.Norm(n); l > 0 {
		n = r3.Scale(1/l, n)
	} else {
		n = r3.Vec{Z: 1}
	}
	b1, b2 := orthonormalBasis(n)

	out := make([]float64, 0, 7*ndiam*len(disk))
	for i := 0; i < ndiam; i++ {
		theta := 2.0 * math.Pi * float64(i) / float64(ndiam)
		ct, st := math.Cos(theta), math.Sin(theta)
		for _, d := range disk {
			out = append(out,
				f.pos.X+(f.majRad+d.x)*(b1.X*ct+b2.X*st)+d.y*n.X,
				f.pos.Y+(f.majRad+d.x)*(b1.Y*ct+b2.Y*st)+d.y*n.Y,
				f.pos.Z+(f.majRad+d.x)*(b1.Z*ct+b2.Z*st)+d.y*n.Z)
			sscale := d.l * thisIps * f.circ / float64(len(disk))
			out = append(out,
				sscale*(b2.X*ct-b1.X*st),
				sscale*(b2.Y*ct-b1.Y*st),
				sscale*(b2.Z*ct-b1.Z*st),
				0)
		}
	}
	return out
}

func (f *ThickRing) StepParticles(_ float64) []float64 { return nil }

func (f *ThickRing) String() string {
	return fmt.Sprintf("thick vortex ring at %g %g %g, radii %g %g, circulation %g",
		f.pos.X, f.pos.Y, f.pos.Z, f.majRad, f.minRad, f.circ)
}
