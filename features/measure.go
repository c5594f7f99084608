package features

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/config"
)

// MeasureFeature produces inert field points. InitParticles returns
// flat interleaved positions (3 values per point), not the 7-tuple
// particle format; field points carry no strength or radius.
type MeasureFeature interface {
	InitParticles(scale float64) []float64
	StepParticles(scale float64) []float64
	// Moves reports whether the points advect with the flow.
	Moves() bool
	String() string
}

// MeasureFromSpec builds a measurement feature from its descriptor.
func MeasureFromSpec(spec config.MeasureSpec) (MeasureFeature, error) {
	switch spec.Type {
	case "single point":
		return &MeasurePoint{enabled: spec.IsEnabled(), pos: vec3(spec.Center), moves: false}, nil
	case "tracer":
		return &MeasurePoint{enabled: spec.IsEnabled(), pos: vec3(spec.Center), moves: true}, nil
	case "grid of points":
		num := [3]int{2, 2, 2}
		for i := 0; i < len(spec.Num) && i < 3; i++ {
			if spec.Num[i] > 0 {
				num[i] = spec.Num[i]
			}
		}
		return &MeasureGrid{
			enabled: spec.IsEnabled(), center: vec3(spec.Center),
			size: vec3(spec.Size), num: num,
		}, nil
	default:
		return nil, fmt.Errorf("features: unknown measurement type %q", spec.Type)
	}
}

// MeasurePoint is a single field point, fixed or advecting.
type MeasurePoint struct {
	enabled bool
	pos     r3.Vec
	moves   bool
}

func (m *MeasurePoint) InitParticles(_ float64) []float64 {
	if !m.enabled {
		return nil
	}
	return []float64{m.pos.X, m.pos.Y, m.pos.Z}
}

func (m *MeasurePoint) StepParticles(_ float64) []float64 { return nil }

func (m *MeasurePoint) Moves() bool { return m.moves }

func (m *MeasurePoint) String() string {
	kind := "field point"
	if m.moves {
		kind = "tracer"
	}
	return fmt.Sprintf("%s at %g %g %g", kind, m.pos.X, m.pos.Y, m.pos.Z)
}

// MeasureGrid is a fixed block of field points.
type MeasureGrid struct {
	enabled bool
	center  r3.Vec
	size    r3.Vec
	num     [3]int
}

func (m *MeasureGrid) InitParticles(_ float64) []float64 {
	if !m.enabled {
		return nil
	}
	out := make([]float64, 0, 3*m.num[0]*m.num[1]*m.num[2])
	for i := 0; i < m.num[0]; i++ {
		for j := 0; j < m.num[1]; j++ {
			for k := 0; k < m.num[2]; k++ {
				out = append(out,
					m.center.X+m.size.X*(frac(i, m.num[0])-0.5),
					m.center.Y+m.size.Y*(frac(j, m.num[1])-0.5),
					m.center.Z+m.size.Z*(frac(k, m.num[2])-0.5))
			}
		}
	}
	return out
}

func frac(i, n int) float64 {
	if n <= 1 {
		return 0.5
	}
	return float64(i) / float64(n-1)
}

func (m *MeasureGrid) StepParticles(_ float64) []float64 { return nil }

func (m *MeasureGrid) Moves() bool { return false }

func (m *MeasureGrid) String() string {
	return fmt.Sprintf("grid of %dx%dx%d field points", m.num[0], m.num[1], m.num[2])
}
