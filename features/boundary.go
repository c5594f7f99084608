package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vortexlab/vpm/config"
)

// ElementPacket carries raw surface geometry from a boundary feature
// to the simulation: interleaved node coordinates and triangle
// indices.
type ElementPacket struct {
	Nodes []float64
	Idx   []int32
}

// BoundaryFeature produces surface geometry and names the body that
// drives it.
type BoundaryFeature interface {
	InitElements(ips float64) ElementPacket
	BodyName() string
	String() string
}

// BoundaryFromSpec builds a boundary feature from its descriptor.
func BoundaryFromSpec(spec config.BoundarySpec) (BoundaryFeature, error) {
	switch spec.Type {
	case "sphere":
		subdiv := spec.Subdivisions
		if subdiv < 0 {
			return nil, fmt.Errorf("features: sphere subdivisions must be non-negative")
		}
		return &Sphere{
			enabled: spec.IsEnabled(),
			body:    spec.Body,
			center:  vec3(spec.Center),
			radius:  spec.Radius,
			subdiv:  subdiv,
		}, nil
	default:
		return nil, fmt.Errorf("features: unknown boundary type %q", spec.Type)
	}
}

// Sphere is a closed triangulated sphere built by subdividing an
// icosahedron and projecting to the radius. Triangles wind outward.
type Sphere struct {
	enabled bool
	body    string
	center  r3.Vec
	radius  float64
	subdiv  int
}

// BodyName returns the name of the driving body, empty for ground.
func (s *Sphere) BodyName() string { return s.body }

func (s *Sphere) String() string {
	return fmt.Sprintf("sphere at %g %g %g, radius %g, %d subdivisions",
		s.center.X, s.center.Y, s.center.Z, s.radius, s.subdiv)
}

// InitElements triangulates the sphere. When subdivisions is zero a
// level is chosen so panel edges land near the nominal particle
// spacing.
func (s *Sphere) InitElements(ips float64) ElementPacket {
	if !s.enabled {
		return ElementPacket{}
	}

	subdiv := s.subdiv
	if subdiv == 0 && ips > 0 {
		// icosahedron edge ~1.05r halves per level
		edge := 1.05 * s.radius
		for subdiv < 5 && edge > ips {
			subdiv++
			edge *= 0.5
		}
	}

	verts, tris := icosahedron()
	for level := 0; level < subdiv; level++ {
		verts, tris = subdivide(verts, tris)
	}

	pkt := ElementPacket{
		Nodes: make([]float64, 0, 3*len(verts)),
		Idx:   make([]int32, 0, 3*len(tris)),
	}
	for _, v := range verts {
		p := r3.Add(s.center, r3.Scale(s.radius, r3.Unit(v)))
		pkt.Nodes = append(pkt.Nodes, p.X, p.Y, p.Z)
	}
	for _, t := range tris {
		pkt.Idx = append(pkt.Idx, t[0], t[1], t[2])
	}
	return pkt
}

// icosahedron returns the 12 vertices and 20 outward-wound faces of a
// unit icosahedron.
func icosahedron() ([]r3.Vec, [][3]int32) {
	phi := (1.0 + math.Sqrt(5.0)) / 2.0
	verts := []r3.Vec{
		{X: -1, Y: phi}, {X: 1, Y: phi}, {X: -1, Y: -phi}, {X: 1, Y: -phi},
		{Y: -1, Z: phi}, {Y: 1, Z: phi}, {Y: -1, Z: -phi}, {Y: 1, Z: -phi},
		{Z: -1, X: phi}, {Z: 1, X: phi}, {Z: -1, X: -phi}, {Z: 1, X: -phi},
	}
	tris := [][3]int32{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	return verts, tris
}

// subdivide splits every triangle into four, sharing midpoint
// vertices.
func subdivide(verts []r3.Vec, tris [][3]int32) ([]r3.Vec, [][3]int32) {
	type edge struct{ a, b int32 }
	mid := make(map[edge]int32)
	midpoint := func(a, b int32) int32 {
		if a > b {
			a, b = b, a
		}
		if m, ok := mid[edge{a, b}]; ok {
			return m
		}
		m := int32(len(verts))
		verts = append(verts, r3.Scale(0.5, r3.Add(verts[a], verts[b])))
		mid[edge{a, b}] = m
		return m
	}

	out := make([][3]int32, 0, 4*len(tris))
	for _, t := range tris {
		ab := midpoint(t[0], t[1])
		bc := midpoint(t[1], t[2])
		ca := midpoint(t[2], t[0])
		out = append(out,
			[3]int32{t[0], ab, ca},
			[3]int32{t[1], bc, ab},
			[3]int32{t[2], ca, bc},
			[3]int32{ab, bc, ca})
	}
	return verts, out
}
