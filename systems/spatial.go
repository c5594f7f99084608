// Package systems provides the per-step operators of the solver: the
// spatial hash, reflect/clear-inner housekeeping, merge, split, the
// vorticity redistribution method, the BEM solve, and velocity
// evaluation with convection.
package systems

import "math"

// Neighbor holds a nearby particle with precomputed spatial data.
// This avoids recomputing the offset and distance in the hot loops.
type Neighbor struct {
	Idx        int
	DX, DY, DZ float64
	DistSq     float64
}

type cellKey struct {
	i, j, k int32
}

// SpatialHash provides neighbor lookups over an unbounded particle
// cloud using map-backed grid cells.
type SpatialHash struct {
	cellSize float64
	cells    map[cellKey][]int32
}

// NewSpatialHash creates a hash with the given cell edge length and
// inserts every particle in the columnar position arrays.
func NewSpatialHash(cellSize float64, x, y, z []float64) *SpatialHash {
	g := &SpatialHash{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int32, len(x)/2+1),
	}
	for i := range x {
		g.Insert(i, x[i], y[i], z[i])
	}
	return g
}

// Insert adds particle index i at the given position.
func (g *SpatialHash) Insert(i int, x, y, z float64) {
	k := g.key(x, y, z)
	g.cells[k] = append(g.cells[k], int32(i))
}

func (g *SpatialHash) key(x, y, z float64) cellKey {
	return cellKey{
		i: int32(math.Floor(x / g.cellSize)),
		j: int32(math.Floor(y / g.cellSize)),
		k: int32(math.Floor(z / g.cellSize)),
	}
}

// QueryRadiusInto finds particles within radius of (x,y,z) and appends
// them to dst. Reuse dst across calls to avoid allocations. The
// excluded index is skipped; pass -1 to keep everything.
func (g *SpatialHash) QueryRadiusInto(dst []Neighbor, x, y, z, radius float64, exclude int, px, py, pz []float64) []Neighbor {
	cr := int32(radius/g.cellSize) + 1
	center := g.key(x, y, z)
	rsq := radius * radius

	for di := -cr; di <= cr; di++ {
		for dj := -cr; dj <= cr; dj++ {
			for dk := -cr; dk <= cr; dk++ {
				cell := cellKey{center.i + di, center.j + dj, center.k + dk}
				for _, id := range g.cells[cell] {
					i := int(id)
					if i == exclude {
						continue
					}
					dx := px[i] - x
					dy := py[i] - y
					dz := pz[i] - z
					dsq := dx*dx + dy*dy + dz*dz
					if dsq <= rsq {
						dst = append(dst, Neighbor{Idx: i, DX: dx, DY: dy, DZ: dz, DistSq: dsq})
					}
				}
			}
		}
	}
	return dst
}
