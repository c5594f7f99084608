package kernels

// Triangular vortex sheet panels are integrated with a fixed 4-point
// quadrature: the centroid plus the three points biased toward each
// corner, equal weights. The incoming strength is the panel's total
// world-frame circulation (sheet strength times area).

// Panel2v0p accumulates the velocity induced by a triangular vortex
// sheet panel on a singular target point.
func Panel2v0p(cf CoreFunc,
	sx0, sy0, sz0 float64,
	sx1, sy1, sz1 float64,
	sx2, sy2, sz2 float64,
	ssx, ssy, ssz float64,
	tx, ty, tz float64,
	tu, tv, tw *float64) {

	strx := 0.25 * ssx
	stry := 0.25 * ssy
	strz := 0.25 * ssz

	sx := (sx0 + sx1 + sx2) / 3.0
	sy := (sy0 + sy1 + sy2) / 3.0
	sz := (sz0 + sz1 + sz2) / 3.0
	Particle0v0p(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tu, tv, tw)

	sx = (4.0*sx0 + sx1 + sx2) / 6.0
	sy = (4.0*sy0 + sy1 + sy2) / 6.0
	sz = (4.0*sz0 + sz1 + sz2) / 6.0
	Particle0v0p(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tu, tv, tw)

	sx = (sx0 + 4.0*sx1 + sx2) / 6.0
	sy = (sy0 + 4.0*sy1 + sy2) / 6.0
	sz = (sz0 + 4.0*sz1 + sz2) / 6.0
	Particle0v0p(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tu, tv, tw)

	sx = (sx0 + sx1 + 4.0*sx2) / 6.0
	sy = (sy0 + sy1 + 4.0*sy2) / 6.0
	sz = (sz0 + sz1 + 4.0*sz2) / 6.0
	Particle0v0p(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tu, tv, tw)
}

// Panel2v0b is Panel2v0p against a thick-cored target.
func Panel2v0b(cf CoreFunc,
	sx0, sy0, sz0 float64,
	sx1, sy1, sz1 float64,
	sx2, sy2, sz2 float64,
	ssx, ssy, ssz float64,
	tx, ty, tz, tr float64,
	tu, tv, tw *float64) {

	strx := 0.25 * ssx
	stry := 0.25 * ssy
	strz := 0.25 * ssz

	sx := (sx0 + sx1 + sx2) / 3.0
	sy := (sy0 + sy1 + sy2) / 3.0
	sz := (sz0 + sz1 + sz2) / 3.0
	Particle0v0b(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tr, tu, tv, tw)

	sx = (4.0*sx0 + sx1 + sx2) / 6.0
	sy = (4.0*sy0 + sy1 + sy2) / 6.0
	sz = (4.0*sz0 + sz1 + sz2) / 6.0
	Particle0v0b(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tr, tu, tv, tw)

	sx = (sx0 + 4.0*sx1 + sx2) / 6.0
	sy = (sy0 + 4.0*sy1 + sy2) / 6.0
	sz = (sz0 + 4.0*sz1 + sz2) / 6.0
	Particle0v0b(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tr, tu, tv, tw)

	sx = (sx0 + sx1 + 4.0*sx2) / 6.0
	sy = (sy0 + sy1 + 4.0*sy2) / 6.0
	sz = (sz0 + sz1 + 4.0*sz2) / 6.0
	Particle0v0b(cf, sx, sy, sz, 0, strx, stry, strz, tx, ty, tz, tr, tu, tv, tw)
}
