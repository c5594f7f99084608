package kernels

// Particle0v0b accumulates the velocity induced by a thick-cored
// vortex particle on a thick-cored target point.
func Particle0v0b(cf CoreFunc,
	sx, sy, sz, sr, ssx, ssy, ssz float64,
	tx, ty, tz, tr float64,
	tu, tv, tw *float64) {

	dx := tx - sx
	dy := ty - sy
	dz := tz - sz
	r3 := Core(cf, dx*dx+dy*dy+dz*dz, sr, tr)
	*tu += r3 * (dz*ssy - dy*ssz)
	*tv += r3 * (dx*ssz - dz*ssx)
	*tw += r3 * (dy*ssx - dx*ssy)
}

// Particle0v0p accumulates the velocity induced by a thick-cored
// vortex particle on a singular point.
func Particle0v0p(cf CoreFunc,
	sx, sy, sz, sr, ssx, ssy, ssz float64,
	tx, ty, tz float64,
	tu, tv, tw *float64) {

	dx := tx - sx
	dy := ty - sy
	dz := tz - sz
	r3 := Core(cf, dx*dx+dy*dy+dz*dz, sr, 0)
	*tu += r3 * (dz*ssy - dy*ssz)
	*tv += r3 * (dx*ssz - dz*ssx)
	*tw += r3 * (dy*ssx - dx*ssy)
}

// Particle0v0bg accumulates the velocity and velocity gradient induced
// by a thick-cored vortex particle on a thick-cored target point. The
// gradient accumulators are row-major d(u,v,w)/d(x,y,z).
func Particle0v0bg(cf CoreFunc,
	sx, sy, sz, sr, ssx, ssy, ssz float64,
	tx, ty, tz, tr float64,
	tu, tv, tw *float64,
	tux, tvx, twx *float64,
	tuy, tvy, twy *float64,
	tuz, tvz, twz *float64) {

	dx := tx - sx
	dy := ty - sy
	dz := tz - sz
	r3, bbb := CoreGrad(cf, dx*dx+dy*dy+dz*dz, sr, tr)
	dxxw := dz*ssy - dy*ssz
	dyxw := dx*ssz - dz*ssx
	dzxw := dy*ssx - dx*ssy
	*tu += r3 * dxxw
	*tv += r3 * dyxw
	*tw += r3 * dzxw

	dxxw *= bbb
	dyxw *= bbb
	dzxw *= bbb
	*tux += dx * dxxw
	*tvx += dx*dyxw + ssz*r3
	*twx += dx*dzxw - ssy*r3
	*tuy += dy*dxxw - ssz*r3
	*tvy += dy * dyxw
	*twy += dy*dzxw + ssx*r3
	*tuz += dz*dxxw + ssy*r3
	*tvz += dz*dyxw - ssx*r3
	*twz += dz * dzxw
}
