// Package kernels provides the pure influence functions of the solver:
// regularized Biot-Savart velocity (and gradient) contributions of
// vortex particles and triangular vortex sheet panels on target points.
// All functions are stateless and safe to call from any goroutine.
package kernels

import "math"

// CoreFunc selects the core regularization used by the velocity
// kernels.
type CoreFunc int

const (
	// RosenheadMoore is the algebraic core, cheap and long-tailed.
	RosenheadMoore CoreFunc = iota
	// CompactExp is the compact exponential core.
	CompactExp
)

func (c CoreFunc) String() string {
	if c == CompactExp {
		return "compact exponential"
	}
	return "rosenhead-moore"
}

// coreRM returns 1/r^3 regularized by both source and target radii.
func coreRM(distsq, sr, tr float64) float64 {
	r2 := distsq + sr*sr + tr*tr
	return 1.0 / (r2 * math.Sqrt(r2))
}

// coreRMGrad also returns the radial derivative factor -3/r^5.
func coreRMGrad(distsq, sr, tr float64) (r3, bbb float64) {
	r2 := distsq + sr*sr + tr*tr
	r3 = 1.0 / (r2 * math.Sqrt(r2))
	bbb = -3.0 * r3 / r2
	return r3, bbb
}

// coreExp is the compact exponential core. The three branches cover the
// far field (plain 1/d^3), the deep core (constant), and the blended
// middle.
func coreExp(distsq, sr, tr float64) float64 {
	dist := math.Sqrt(distsq)
	d3 := distsq * dist
	corefac := 1.0 / (sr*sr*sr + tr*tr*tr)
	reld3 := d3 * corefac
	switch {
	case reld3 > 16.0:
		return 1.0 / d3
	case reld3 < 0.001:
		return corefac
	default:
		return (1.0 - math.Exp(-reld3)) / d3
	}
}

func coreExpGrad(distsq, sr, tr float64) (r3, bbb float64) {
	dist := math.Sqrt(distsq)
	d3 := distsq * dist
	corefac := 1.0 / (sr*sr*sr + tr*tr*tr)
	reld3 := d3 * corefac
	switch {
	case reld3 > 16.0:
		r3 = 1.0 / d3
		bbb = -3.0 / (d3 * distsq)
	case reld3 < 0.001:
		r3 = corefac
		bbb = -1.5 * dist * corefac * corefac
	default:
		e := math.Exp(-reld3)
		r3 = (1.0 - e) / d3
		bbb = 3.0 * (corefac*e - r3) / distsq
	}
	return r3, bbb
}

// Core evaluates the selected regularized 1/r^3 factor for a
// source/target radius pair.
func Core(cf CoreFunc, distsq, sr, tr float64) float64 {
	if cf == CompactExp {
		return coreExp(distsq, sr, tr)
	}
	return coreRM(distsq, sr, tr)
}

// CoreGrad evaluates the selected core with its radial derivative
// factor.
func CoreGrad(cf CoreFunc, distsq, sr, tr float64) (r3, bbb float64) {
	if cf == CompactExp {
		return coreExpGrad(distsq, sr, tr)
	}
	return coreRMGrad(distsq, sr, tr)
}
