package systems

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// nnlsTol is the dual-feasibility tolerance of the active-set loop.
const nnlsTol = 1e-12

// NNLS solves min ||A*x - b|| subject to x >= 0 by the Lawson-Hanson
// active-set method, with the least-squares subproblems delegated to
// gonum's QR solver. Returns the solution and the final residual
// two-norm. A is m rows (moment constraints) by n columns (candidate
// neighbors).
func NNLS(a *mat.Dense, b []float64) (x []float64, resid float64) {
	m, n := a.Dims()
	x = make([]float64, n)
	passive := make([]bool, n)
	bv := mat.NewVecDense(m, b)

	// residual r = b - A*x, starts at b
	r := mat.NewVecDense(m, nil)
	r.CopyVec(bv)

	w := make([]float64, n)
	maxOuter := 3 * n
	for outer := 0; outer < maxOuter; outer++ {
		// dual w = A^T r over the active (zero) set
		best := -1
		bestW := nnlsTol
		for j := 0; j < n; j++ {
			if passive[j] {
				continue
			}
			col := a.ColView(j)
			w[j] = mat.Dot(col, r)
			if w[j] > bestW {
				bestW = w[j]
				best = j
			}
		}
		if best < 0 {
			break
		}
		passive[best] = true

		// inner loop: solve on the passive set, walk back along the
		// segment to keep feasibility
		for {
			z, ok := solvePassive(a, bv, passive)
			if !ok {
				// degenerate subproblem; drop the newest column
				passive[best] = false
				break
			}
			if allPositive(z, passive) {
				copyPassive(x, z, passive)
				break
			}
			// step toward z until the first variable hits zero
			alpha := math.Inf(1)
			for j := 0; j < n; j++ {
				if !passive[j] || z[j] > 0 {
					continue
				}
				if d := x[j] - z[j]; d > 0 {
					if t := x[j] / d; t < alpha {
						alpha = t
					}
				}
			}
			if math.IsInf(alpha, 1) {
				copyPassive(x, z, passive)
				break
			}
			for j := 0; j < n; j++ {
				if passive[j] {
					x[j] += alpha * (z[j] - x[j])
					if x[j] <= nnlsTol {
						x[j] = 0
						passive[j] = false
					}
				}
			}
		}

		// refresh the residual
		r.CopyVec(bv)
		for j := 0; j < n; j++ {
			if x[j] != 0 {
				r.AddScaledVec(r, -x[j], a.ColView(j))
			}
		}
	}

	return x, r.Norm(2)
}

// solvePassive solves the unconstrained least squares over the passive
// columns only.
func solvePassive(a *mat.Dense, b *mat.VecDense, passive []bool) ([]float64, bool) {
	m, n := a.Dims()
	var cols []int
	for j := 0; j < n; j++ {
		if passive[j] {
			cols = append(cols, j)
		}
	}
	if len(cols) == 0 {
		return make([]float64, n), true
	}
	sub := mat.NewDense(m, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < m; i++ {
			sub.Set(i, k, a.At(i, j))
		}
	}
	var sol mat.VecDense
	if err := sol.SolveVec(sub, b); err != nil {
		return nil, false
	}
	z := make([]float64, n)
	for k, j := range cols {
		z[j] = sol.AtVec(k)
	}
	return z, true
}

func allPositive(z []float64, passive []bool) bool {
	for j, p := range passive {
		if p && z[j] <= 0 {
			return false
		}
	}
	return true
}

func copyPassive(x, z []float64, passive []bool) {
	for j, p := range passive {
		if p {
			x[j] = z[j]
		} else {
			x[j] = 0
		}
	}
}
