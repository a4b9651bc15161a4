// Package adapt implements the online regression-based sigma/beta
// adapters and the covariance estimator described in spec.md section 4.8.
//
// The 3x3 normal-equations solve is done with gonum.org/v1/gonum/mat,
// named rather than pack-grounded per SPEC_FULL.md section 2.1: no example
// repo's go.mod carries a linear-algebra package, and a hand-rolled 3x3
// solver would be a second undocumented stdlib-only concern alongside
// internal/applog's logger.
//
// Author: momentics <momentics@gmail.com>
package adapt

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultPrior is the initial pseudo-count c_t for numerical stability in
// the running-mean update, per spec.md section 4.8.
const DefaultPrior = 50.0

// clipPredict bounds the inverted prediction per spec.md section 4.8.
const clipPredict = 10.0

// regression holds one temperature rung's running-mean least-squares
// model: y ~ w . (x1, x2, 1).
type regression struct {
	sxx   *mat.Dense // 3x3 running mean of x*x^T
	sxy   [3]float64 // running mean of y*x
	count float64
}

func newRegression(prior float64) *regression {
	return &regression{sxx: mat.NewDense(3, 3, nil), count: prior}
}

// update folds one observation (x1, x2, y) into the running means with
// step size alpha = 1/count.
func (r *regression) update(x1, x2, y float64) {
	r.count++
	alpha := 1.0 / r.count
	x := [3]float64{x1, x2, 1}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			outer := x[i] * x[j]
			r.sxx.Set(i, j, r.sxx.At(i, j)+alpha*(outer-r.sxx.At(i, j)))
		}
		r.sxy[i] += alpha * (y*x[i] - r.sxy[i])
	}
}

// weights solves E[xx^T] w = E[xy] for the current least-squares weights.
// If the system is singular (e.g. too few observations), it returns the
// zero vector rather than failing, in which case predictX1 returns 0.
func (r *regression) weights() [3]float64 {
	var inv mat.Dense
	if err := inv.Inverse(r.sxx); err != nil {
		return [3]float64{}
	}
	var w mat.VecDense
	w.MulVec(&inv, mat.NewVecDense(3, r.sxy[:]))
	return [3]float64{w.AtVec(0), w.AtVec(1), w.AtVec(2)}
}

// predictX1 inverts y = w0*x1 + w1*x2 + w2 for x1 given x2 and a target y,
// clipped to [-clipPredict, clipPredict].
func (r *regression) predictX1(x2, targetY float64) float64 {
	w := r.weights()
	if math.Abs(w[0]) < 1e-12 {
		return 0
	}
	x1 := (targetY - w[1]*x2 - w[2]) / w[0]
	return clip(x1, -clipPredict, clipPredict)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
