// Package proposal implements the Gaussian proposal with bounded
// reflection and covariance shaping described in spec.md section 4.10.
//
// Grounded on internal/adapt.CovarianceEstimator for the running
// covariance and its gonum-backed Cholesky factor; the reflective-bounds
// algorithm follows spec.md section 9's design note ("reflect(x, min, max)
// that repeatedly mirrors x about the nearest bound until x is in-range").
//
// Author: momentics <momentics@gmail.com>
package proposal

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/momentics/stateline/internal/adapt"
)

// Bounds gives optional per-dimension reflective bounds. They are applied
// only when both Min and Max are non-empty; if either is nil or
// zero-length, proposals are unbounded in every dimension.
type Bounds struct {
	Min []float64
	Max []float64
}

func (b Bounds) configured() bool { return len(b.Min) > 0 && len(b.Max) > 0 }

// Proposer draws Gaussian steps shaped by a per-chain running covariance,
// per spec.md section 4.10.
type Proposer struct {
	dim    int
	bounds Bounds
	cov    *adapt.CovarianceEstimator
	chol   map[int]*mat.TriDense

	// normFloat64 draws one N(0,1) sample; overridden in tests for
	// deterministic proposals.
	normFloat64 func() float64
}

// New constructs a Proposer for vectors of the given dimensionality.
func New(dim int, bounds Bounds) *Proposer {
	return &Proposer{
		dim:         dim,
		bounds:      bounds,
		cov:         adapt.NewCovarianceEstimator(dim),
		chol:        make(map[int]*mat.TriDense),
		normFloat64: rand.NormFloat64,
	}
}

// Propose draws sample + L_id.z.sigma with z ~ N(0, I), then applies
// reflective bounce per-coordinate if bounds are configured.
func (p *Proposer) Propose(chainID int, sample []float64, sigma float64) []float64 {
	L := p.cholFor(chainID)
	z := mat.NewVecDense(p.dim, nil)
	for i := 0; i < p.dim; i++ {
		z.SetVec(i, p.normFloat64())
	}
	step := mat.NewVecDense(p.dim, nil)
	step.MulVec(L, z)

	out := make([]float64, p.dim)
	for i := 0; i < p.dim; i++ {
		out[i] = sample[i] + step.AtVec(i)*sigma
		if p.bounds.configured() {
			out[i] = reflect(out[i], p.bounds.Min[i], p.bounds.Max[i])
		}
	}
	return out
}

// Update feeds an accepted step into the chain's running covariance and
// refreshes its cached Cholesky factor, per spec.md section 4.10
// ("periodically (cheap path: every update) refresh L_id").
func (p *Proposer) Update(chainID int, stepVector []float64) {
	p.cov.Update(chainID, stepVector)
	p.chol[chainID] = p.cov.Cholesky(chainID)
}

func (p *Proposer) cholFor(chainID int) *mat.TriDense {
	if l, ok := p.chol[chainID]; ok {
		return l
	}
	l := p.cov.Cholesky(chainID)
	p.chol[chainID] = l
	return l
}

// reflect mirrors x about [min,max] as many times as needed to bring it
// in-range, per spec.md section 9: "n reflections when x overshoots by
// n.(max-min)+r". This is the closed-form triangle-wave solution, exact
// for any number of bounces without an explicit loop.
func reflect(x, min, max float64) float64 {
	if min >= max {
		return x
	}
	width := max - min
	period := 2 * width
	y := math.Mod(x-min, period)
	if y < 0 {
		y += period
	}
	if y > width {
		y = period - y
	}
	return y + min
}
