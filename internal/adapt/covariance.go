package adapt

import "gonum.org/v1/gonum/mat"

// CovarianceEstimator maintains a per-chain running mean and second
// moment, producing a sample-covariance matrix used to shape the Gaussian
// proposal (spec.md section 3/4.10).
type CovarianceEstimator struct {
	dim    int
	count  map[int]float64
	mean   map[int][]float64
	m2     map[int]*mat.Dense // running sum of outer products of deviations
}

// NewCovarianceEstimator constructs an estimator for vectors of the given
// dimensionality.
func NewCovarianceEstimator(dim int) *CovarianceEstimator {
	return &CovarianceEstimator{
		dim:   dim,
		count: make(map[int]float64),
		mean:  make(map[int][]float64),
		m2:    make(map[int]*mat.Dense),
	}
}

// Update folds one step vector into chainID's running covariance estimate
// using Welford's algorithm generalized to the multivariate case.
func (c *CovarianceEstimator) Update(chainID int, step []float64) {
	n := c.count[chainID] + 1
	c.count[chainID] = n

	mean, ok := c.mean[chainID]
	if !ok {
		mean = make([]float64, c.dim)
		c.mean[chainID] = mean
	}
	m2, ok := c.m2[chainID]
	if !ok {
		m2 = mat.NewDense(c.dim, c.dim, nil)
		c.m2[chainID] = m2
	}

	delta := make([]float64, c.dim)
	for i := 0; i < c.dim; i++ {
		delta[i] = step[i] - mean[i]
		mean[i] += delta[i] / n
	}
	for i := 0; i < c.dim; i++ {
		for j := 0; j < c.dim; j++ {
			deltaN := step[j] - mean[j]
			m2.Set(i, j, m2.At(i, j)+delta[i]*deltaN)
		}
	}
}

// Covariance returns the current sample-covariance matrix for chainID.
// Before at least two observations, it returns the identity matrix, per
// spec.md section 4.10's "identity initially".
func (c *CovarianceEstimator) Covariance(chainID int) *mat.Dense {
	n := c.count[chainID]
	if n < 2 {
		return identity(c.dim)
	}
	m2 := c.m2[chainID]
	cov := mat.NewDense(c.dim, c.dim, nil)
	cov.Scale(1/(n-1), m2)
	return cov
}

func identity(dim int) *mat.Dense {
	m := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Cholesky returns the lower-triangular Cholesky factor L of chainID's
// current covariance, such that L . L^T == Covariance(chainID). Falls
// back to the identity's (trivial) factor if the covariance is not
// positive definite, which can happen early in adaptation.
func (c *CovarianceEstimator) Cholesky(chainID int) *mat.TriDense {
	cov := c.Covariance(chainID)
	sym := mat.NewSymDense(c.dim, nil)
	for i := 0; i < c.dim; i++ {
		for j := i; j < c.dim; j++ {
			sym.SetSym(i, j, cov.At(i, j))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return identityTri(c.dim)
	}
	var l mat.TriDense
	chol.LTo(&l)
	return &l
}

func identityTri(dim int) *mat.TriDense {
	l := mat.NewTriDense(dim, mat.Lower, nil)
	for i := 0; i < dim; i++ {
		l.SetTri(i, i, 1)
	}
	return l
}
