package adapt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCovarianceIsIdentityBeforeTwoObservations(t *testing.T) {
	ce := NewCovarianceEstimator(2)
	cov := ce.Covariance(7)
	require.Equal(t, 1.0, cov.At(0, 0))
	require.Equal(t, 1.0, cov.At(1, 1))
	require.Equal(t, 0.0, cov.At(0, 1))

	ce.Update(7, []float64{5, 5})
	cov = ce.Covariance(7)
	require.Equal(t, 1.0, cov.At(0, 0), "a single observation is still below the 2-sample floor")
}

func TestCovarianceMatchesWelfordTwoPointSample(t *testing.T) {
	ce := NewCovarianceEstimator(2)
	ce.Update(1, []float64{0, 0})
	ce.Update(1, []float64{2, 2})

	cov := ce.Covariance(1)
	require.InDelta(t, 2.0, cov.At(0, 0), 1e-9)
	require.InDelta(t, 2.0, cov.At(0, 1), 1e-9)
	require.InDelta(t, 2.0, cov.At(1, 0), 1e-9)
	require.InDelta(t, 2.0, cov.At(1, 1), 1e-9)
}

func TestCholeskyFallsBackToIdentityForSingularCovariance(t *testing.T) {
	ce := NewCovarianceEstimator(2)
	ce.Update(1, []float64{0, 0})
	ce.Update(1, []float64{2, 2})

	l := ce.Cholesky(1)
	require.Equal(t, 1.0, l.At(0, 0))
	require.Equal(t, 1.0, l.At(1, 1))
	require.Equal(t, 0.0, l.At(0, 1))
}

func TestCholeskyFactorsDiagonalCovariance(t *testing.T) {
	ce := NewCovarianceEstimator(2)
	for _, p := range [][2]float64{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		ce.Update(1, []float64{p[0], p[1]})
	}

	l := ce.Cholesky(1)
	want := math.Sqrt(2.0 / 3.0)
	require.InDelta(t, want, l.At(0, 0), 1e-9)
	require.InDelta(t, want, l.At(1, 1), 1e-9)
	require.InDelta(t, 0.0, l.At(0, 1), 1e-9)
}

func TestCovarianceIndependentPerChain(t *testing.T) {
	ce := NewCovarianceEstimator(1)
	ce.Update(1, []float64{1})
	ce.Update(1, []float64{3})
	ce.Update(2, []float64{0})

	require.InDelta(t, 2.0, ce.Covariance(1).At(0, 0), 1e-9)
	require.Equal(t, 1.0, ce.Covariance(2).At(0, 0), "chain 2 still has only one observation")
}
