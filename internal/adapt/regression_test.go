package adapt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// feedExactLinearFit drives r with the four corner points of the unit
// square, whose (x1, x2, 1) moment matrix is invertible, so a single pass
// recovers the generating weights exactly: the running-mean update m_n =
// m_{n-1} + (x_n - m_{n-1})/n satisfies m_N = (n0*m_0 + sum x_n)/(n0+N) for
// any n0, and since m_0 = 0 here, the same scale factor N/(n0+N) divides
// out of both sxx and sxy when solving for weights.
func feedExactLinearFit(r *regression, w0, w1, w2 float64) {
	type pt struct{ x1, x2 float64 }
	pts := []pt{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for _, p := range pts {
		y := w0*p.x1 + w1*p.x2 + w2
		r.update(p.x1, p.x2, y)
	}
}

func TestRegressionRecoversExactLinearWeights(t *testing.T) {
	r := newRegression(DefaultPrior)
	feedExactLinearFit(r, 2, 3, 1)

	// predictX1 inverts targetY = w0*x1 + w1*x2 + w2 for x1; using the
	// (1,1) corner (y=6) should recover x1=1 given x2=1.
	got := r.predictX1(1, 6)
	require.InDelta(t, 1.0, got, 1e-6)
}

func TestPredictX1ClipsToBounds(t *testing.T) {
	r := newRegression(DefaultPrior)
	feedExactLinearFit(r, 100, 3, 1)

	got := r.predictX1(0, 1050)
	require.Equal(t, clipPredict, got, "unclipped result would be 10.49, above the +10 bound")
}

func TestPredictX1ReturnsZeroBeforeAnyObservations(t *testing.T) {
	r := newRegression(DefaultPrior)
	require.Zero(t, r.predictX1(1, 5), "singular moment matrix yields a zero weight vector")
}

func TestClipHelper(t *testing.T) {
	require.Equal(t, -5.0, clip(-20, -5, 5))
	require.Equal(t, 5.0, clip(20, -5, 5))
	require.Equal(t, 0.0, clip(0, -5, 5))
}
