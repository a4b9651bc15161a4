package proposal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func constNorm(v float64) func() float64 {
	return func() float64 { return v }
}

func TestProposeUsesIdentityCholeskyBeforeAnyUpdate(t *testing.T) {
	p := New(2, Bounds{})
	p.normFloat64 = constNorm(0.5)

	out := p.Propose(1, []float64{1, 2}, 2)
	require.Equal(t, []float64{2, 3}, out)
}

func TestProposeAppliesReflectiveBoundsPerCoordinate(t *testing.T) {
	p := New(2, Bounds{Min: []float64{0, 0}, Max: []float64{1, 1}})
	p.normFloat64 = constNorm(1)

	out := p.Propose(1, []float64{0.9, 0.9}, 1)
	require.InDelta(t, 0.1, out[0], 1e-9)
	require.InDelta(t, 0.1, out[1], 1e-9)
}

func TestUpdateRefreshesCachedCholeskyFactor(t *testing.T) {
	p := New(2, Bounds{})
	for _, v := range [][2]float64{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		p.Update(1, []float64{v[0], v[1]})
	}

	l, ok := p.chol[1]
	require.True(t, ok)
	require.InDelta(t, math.Sqrt(2.0/3.0), l.At(0, 0), 1e-9)
}

func TestReflectWithinBoundsIsUnchanged(t *testing.T) {
	require.InDelta(t, 5.0, reflect(5, 0, 10), 1e-12)
}

func TestReflectBouncesOffUpperBound(t *testing.T) {
	require.InDelta(t, 8.0, reflect(12, 0, 10), 1e-9)
}

func TestReflectBouncesOffLowerBound(t *testing.T) {
	require.InDelta(t, 3.0, reflect(-3, 0, 10), 1e-9)
}

func TestReflectHandlesMultiplePeriods(t *testing.T) {
	require.InDelta(t, 5.0, reflect(25, 0, 10), 1e-9)
}

func TestReflectIsNoopWhenBoundsDegenerate(t *testing.T) {
	require.Equal(t, 42.0, reflect(42, 5, 5))
}

func TestBoundsConfigured(t *testing.T) {
	require.False(t, Bounds{}.configured())
	require.True(t, Bounds{Min: []float64{0}, Max: []float64{1}}.configured())
}
