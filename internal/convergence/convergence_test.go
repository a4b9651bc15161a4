package convergence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRHatIsZeroWithFewerThanTwoStacks(t *testing.T) {
	d := New(1, 1)
	d.Update(0, []float64{1})
	d.Update(0, []float64{2})
	require.Equal(t, []float64{0}, d.RHat())
	require.True(t, d.Converged(0), "a single stack can never fail the diagnostic")
}

func TestRHatIsZeroWithFewerThanTwoSamplesPerStack(t *testing.T) {
	d := New(2, 1)
	d.Update(0, []float64{1})
	d.Update(1, []float64{2})
	require.Equal(t, []float64{0}, d.RHat())
}

func TestRHatMatchesHandComputedTwoStackExample(t *testing.T) {
	d := New(2, 1)
	for _, v := range []float64{1, 2, 3} {
		d.Update(0, []float64{v})
	}
	for _, v := range []float64{4, 5, 6} {
		d.Update(1, []float64{v})
	}

	got := d.RHat()
	require.Len(t, got, 1)
	require.InDelta(t, 2.2730, got[0], 1e-3)
	require.False(t, d.Converged(DefaultThreshold))
}

func TestRHatCollapsesToZeroWhenAllChainsAgreeExactly(t *testing.T) {
	d := New(2, 1)
	for i := 0; i < 3; i++ {
		d.Update(0, []float64{7})
		d.Update(1, []float64{7})
	}

	got := d.RHat()
	require.False(t, math.IsNaN(got[0]))
	require.InDelta(t, 0.0, got[0], 1e-6, "zero within- and between-chain variance degenerates to RHat 0, not NaN or Inf")
	require.True(t, d.Converged(DefaultThreshold))
}

func TestConvergedUsesDefaultThresholdWhenNonPositive(t *testing.T) {
	d := New(1, 1)
	require.True(t, d.Converged(-1))
	require.True(t, d.Converged(0))
}

func TestUpdateTracksIndependentStacksAndDimensions(t *testing.T) {
	d := New(2, 2)
	d.Update(0, []float64{1, 10})
	d.Update(1, []float64{2, 20})
	require.Equal(t, 1, d.stacks[0].count)
	require.Equal(t, []float64{1, 10}, d.stacks[0].mean)
	require.Equal(t, []float64{2, 20}, d.stacks[1].mean)
}
