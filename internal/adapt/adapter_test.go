package adapt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaultsForPriorAndWindow(t *testing.T) {
	a := New(Config{NTemps: 2, TargetRate: 0.5})
	require.Len(t, a.models, 2)
	require.Equal(t, DefaultPrior, a.cfg.Prior)
	require.Equal(t, DefaultWindow, a.cfg.Window)
}

func TestUpdateTracksExponentialMovingAverageRate(t *testing.T) {
	a := New(Config{NTemps: 1, TargetRate: 0.5, Window: 4})
	a.Update(1, 0, 0, 0, true)
	require.Equal(t, 1.0, a.Rate(1), "first observation seeds the rate directly")

	a.Update(1, 0, 0, 0, false)
	require.InDelta(t, 0.6, a.Rate(1), 1e-9)
}

func TestComputeSigmaIsExpOfPredictAndIsCached(t *testing.T) {
	a := New(Config{NTemps: 1, TargetRate: 0.5})
	v := a.ComputeSigma(3, 0, 0)
	require.Equal(t, 1.0, v, "a fresh regression predicts 0, so sigma starts at exp(0)=1")
	require.Equal(t, 1.0, a.Value(3))
}

func TestComputeBetaStackDoublesTemperatureWithNoAdaptationHistory(t *testing.T) {
	// With no Update calls yet, every rung's regression has a zero weight
	// vector, so Predict always returns 0 and the ladder recursion
	// temp_{i+1} = (1+exp(0))*temp_i = 2*temp_i is exact and deterministic.
	a := New(Config{NTemps: 3, TargetRate: 0.5})
	betas := a.ComputeBetaStack(10, 1.0, LogBetaFactor)

	require.Len(t, betas, 3)
	require.InDelta(t, 1.0, betas[0], 1e-12)
	require.InDelta(t, 0.5, betas[1], 1e-12)
	require.InDelta(t, 0.25, betas[2], 1e-12)

	require.Equal(t, betas[0], a.Value(10))
	require.Equal(t, betas[1], a.Value(11))
	require.Equal(t, betas[2], a.Value(12))
}

func TestComputeBetaStackIsMonotonicallyDecreasing(t *testing.T) {
	a := New(Config{NTemps: 4, TargetRate: 0.5})
	betas := a.ComputeBetaStack(0, 1.0, LogBetaFactor)
	for i := 1; i < len(betas); i++ {
		require.Less(t, betas[i], betas[i-1], "hotter rungs must have strictly smaller beta")
		require.False(t, math.IsNaN(betas[i]))
	}
}
