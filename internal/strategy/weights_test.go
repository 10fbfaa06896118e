package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkwon/alpharank/internal/contracts"
)

func TestNormalizeL1(t *testing.T) {
	out, err := NormalizeL1([]float64{2, -1, 1})
	require.NoError(t, err)

	sum := 0.0
	for _, w := range out {
		sum += math.Abs(w)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.5, out[0], 1e-9)
	assert.InDelta(t, -0.25, out[1], 1e-9)
}

func TestNormalizeL1AllZero(t *testing.T) {
	_, err := NormalizeL1([]float64{0, 0, 0})
	require.Error(t, err)
}

func TestNormalizeFactorWeights(t *testing.T) {
	factors := []contracts.FactorWeight{
		{FactorID: "f1", Weight: 3, Enabled: true},
		{FactorID: "f2", Weight: 1, Enabled: true},
		{FactorID: "f3", Weight: 5, Enabled: false},
	}

	out, err := NormalizeFactorWeights(factors)
	require.NoError(t, err)

	assert.InDelta(t, 0.75, out[0].Weight, 1e-9)
	assert.InDelta(t, 0.25, out[1].Weight, 1e-9)
	assert.Zero(t, out[2].Weight, "disabled factor must not carry weight")
}

func TestNormalizeFactorWeightsNoneEnabled(t *testing.T) {
	_, err := NormalizeFactorWeights([]contracts.FactorWeight{
		{FactorID: "f1", Weight: 1, Enabled: false},
	})
	require.Error(t, err)
}

func TestRenormalizeSurvivors(t *testing.T) {
	weights := map[string]float64{"f1": 0.5, "f2": 0.3, "f3": 0.2}

	out, err := RenormalizeSurvivors(weights, []string{"f2", "f3"})
	require.NoError(t, err)

	assert.InDelta(t, 0.6, out["f2"], 1e-9)
	assert.InDelta(t, 0.4, out["f3"], 1e-9)
}

func TestRenormalizeSingleSurvivor(t *testing.T) {
	out, err := RenormalizeSurvivors(map[string]float64{"f1": 0.5, "f2": 0.5}, []string{"f1"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out["f1"], 1e-9)
}

func TestRenormalizeUnknownSurvivor(t *testing.T) {
	_, err := RenormalizeSurvivors(map[string]float64{"f1": 0.5}, []string{"nope"})
	require.Error(t, err)
}
