package standardize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkwon/alpharank/internal/contracts"
)

func group(raws ...float64) []Value {
	out := make([]Value, len(raws))
	for i, r := range raws {
		out[i] = Value{Code: string(rune('a' + i)), Raw: r}
	}
	return out
}

func policy(method contracts.ScaleMethod, fill contracts.FillPolicy) contracts.NormalizationPolicy {
	p := contracts.DefaultNormalization()
	p.Method = method
	if fill != "" {
		p.Fill = fill
	}
	return p
}

func TestZScoreBasics(t *testing.T) {
	res, err := Standardize(group(1, 2, 3), contracts.HigherIsBetter, policy(contracts.ScaleZScore, ""))
	require.NoError(t, err)

	// Mean 2, population std sqrt(2/3).
	std := math.Sqrt(2.0 / 3.0)
	assert.InDelta(t, -1/std, res.Values["a"], 1e-9)
	assert.InDelta(t, 0, res.Values["b"], 1e-9)
	assert.InDelta(t, 1/std, res.Values["c"], 1e-9)
	assert.Equal(t, 3, res.Diagnostics.N)
}

func TestZScoreIdempotence(t *testing.T) {
	// Disable clipping so the property is about the scaling transform.
	p := policy(contracts.ScaleZScore, "")
	p.WinsorLower = 0
	p.WinsorUpper = 1

	first, err := Standardize(group(3, 9, 4, 7, 5, 6, 8), contracts.HigherIsBetter, p)
	require.NoError(t, err)

	input := make([]Value, 0, len(first.Values))
	for code, v := range first.Values {
		input = append(input, Value{Code: code, Raw: v})
	}

	second, err := Standardize(input, contracts.HigherIsBetter, p)
	require.NoError(t, err)

	for code, v := range first.Values {
		assert.InDelta(t, v, second.Values[code], 1e-9, "code %s", code)
	}
}

func TestSignAlignment(t *testing.T) {
	// Lower-is-better: the smallest raw value must standardize highest.
	res, err := Standardize(group(8, 11.5, 30), contracts.LowerIsBetter, policy(contracts.ScaleZScore, ""))
	require.NoError(t, err)

	assert.Greater(t, res.Values["a"], res.Values["b"])
	assert.Greater(t, res.Values["b"], res.Values["c"])
}

func TestWinsorizeClipsOutliers(t *testing.T) {
	values := make([]Value, 0, 101)
	for i := 0; i <= 99; i++ {
		values = append(values, Value{Code: code(i), Raw: float64(i)})
	}
	values = append(values, Value{Code: "outlier", Raw: 1e9})

	p := policy(contracts.ScaleMinMax, "")
	res, err := Standardize(values, contracts.HigherIsBetter, p)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Diagnostics.ClippedHigh, 1)
	assert.GreaterOrEqual(t, res.Diagnostics.ClippedLow, 1)

	// After clipping, the outlier no longer dominates the range: the
	// second-highest value stays close to the top of [0,1].
	assert.Greater(t, res.Values[code(99)], 0.9)
}

func TestQuantileLinearInterpolation(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.0, quantile(values, 0), 1e-9)
	assert.InDelta(t, 4.0, quantile(values, 1), 1e-9)
	assert.InDelta(t, 2.5, quantile(values, 0.5), 1e-9)
	assert.InDelta(t, 1.75, quantile(values, 0.25), 1e-9)
}

func TestFillMedianNeverZero(t *testing.T) {
	values := group(10, 12, math.NaN(), 14)
	res, err := Standardize(values, contracts.HigherIsBetter, policy(contracts.ScaleMinMax, contracts.FillMedian))
	require.NoError(t, err)

	require.Equal(t, 1, res.Diagnostics.Filled)
	// Median of {10,12,14} is 12: the filled entity lands mid-range,
	// never at the zero end.
	assert.InDelta(t, 0.5, res.Values["c"], 1e-9)
}

func TestFillZero(t *testing.T) {
	values := group(-1, 1, math.NaN())
	res, err := Standardize(values, contracts.HigherIsBetter, policy(contracts.ScaleMinMax, contracts.FillZero))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Values["c"], 1e-9)
	assert.Equal(t, 1, res.Diagnostics.Filled)
}

func TestFillDrop(t *testing.T) {
	values := group(1, math.NaN(), 3)
	res, err := Standardize(values, contracts.HigherIsBetter, policy(contracts.ScaleZScore, contracts.FillDrop))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Diagnostics.Dropped)
	_, exists := res.Values["b"]
	assert.False(t, exists)
	assert.Len(t, res.Values, 2)
}

func TestDegenerateGroups(t *testing.T) {
	t.Run("zero spread zscore", func(t *testing.T) {
		res, err := Standardize(group(5, 5, 5), contracts.HigherIsBetter, policy(contracts.ScaleZScore, ""))
		require.NoError(t, err)
		for code, v := range res.Values {
			assert.Zero(t, v, "code %s", code)
		}
	})

	t.Run("single member zscore", func(t *testing.T) {
		res, err := Standardize(group(7), contracts.HigherIsBetter, policy(contracts.ScaleZScore, ""))
		require.NoError(t, err)
		assert.Zero(t, res.Values["a"])
	})

	t.Run("single member rank midpoint", func(t *testing.T) {
		res, err := Standardize(group(7), contracts.HigherIsBetter, policy(contracts.ScaleRank, ""))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, res.Values["a"], 1e-9)
	})

	t.Run("single member minmax midpoint", func(t *testing.T) {
		res, err := Standardize(group(7), contracts.HigherIsBetter, policy(contracts.ScaleMinMax, ""))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, res.Values["a"], 1e-9)
	})

	t.Run("zero MAD robust", func(t *testing.T) {
		res, err := Standardize(group(5, 5, 5, 100), contracts.HigherIsBetter,
			policy(contracts.ScaleRobustZScore, ""))
		require.NoError(t, err)
		for _, v := range res.Values {
			assert.False(t, math.IsNaN(v))
		}
	})

	t.Run("empty group", func(t *testing.T) {
		res, err := Standardize(nil, contracts.HigherIsBetter, policy(contracts.ScaleZScore, ""))
		require.NoError(t, err)
		assert.Empty(t, res.Values)
	})

	t.Run("all missing under drop", func(t *testing.T) {
		res, err := Standardize(group(math.NaN(), math.NaN()), contracts.HigherIsBetter,
			policy(contracts.ScaleZScore, contracts.FillDrop))
		require.NoError(t, err)
		assert.Empty(t, res.Values)
		assert.Equal(t, 2, res.Diagnostics.Dropped)
	})
}

func TestRankScaling(t *testing.T) {
	res, err := Standardize(group(30, 10, 20), contracts.HigherIsBetter, policy(contracts.ScaleRank, ""))
	require.NoError(t, err)

	assert.InDelta(t, 5.0/6.0, res.Values["a"], 1e-9)
	assert.InDelta(t, 1.0/6.0, res.Values["b"], 1e-9)
	assert.InDelta(t, 0.5, res.Values["c"], 1e-9)
}

func TestRobustZScore(t *testing.T) {
	res, err := Standardize(group(1, 2, 3, 4, 100), contracts.HigherIsBetter,
		policy(contracts.ScaleRobustZScore, ""))
	require.NoError(t, err)

	// Median 3, MAD 1 over the winsorized values; the middle entity
	// sits at zero.
	assert.InDelta(t, 0, res.Values["c"], 1e-9)
	assert.Less(t, res.Values["a"], res.Values["b"])
}

func TestInvalidPolicies(t *testing.T) {
	p := contracts.DefaultNormalization()
	p.WinsorLower = 0.9
	p.WinsorUpper = 0.1
	_, err := Standardize(group(1, 2), contracts.HigherIsBetter, p)
	require.Error(t, err)

	p = contracts.DefaultNormalization()
	p.Method = "sigmoid"
	_, err = Standardize(group(1, 2), contracts.HigherIsBetter, p)
	require.Error(t, err)

	p = contracts.DefaultNormalization()
	p.Fill = "interpolate"
	_, err = Standardize(group(1, 2), contracts.HigherIsBetter, p)
	require.Error(t, err)
}

func TestDiagnosticsMoments(t *testing.T) {
	p := policy(contracts.ScaleZScore, "")
	p.WinsorLower = 0
	p.WinsorUpper = 1

	res, err := Standardize(group(2, 4, 4, 4, 5, 5, 7, 9), contracts.HigherIsBetter, p)
	require.NoError(t, err)

	assert.InDelta(t, 5.0, res.Diagnostics.Mean, 1e-9)
	assert.InDelta(t, 2.0, res.Diagnostics.Std, 1e-9)
	assert.False(t, math.IsNaN(res.Diagnostics.Skew))
	assert.False(t, math.IsNaN(res.Diagnostics.Kurtosis))
}

func code(i int) string {
	return string(rune('A'+i/26)) + string(rune('a'+i%26))
}
