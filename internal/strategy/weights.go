package strategy

import (
	"fmt"
	"math"

	"github.com/dkwon/alpharank/internal/contracts"
)

// NormalizeL1 scales a weight vector so that the absolute weights sum
// to 1. An all-zero vector is an explicit error, never NaN weights.
func NormalizeL1(weights []float64) ([]float64, error) {
	sum := 0.0
	for _, w := range weights {
		sum += math.Abs(w)
	}
	if sum == 0 {
		return nil, fmt.Errorf("weight vector is all zero")
	}

	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out, nil
}

// NormalizeFactorWeights L1-normalizes the enabled entries of a strategy
// in place of the raw weights. Disabled entries are excluded from the
// sum and returned untouched with weight 0.
func NormalizeFactorWeights(factors []contracts.FactorWeight) ([]contracts.FactorWeight, error) {
	enabled := make([]float64, 0, len(factors))
	for _, f := range factors {
		if f.Enabled {
			enabled = append(enabled, f.Weight)
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("strategy has no enabled factors")
	}

	normalized, err := NormalizeL1(enabled)
	if err != nil {
		return nil, err
	}

	out := make([]contracts.FactorWeight, len(factors))
	idx := 0
	for i, f := range factors {
		out[i] = f
		if f.Enabled {
			out[i].Weight = normalized[idx]
			idx++
		} else {
			out[i].Weight = 0
		}
	}
	return out, nil
}

// RenormalizeSurvivors re-normalizes weights over the factors that
// produced a value for one entity. Used when a factor fails for that
// entity only; the surviving weights keep their relative proportions.
func RenormalizeSurvivors(weights map[string]float64, survivors []string) (map[string]float64, error) {
	subset := make([]float64, len(survivors))
	for i, id := range survivors {
		w, ok := weights[id]
		if !ok {
			return nil, fmt.Errorf("factor %s has no weight", id)
		}
		subset[i] = w
	}

	normalized, err := NormalizeL1(subset)
	if err != nil {
		return nil, fmt.Errorf("surviving factors carry zero weight: %w", err)
	}

	out := make(map[string]float64, len(survivors))
	for i, id := range survivors {
		out[id] = normalized[i]
	}
	return out, nil
}
