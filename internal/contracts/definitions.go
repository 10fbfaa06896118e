package contracts

import "time"

// Direction tells the standardizer which way a factor's raw values point.
type Direction string

const (
	HigherIsBetter Direction = "higher_is_better"
	LowerIsBetter  Direction = "lower_is_better"
	Ambivalent     Direction = "ambivalent"
)

// FactorDefinition is a stored, already-validated factor. Definitions are
// created by the management layer only after the validator returned ok.
// This engine reads them, never writes them.
type FactorDefinition struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Code       string        `json:"code"`        // factor source text
	FieldsUsed []string      `json:"fields_used"` // statically extracted at validation time
	Direction  Direction     `json:"direction"`
	Selection  SelectionSpec `json:"selection"`
	CreatedAt  time.Time     `json:"created_at"`
}

// FactorWeight is one strategy entry.
type FactorWeight struct {
	FactorID string  `json:"factor_id"`
	Weight   float64 `json:"weight"` // L1-normalized once persisted
	Enabled  bool    `json:"enabled"`
}

// ScaleMethod is the closed set of cross-sectional scaling transforms.
type ScaleMethod string

const (
	ScaleZScore       ScaleMethod = "zscore"
	ScaleRobustZScore ScaleMethod = "robust_zscore"
	ScaleRank         ScaleMethod = "rank"
	ScaleMinMax       ScaleMethod = "minmax"
)

// FillPolicy is the closed set of missing-value policies.
type FillPolicy string

const (
	FillMedian FillPolicy = "median" // default: group median
	FillZero   FillPolicy = "zero"
	FillDrop   FillPolicy = "drop" // drop the entity from the group
)

// NormalizationPolicy configures the standardizer for one strategy.
type NormalizationPolicy struct {
	Method      ScaleMethod `json:"method"`
	WinsorLower float64     `json:"winsor_lower"` // quantile, default 0.01
	WinsorUpper float64     `json:"winsor_upper"` // quantile, default 0.99
	Fill        FillPolicy  `json:"fill"`
}

// DefaultNormalization returns the policy applied when a strategy does
// not override it.
func DefaultNormalization() NormalizationPolicy {
	return NormalizationPolicy{
		Method:      ScaleZScore,
		WinsorLower: 0.01,
		WinsorUpper: 0.99,
		Fill:        FillMedian,
	}
}

// UniverseFilter selects the entities eligible for a run. Exactly one
// criterion applies: explicit codes take precedence over category, and
// category over "all entities".
type UniverseFilter struct {
	Codes    []string `json:"codes,omitempty"`
	Category string   `json:"category,omitempty"`
}

// StrategyDefinition is a stored strategy. Weights are L1-normalized at
// persistence time; loaders must re-normalize defensively before use.
type StrategyDefinition struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Factors       []FactorWeight      `json:"factors"`
	Normalization NormalizationPolicy `json:"normalization"`
	Universe      UniverseFilter      `json:"universe"`
	TopN          int                 `json:"top_n"`
	CreatedAt     time.Time           `json:"created_at"`
}

// EnabledFactors returns the enabled entries in declaration order.
func (s *StrategyDefinition) EnabledFactors() []FactorWeight {
	out := make([]FactorWeight, 0, len(s.Factors))
	for _, f := range s.Factors {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}
