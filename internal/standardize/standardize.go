package standardize

import (
	"fmt"
	"math"
	"sort"

	"github.com/dkwon/alpharank/internal/contracts"
)

// Value is one entity's raw factor value inside a cross-sectional group.
// NaN marks a missing value.
type Value struct {
	Code string
	Raw  float64
}

// Diagnostics describes what the pipeline did to one group. The moment
// statistics are computed after winsorize and fill, before scaling.
type Diagnostics struct {
	N           int     `json:"n"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Skew        float64 `json:"skew"`
	Kurtosis    float64 `json:"kurtosis"` // excess kurtosis
	ClippedLow  int     `json:"clipped_low"`
	ClippedHigh int     `json:"clipped_high"`
	Filled      int     `json:"filled"`
	Dropped     int     `json:"dropped"`
}

// Result maps entity codes to standardized values. Entities dropped by
// the fill policy are absent.
type Result struct {
	Values      map[string]float64
	Diagnostics Diagnostics
}

// Standardize runs the fixed pipeline over one cross-sectional group:
// sign alignment, winsorize, fill, scale. It is pure and reentrant.
//
// Degenerate groups never propagate NaN: zscore and robust_zscore output
// 0 when the spread is zero or the group has a single member; rank and
// minmax output the 0.5 midpoint for a single member or zero spread.
func Standardize(values []Value, direction contracts.Direction, policy contracts.NormalizationPolicy) (Result, error) {
	if policy.WinsorLower < 0 || policy.WinsorUpper > 1 || policy.WinsorLower >= policy.WinsorUpper {
		return Result{}, fmt.Errorf("winsorize bounds [%g, %g] are not a valid quantile range",
			policy.WinsorLower, policy.WinsorUpper)
	}

	diag := Diagnostics{}
	work := make([]Value, len(values))
	copy(work, values)

	// 1. Sign alignment: higher is always better downstream.
	if direction == contracts.LowerIsBetter {
		for i := range work {
			if !math.IsNaN(work[i].Raw) {
				work[i].Raw = -work[i].Raw
			}
		}
	}

	// 2. Winsorize over the present values.
	present := presentValues(work)
	if len(present) > 0 {
		lower := quantile(present, policy.WinsorLower)
		upper := quantile(present, policy.WinsorUpper)
		for i := range work {
			v := work[i].Raw
			if math.IsNaN(v) {
				continue
			}
			if v < lower {
				work[i].Raw = lower
				diag.ClippedLow++
			} else if v > upper {
				work[i].Raw = upper
				diag.ClippedHigh++
			}
		}
	}

	// 3. Fill missing values.
	switch policy.Fill {
	case contracts.FillMedian, "":
		med := median(presentValues(work))
		for i := range work {
			if math.IsNaN(work[i].Raw) {
				work[i].Raw = med
				diag.Filled++
			}
		}
	case contracts.FillZero:
		for i := range work {
			if math.IsNaN(work[i].Raw) {
				work[i].Raw = 0
				diag.Filled++
			}
		}
	case contracts.FillDrop:
		kept := work[:0]
		for _, v := range work {
			if math.IsNaN(v.Raw) {
				diag.Dropped++
				continue
			}
			kept = append(kept, v)
		}
		work = kept
	default:
		return Result{}, fmt.Errorf("unknown fill policy %q", policy.Fill)
	}

	// A group can still be empty: all values missing under drop, or the
	// input group was empty.
	raw := make([]float64, len(work))
	allMissing := true
	for i, v := range work {
		raw[i] = v.Raw
		if !math.IsNaN(v.Raw) {
			allMissing = false
		}
	}
	if len(work) == 0 || allMissing {
		return Result{Values: map[string]float64{}, Diagnostics: diag}, nil
	}

	diag.N = len(work)
	diag.Mean, diag.Std, diag.Skew, diag.Kurtosis = moments(raw)

	// 4. Scale: the method set is closed, dispatched in one switch.
	var scaled []float64
	switch policy.Method {
	case contracts.ScaleZScore, "":
		scaled = scaleZScore(raw, diag.Mean, diag.Std)
	case contracts.ScaleRobustZScore:
		scaled = scaleRobustZScore(raw)
	case contracts.ScaleRank:
		scaled = scaleRank(raw)
	case contracts.ScaleMinMax:
		scaled = scaleMinMax(raw)
	default:
		return Result{}, fmt.Errorf("unknown scale method %q", policy.Method)
	}

	out := make(map[string]float64, len(work))
	for i, v := range work {
		out[v.Code] = scaled[i]
	}
	return Result{Values: out, Diagnostics: diag}, nil
}

func presentValues(values []Value) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v.Raw) {
			out = append(out, v.Raw)
		}
	}
	return out
}

// quantile uses linear interpolation between order statistics, the
// (n-1)*q convention.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := float64(len(sorted)-1) * q
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// moments returns mean, population std, skewness and excess kurtosis.
// Skew and kurtosis are 0 for degenerate groups.
func moments(values []float64) (mean, std, skew, kurt float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n

	var m2, m3, m4 float64
	for _, v := range values {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n

	std = math.Sqrt(m2)
	if std > 0 {
		skew = m3 / (std * std * std)
		kurt = m4/(m2*m2) - 3
	}
	return mean, std, skew, kurt
}

func scaleZScore(values []float64, mean, std float64) []float64 {
	out := make([]float64, len(values))
	if std == 0 || len(values) == 1 {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

func scaleRobustZScore(values []float64) []float64 {
	out := make([]float64, len(values))
	med := median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)
	if mad == 0 || len(values) == 1 {
		return out
	}
	for i, v := range values {
		out[i] = (v - med) / mad
	}
	return out
}

// scaleRank maps to [0,1] average percentiles, (rank-0.5)/n with ties
// averaged. A single member gets the 0.5 midpoint.
func scaleRank(values []float64) []float64 {
	type indexed struct {
		value float64
		pos   int
	}
	members := make([]indexed, len(values))
	for i, v := range values {
		members[i] = indexed{value: v, pos: i}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].value < members[j].value })

	out := make([]float64, len(values))
	n := len(members)
	for start := 0; start < n; {
		end := start
		for end+1 < n && members[end+1].value == members[start].value {
			end++
		}
		avg := float64(start+end+2) / 2
		pct := (avg - 0.5) / float64(n)
		for k := start; k <= end; k++ {
			out[members[k].pos] = pct
		}
		start = end + 1
	}
	return out
}

// scaleMinMax maps to [0,1]; zero spread or a single member yields the
// 0.5 midpoint.
func scaleMinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}
