package sandbox

import (
	"math"
	"sort"

	"github.com/dop251/goja"

	"github.com/dkwon/alpharank/internal/contracts"
)

// installLibs injects the two allow-listed host libraries. tbl works on
// the column mapping the factor receives, num on numeric vectors. Every
// num reducer is NaN-aware: missing values are skipped, they never
// poison the aggregate.
func installLibs(vm *goja.Runtime) {
	tbl := vm.NewObject()
	tbl.Set("column", func(call goja.FunctionCall) goja.Value {
		data := argData(vm, call, 0)
		name := argString(vm, call, 1)
		col, ok := data[name]
		if !ok {
			panic(vm.NewTypeError("data has no column " + name))
		}
		return vm.ToValue(asFloats(vm, col))
	})
	tbl.Set("len", func(call goja.FunctionCall) goja.Value {
		data := argData(vm, call, 0)
		return vm.ToValue(len(dataCodes(vm, data)))
	})
	tbl.Set("result", func(call goja.FunctionCall) goja.Value {
		data := argData(vm, call, 0)
		codes := dataCodes(vm, data)
		dates := dataDates(vm, data, len(codes))
		if len(call.Arguments) < 2 {
			panic(vm.NewTypeError("tbl.result needs (data, values)"))
		}

		var values []float64
		switch exported := call.Arguments[1].Export().(type) {
		case []float64:
			values = exported
		case []interface{}:
			values = make([]float64, len(exported))
			for i, raw := range exported {
				v, ok := toFloat(raw)
				if !ok {
					v = math.NaN()
				}
				values[i] = v
			}
		default:
			scalar, ok := toFloat(exported)
			if !ok {
				panic(vm.NewTypeError("tbl.result values must be numeric"))
			}
			values = make([]float64, len(codes))
			for i := range values {
				values[i] = scalar
			}
		}

		if len(values) != len(codes) {
			panic(vm.NewTypeError("tbl.result values length does not match data length"))
		}

		out := make([]interface{}, len(codes))
		for i := range codes {
			out[i] = map[string]interface{}{
				contracts.KeyCode: codes[i],
				contracts.KeyDate: dates[i],
				"factor":          values[i],
			}
		}
		return vm.ToValue(out)
	})
	vm.Set("tbl", tbl)

	num := vm.NewObject()
	num.Set("sum", vecFunc(vm, vecSum))
	num.Set("mean", vecFunc(vm, vecMean))
	num.Set("std", vecFunc(vm, vecStd))
	num.Set("median", vecFunc(vm, vecMedian))
	num.Set("min", vecFunc(vm, vecMin))
	num.Set("max", vecFunc(vm, vecMax))
	num.Set("abs", scalarFunc(vm, math.Abs))
	num.Set("log", scalarFunc(vm, math.Log))
	num.Set("sqrt", scalarFunc(vm, math.Sqrt))
	num.Set("pow", func(call goja.FunctionCall) goja.Value {
		x := argFloat(vm, call, 0)
		y := argFloat(vm, call, 1)
		return vm.ToValue(math.Pow(x, y))
	})
	num.Set("rank", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(fractionalRank(argFloats(vm, call, 0)))
	})
	vm.Set("num", num)
}

func argData(vm *goja.Runtime, call goja.FunctionCall, idx int) map[string]interface{} {
	if idx >= len(call.Arguments) {
		panic(vm.NewTypeError("missing data argument"))
	}
	data, ok := call.Arguments[idx].Export().(map[string]interface{})
	if !ok {
		panic(vm.NewTypeError("argument is not a data mapping"))
	}
	return data
}

func dataCodes(vm *goja.Runtime, data map[string]interface{}) []string {
	switch codes := data[contracts.KeyCode].(type) {
	case []string:
		return codes
	case []interface{}:
		out := make([]string, len(codes))
		for i, raw := range codes {
			out[i], _ = raw.(string)
		}
		return out
	default:
		panic(vm.NewTypeError("data has no code column"))
	}
}

func dataDates(vm *goja.Runtime, data map[string]interface{}, n int) []string {
	switch dates := data[contracts.KeyDate].(type) {
	case []string:
		return dates
	case []interface{}:
		out := make([]string, len(dates))
		for i, raw := range dates {
			out[i], _ = raw.(string)
		}
		return out
	default:
		return make([]string, n)
	}
}

func asFloats(vm *goja.Runtime, col interface{}) []float64 {
	switch vs := col.(type) {
	case []float64:
		return vs
	case []interface{}:
		out := make([]float64, len(vs))
		for i, raw := range vs {
			v, ok := toFloat(raw)
			if !ok {
				v = math.NaN()
			}
			out[i] = v
		}
		return out
	default:
		panic(vm.NewTypeError("column is not a numeric vector"))
	}
}

func argString(vm *goja.Runtime, call goja.FunctionCall, idx int) string {
	if idx >= len(call.Arguments) {
		panic(vm.NewTypeError("missing string argument"))
	}
	return call.Arguments[idx].String()
}

func argFloat(vm *goja.Runtime, call goja.FunctionCall, idx int) float64 {
	if idx >= len(call.Arguments) {
		panic(vm.NewTypeError("missing numeric argument"))
	}
	return call.Arguments[idx].ToFloat()
}

func argFloats(vm *goja.Runtime, call goja.FunctionCall, idx int) []float64 {
	if idx >= len(call.Arguments) {
		panic(vm.NewTypeError("missing vector argument"))
	}
	switch exported := call.Arguments[idx].Export().(type) {
	case []float64:
		return exported
	case []interface{}:
		out := make([]float64, len(exported))
		for i, raw := range exported {
			v, ok := toFloat(raw)
			if !ok {
				v = math.NaN()
			}
			out[i] = v
		}
		return out
	default:
		panic(vm.NewTypeError("argument is not a numeric vector"))
	}
}

func vecFunc(vm *goja.Runtime, fn func([]float64) float64) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(fn(argFloats(vm, call, 0)))
	}
}

func scalarFunc(vm *goja.Runtime, fn func(float64) float64) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(fn(argFloat(vm, call, 0)))
	}
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func vecSum(values []float64) float64 {
	sum := 0.0
	for _, v := range finite(values) {
		sum += v
	}
	return sum
}

func vecMean(values []float64) float64 {
	vs := finite(values)
	if len(vs) == 0 {
		return math.NaN()
	}
	return vecSum(vs) / float64(len(vs))
}

// vecStd is the population standard deviation.
func vecStd(values []float64) float64 {
	vs := finite(values)
	if len(vs) == 0 {
		return math.NaN()
	}
	mean := vecMean(vs)
	sq := 0.0
	for _, v := range vs {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vs)))
}

func vecMedian(values []float64) float64 {
	vs := finite(values)
	if len(vs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func vecMin(values []float64) float64 {
	vs := finite(values)
	if len(vs) == 0 {
		return math.NaN()
	}
	min := vs[0]
	for _, v := range vs[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func vecMax(values []float64) float64 {
	vs := finite(values)
	if len(vs) == 0 {
		return math.NaN()
	}
	max := vs[0]
	for _, v := range vs[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// fractionalRank maps each value to its average percentile (rank-0.5)/n
// over the non-missing members, ties averaged. NaN stays NaN.
func fractionalRank(values []float64) []float64 {
	type indexed struct {
		value float64
		pos   int
	}

	members := make([]indexed, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			members = append(members, indexed{value: v, pos: i})
		}
	}

	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	n := len(members)
	if n == 0 {
		return out
	}

	sort.Slice(members, func(i, j int) bool { return members[i].value < members[j].value })

	for start := 0; start < n; {
		end := start
		for end+1 < n && members[end+1].value == members[start].value {
			end++
		}
		// Average of 1-based ranks start+1..end+1.
		avg := float64(start+end+2) / 2
		pct := (avg - 0.5) / float64(n)
		for k := start; k <= end; k++ {
			out[members[k].pos] = pct
		}
		start = end + 1
	}

	return out
}
