package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/pkg/config"
	"github.com/dkwon/alpharank/pkg/logger"
)

// Request is one sandboxed execution unit: validated factor code applied
// to the data slice of one entity (or a sample table for test runs).
type Request struct {
	FactorID string
	Entity   string
	Code     string
	Data     contracts.Table
	Params   map[string]interface{}
}

// Executor runs validated factor code on a fresh goja runtime per call.
// The runtime exposes only the tbl and num host libraries. A wall-clock
// interrupt and a call-stack ceiling bound each execution; there is no
// OS memory limit inside the process, so the practical footprint is
// bounded by the script size cap, the stack ceiling and the deadline.
type Executor struct {
	cfg    config.SandboxConfig
	logger *logger.Logger
}

// NewExecutor creates an executor with the configured ceilings.
func NewExecutor(cfg config.SandboxConfig, log *logger.Logger) *Executor {
	return &Executor{cfg: cfg, logger: log}
}

// Execute runs the factor function and validates the output contract:
// every row must carry the join keys plus exactly one numeric column
// named factor. All failures come back as ExecutionError values.
func (e *Executor) Execute(ctx context.Context, req Request) (contracts.Table, error) {
	if e.cfg.MaxScriptSize > 0 && len(req.Code) > e.cfg.MaxScriptSize {
		return nil, e.execErr(req, contracts.ExecContractViolation,
			fmt.Sprintf("script exceeds maximum size of %d bytes", e.cfg.MaxScriptSize))
	}

	vm := goja.New()
	if e.cfg.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(e.cfg.MaxCallStack)
	}
	installLibs(vm)

	timeout := e.cfg.ExecTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(timeout):
			vm.Interrupt("execution timeout")
		case <-ctx.Done():
			vm.Interrupt("execution cancelled")
		case <-done:
		}
	}()
	defer close(done)

	if _, err := vm.RunString(req.Code); err != nil {
		return nil, e.classify(req, err)
	}

	fn, ok := goja.AssertFunction(vm.Get(FactorFunc))
	if !ok {
		return nil, e.execErr(req, contracts.ExecContractViolation,
			"script does not declare function factor(data, params)")
	}

	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := fn(goja.Undefined(), vm.ToValue(columnize(req.Data)), vm.ToValue(params))
	if err != nil {
		return nil, e.classify(req, err)
	}

	table, cerr := e.exportResult(result)
	if cerr != "" {
		return nil, e.execErr(req, contracts.ExecContractViolation, cerr)
	}
	return table, nil
}

// classify maps goja failures onto the execution error taxonomy.
func (e *Executor) classify(req Request, err error) *contracts.ExecutionError {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return e.execErr(req, contracts.ExecTimeout, fmt.Sprint(interrupted.Value()))
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return e.execErr(req, contracts.ExecRuntime, "call stack size exceeded")
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return e.execErr(req, contracts.ExecRuntime, exc.Error())
	}

	return e.execErr(req, contracts.ExecRuntime, err.Error())
}

func (e *Executor) execErr(req Request, kind contracts.ExecutionErrorKind, msg string) *contracts.ExecutionError {
	return &contracts.ExecutionError{
		Kind:     kind,
		FactorID: req.FactorID,
		Code:     req.Entity,
		Msg:      msg,
	}
}

// exportResult checks the output contract and converts the JS value into
// a table. The second return value is a violation message, empty on
// success.
func (e *Executor) exportResult(v goja.Value) (contracts.Table, string) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, "factor returned no value"
	}

	exported := v.Export()
	rows, ok := exported.([]interface{})
	if !ok {
		return nil, fmt.Sprintf("factor must return an array of rows, got %T", exported)
	}

	table := make(contracts.Table, 0, len(rows))
	for i, raw := range rows {
		row, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Sprintf("row %d is not an object", i)
		}

		for _, key := range contracts.JoinKeys() {
			if s, ok := row[key].(string); !ok || s == "" {
				return nil, fmt.Sprintf("row %d is missing join key %q", i, key)
			}
		}

		value, ok := toFloat(row["factor"])
		if !ok {
			return nil, fmt.Sprintf("row %d has no numeric factor column", i)
		}

		if len(row) != len(contracts.JoinKeys())+1 {
			return nil, fmt.Sprintf("row %d carries columns beyond the join keys and factor", i)
		}

		table = append(table, contracts.Row{
			contracts.KeyCode: row[contracts.KeyCode],
			contracts.KeyDate: row[contracts.KeyDate],
			"factor":          value,
		})
	}

	return table, ""
}

// columnize converts a row table into the mapping the factor function
// receives: join keys as string vectors, every other column as a float
// vector with NaN marking missing or non-numeric cells.
func columnize(data contracts.Table) map[string]interface{} {
	n := len(data)
	codes := make([]string, n)
	dates := make([]string, n)

	fields := make(map[string][]float64)
	for _, row := range data {
		for name := range row {
			if name == contracts.KeyCode || name == contracts.KeyDate {
				continue
			}
			if _, ok := fields[name]; !ok {
				col := make([]float64, n)
				for i := range col {
					col[i] = math.NaN()
				}
				fields[name] = col
			}
		}
	}

	for i, row := range data {
		codes[i], _ = row[contracts.KeyCode].(string)
		dates[i], _ = row[contracts.KeyDate].(string)
		for name, col := range fields {
			if v, ok := toFloat(row[name]); ok {
				col[i] = v
			}
		}
	}

	out := make(map[string]interface{}, len(fields)+2)
	out[contracts.KeyCode] = codes
	out[contracts.KeyDate] = dates
	for name, col := range fields {
		out[name] = col
	}
	return out
}

// toFloat accepts the numeric representations goja exports.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return math.NaN(), false
	}
}
