package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/fetch"
	"github.com/dkwon/alpharank/internal/sandbox"
	"github.com/dkwon/alpharank/internal/standardize"
)

// TestRunRequest tries a factor candidate against a small sample
// universe without persisting anything.
type TestRunRequest struct {
	Code      string
	Selection contracts.SelectionSpec
	Universe  []string // sample entity codes
	Date      time.Time
	Direction contracts.Direction
	Policy    contracts.NormalizationPolicy
	Args      map[string]string
}

// TestRunResult carries the sample output and the standardization
// diagnostics of one candidate factor.
type TestRunResult struct {
	Report      sandbox.Report          `json:"report"`
	RawRows     []contracts.FactorValue `json:"raw_rows"`
	SampleRows  []contracts.FactorValue `json:"sample_rows"` // standardized
	Diagnostics standardize.Diagnostics `json:"diagnostics"`
}

// TestRun validates, fetches, executes and standardizes one factor over
// the sample universe. Validation failures come back in the report, not
// as an error; errors are reserved for fetch and infrastructure
// failures.
func (e *Engine) TestRun(ctx context.Context, req TestRunRequest) (*TestRunResult, error) {
	if len(req.Universe) == 0 {
		return nil, fmt.Errorf("sample universe is empty")
	}
	if req.Date.IsZero() {
		req.Date = time.Now()
	}

	report := e.validator.Validate(req.Code, req.Selection)
	if !report.OK {
		return &TestRunResult{Report: report}, nil
	}

	plan, err := e.resolver.Resolve(req.Selection)
	if err != nil {
		return nil, fmt.Errorf("resolve selection: %w", err)
	}

	table, err := e.fetcher.Fetch(ctx, plan, fetch.Args{
		Date:    req.Date,
		Request: req.Args,
		Codes:   req.Universe,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch sample data: %w", err)
	}

	dateStr := contracts.DateString(req.Date)
	raw := make([]contracts.FactorValue, 0, len(req.Universe))
	group := make([]standardize.Value, 0, len(req.Universe))

	for _, code := range req.Universe {
		slice := table.FilterByCode(code)
		if len(slice) == 0 {
			continue
		}
		out, err := e.executor.Execute(ctx, sandbox.Request{
			Entity: code,
			Code:   req.Code,
			Data:   slice,
		})
		if err != nil {
			// Per-entity failure is part of the diagnostics story: the
			// entity is simply absent from the sample output.
			e.logger.WithError(err).WithField("code", code).Debug("Test run unit failed")
			continue
		}
		if len(out) == 0 {
			continue
		}
		value, _ := contracts.AsFloat(out[0]["factor"])
		raw = append(raw, contracts.FactorValue{Code: code, Date: dateStr, Value: value})
		group = append(group, standardize.Value{Code: code, Raw: value})
	}

	direction := req.Direction
	if direction == "" {
		direction = contracts.HigherIsBetter
	}
	policy := req.Policy
	if policy.Method == "" {
		policy = contracts.DefaultNormalization()
	}

	res, err := standardize.Standardize(group, direction, policy)
	if err != nil {
		return nil, fmt.Errorf("standardize sample: %w", err)
	}

	sample := make([]contracts.FactorValue, 0, len(res.Values))
	for code, v := range res.Values {
		sample = append(sample, contracts.FactorValue{Code: code, Date: dateStr, Value: v})
	}
	sort.Slice(sample, func(i, j int) bool { return sample[i].Code < sample[j].Code })
	sort.Slice(raw, func(i, j int) bool { return raw[i].Code < raw[j].Code })

	return &TestRunResult{
		Report:      report,
		RawRows:     raw,
		SampleRows:  sample,
		Diagnostics: res.Diagnostics,
	}, nil
}
