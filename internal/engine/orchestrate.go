package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/fetch"
	"github.com/dkwon/alpharank/internal/sandbox"
	"github.com/dkwon/alpharank/internal/standardize"
	"github.com/dkwon/alpharank/internal/strategy"
)

// execute drives the six-stage pipeline. Stages run strictly
// sequentially; cancellation and the run deadline are honored at stage
// boundaries, failed units inside a stage degrade to warnings.
func (e *Engine) execute(ctx context.Context, run *Run, req RunRequest) {
	t := run.Tracker
	started := time.Now()
	dateStr := contracts.DateString(req.Date)

	rec := &contracts.RunRecord{
		RunID:      run.ID,
		StrategyID: req.StrategyID,
		Status:     contracts.RunRunning,
		Stage:      contracts.StageInitialization,
		StartedAt:  started,
	}
	if err := e.runs.SaveRun(ctx, rec); err != nil {
		e.logger.WithError(err).WithField("run_id", run.ID).Warn("Failed to persist run record")
	}

	finish := func(status contracts.RunStatus, errMsg string) {
		t.Finish(status, errMsg)
		rec.Status = status
		rec.Stage = t.Snapshot().Stage
		rec.Percent = t.Percent()
		rec.Error = errMsg
		rec.FinishedAt = time.Now()
		if err := e.runs.UpdateRun(context.Background(), rec); err != nil {
			e.logger.WithError(err).WithField("run_id", run.ID).Warn("Failed to persist run update")
		}
		e.logger.WithFields(map[string]interface{}{
			"run_id":   run.ID,
			"strategy": req.StrategyID,
			"status":   string(status),
			"duration": time.Since(started).String(),
		}).Info("Run finished")
	}

	// stopAtBoundary enforces the two between-stage exits: user
	// cancellation and the run deadline.
	stopAtBoundary := func() bool {
		if t.CancelRequested() {
			finish(contracts.RunCancelled, "")
			return true
		}
		if ctx.Err() != nil {
			finish(contracts.RunFailed, "run deadline exceeded (timeout)")
			return true
		}
		return false
	}

	// Stage 1: Initialization.
	t.EnterStage(contracts.StageInitialization)

	strat, err := e.strategies.GetStrategy(ctx, req.StrategyID)
	if err != nil {
		finish(contracts.RunFailed, fmt.Sprintf("load strategy: %v", err))
		return
	}

	normalized, err := strategy.NormalizeFactorWeights(strat.Factors)
	if err != nil {
		finish(contracts.RunFailed, fmt.Sprintf("normalize weights: %v", err))
		return
	}
	weights := make(map[string]float64)
	for _, fw := range normalized {
		if fw.Enabled {
			weights[fw.FactorID] = fw.Weight
		}
	}

	defs := make(map[string]*contracts.FactorDefinition, len(weights))
	order := make([]string, 0, len(weights))
	for _, fw := range strat.EnabledFactors() {
		def, err := e.factors.GetFactor(ctx, fw.FactorID)
		if err != nil {
			finish(contracts.RunFailed, fmt.Sprintf("load factor %s: %v", fw.FactorID, err))
			return
		}
		defs[fw.FactorID] = def
		order = append(order, fw.FactorID)
	}
	t.SetStageProgress(contracts.StageInitialization, 1)
	if stopAtBoundary() {
		return
	}

	// Stage 2: UniverseFiltering.
	t.EnterStage(contracts.StageUniverseFiltering)

	codes, err := e.resolveUniverse(ctx, strat, req.Filters)
	if err != nil {
		finish(contracts.RunFailed, err.Error())
		return
	}
	if len(codes) == 0 {
		finish(contracts.RunFailed,
			contracts.NewOrchestrationError("empty universe after filtering").Error())
		return
	}
	t.Log("info", contracts.StageUniverseFiltering,
		fmt.Sprintf("universe holds %d entities", len(codes)), "", "")
	t.SetStageProgress(contracts.StageUniverseFiltering, 1)
	if stopAtBoundary() {
		return
	}

	// Stage 3: DataFetching. A factor whose data cannot be fetched is
	// excluded from the run with a warning, it never aborts the stage.
	t.EnterStage(contracts.StageDataFetching)

	factorData := make(map[string]contracts.Table, len(order))
	for i, factorID := range order {
		def := defs[factorID]

		plan, err := e.resolver.Resolve(def.Selection)
		if err != nil {
			t.Log("warn", contracts.StageDataFetching,
				fmt.Sprintf("selection rejected: %v", err), "", factorID)
			continue
		}

		table, err := e.fetcher.Fetch(ctx, plan, fetch.Args{
			Date:    req.Date,
			Request: req.Args,
			Codes:   codes,
		})
		if err != nil {
			t.Log("warn", contracts.StageDataFetching,
				fmt.Sprintf("fetch failed: %v", err), "", factorID)
			continue
		}

		factorData[factorID] = table
		t.SetStageProgress(contracts.StageDataFetching, float64(i+1)/float64(len(order)))
	}
	t.SetStageProgress(contracts.StageDataFetching, 1)
	if stopAtBoundary() {
		return
	}

	// Stage 4: FactorExecution. Unit = (factor, entity); failures are
	// isolated to the pair and logged as warnings.
	t.EnterStage(contracts.StageFactorExecution)

	raw := e.executeFactors(ctx, t, defs, factorData, codes)
	if stopAtBoundary() {
		return
	}

	// Stage 5: RankingSelection.
	t.EnterStage(contracts.StageRankingSelection)

	succeeded := 0
	for _, values := range raw {
		succeeded += len(values)
	}
	if succeeded == 0 {
		finish(contracts.RunFailed,
			contracts.NewOrchestrationError("all factors failed for all entities").Error())
		return
	}

	rows, breakdown, err := e.rank(t, strat, defs, weights, raw, dateStr)
	if err != nil {
		finish(contracts.RunFailed, err.Error())
		return
	}
	t.SetStageProgress(contracts.StageRankingSelection, 1)
	if stopAtBoundary() {
		return
	}

	// Stage 6: Finalization.
	t.EnterStage(contracts.StageFinalization)

	topN := strat.TopN
	if topN <= 0 {
		topN = e.cfg.TopN
	}
	if topN > len(rows) {
		topN = len(rows)
	}

	result := &contracts.RunResult{
		RunID:      run.ID,
		StrategyID: req.StrategyID,
		Date:       dateStr,
		TopN:       rows[:topN],
		Breakdown:  breakdown,
		Duration:   time.Since(started),
	}

	if err := e.runs.SaveResults(ctx, run.ID, result.TopN); err != nil {
		t.Log("warn", contracts.StageFinalization,
			fmt.Sprintf("persist results: %v", err), "", "")
	}

	run.setResult(result)
	t.SetStageProgress(contracts.StageFinalization, 1)
	finish(contracts.RunCompleted, "")
}

// resolveUniverse applies the precedence: explicit codes, then category,
// then all entities. Request filters override the strategy's.
func (e *Engine) resolveUniverse(ctx context.Context, strat *contracts.StrategyDefinition, filters contracts.UniverseFilter) ([]string, error) {
	effective := strat.Universe
	if len(filters.Codes) > 0 || filters.Category != "" {
		effective = filters
	}

	switch {
	case len(effective.Codes) > 0:
		known, err := e.universe.ListCodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list universe: %w", err)
		}
		set := make(map[string]bool, len(known))
		for _, c := range known {
			set[c] = true
		}
		out := make([]string, 0, len(effective.Codes))
		for _, c := range effective.Codes {
			if set[c] {
				out = append(out, c)
			}
		}
		return out, nil

	case effective.Category != "":
		codes, err := e.universe.ListCodesByCategory(ctx, effective.Category)
		if err != nil {
			return nil, fmt.Errorf("list universe by category: %w", err)
		}
		return codes, nil

	default:
		codes, err := e.universe.ListCodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list universe: %w", err)
		}
		return codes, nil
	}
}

// executeFactors runs every (factor, entity) unit under the worker
// bound and returns the raw values of the units that succeeded.
func (e *Engine) executeFactors(ctx context.Context, t *Tracker, defs map[string]*contracts.FactorDefinition, factorData map[string]contracts.Table, codes []string) map[string]map[string]float64 {
	type unit struct {
		factorID string
		code     string
		data     contracts.Table
	}

	units := make([]unit, 0, len(factorData)*len(codes))
	for factorID, table := range factorData {
		for _, code := range codes {
			slice := table.FilterByCode(code)
			if len(slice) == 0 {
				t.Log("warn", contracts.StageFactorExecution, "no data rows for entity", code, factorID)
				continue
			}
			units = append(units, unit{factorID: factorID, code: code, data: slice})
		}
	}

	var (
		mu        sync.Mutex
		raw       = make(map[string]map[string]float64, len(factorData))
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for _, u := range units {
		u := u
		g.Go(func() error {
			out, err := e.executor.Execute(gctx, sandbox.Request{
				FactorID: u.factorID,
				Entity:   u.code,
				Code:     defs[u.factorID].Code,
				Data:     u.data,
			})

			mu.Lock()
			defer mu.Unlock()
			completed++
			t.SetStageProgress(contracts.StageFactorExecution,
				float64(completed)/float64(len(units)))

			if err != nil {
				t.Log("warn", contracts.StageFactorExecution, err.Error(), u.code, u.factorID)
				return nil
			}
			if len(out) == 0 {
				t.Log("warn", contracts.StageFactorExecution, "factor produced no rows", u.code, u.factorID)
				return nil
			}

			value, _ := contracts.AsFloat(out[0]["factor"])
			if raw[u.factorID] == nil {
				raw[u.factorID] = make(map[string]float64, len(codes))
			}
			raw[u.factorID][u.code] = value
			return nil
		})
	}

	_ = g.Wait() // units never return errors, they log warnings
	t.SetStageProgress(contracts.StageFactorExecution, 1)
	return raw
}

// rank standardizes each factor cross-sectionally, renormalizes weights
// over each entity's surviving factors, and sorts the composite scores.
func (e *Engine) rank(t *Tracker, strat *contracts.StrategyDefinition, defs map[string]*contracts.FactorDefinition, weights map[string]float64, raw map[string]map[string]float64, dateStr string) ([]contracts.CompositeScoreRow, map[string][]contracts.FactorValue, error) {
	policy := strat.Normalization
	if policy.Method == "" {
		policy = contracts.DefaultNormalization()
	}

	standardized := make(map[string]map[string]float64, len(raw))
	breakdown := make(map[string][]contracts.FactorValue, len(raw))

	for factorID, values := range raw {
		group := make([]standardize.Value, 0, len(values))
		for code, v := range values {
			group = append(group, standardize.Value{Code: code, Raw: v})
		}

		res, err := standardize.Standardize(group, defs[factorID].Direction, policy)
		if err != nil {
			return nil, nil, fmt.Errorf("standardize factor %s: %w", factorID, err)
		}
		standardized[factorID] = res.Values

		fvs := make([]contracts.FactorValue, 0, len(res.Values))
		for code, v := range res.Values {
			fvs = append(fvs, contracts.FactorValue{Code: code, Date: dateStr, Value: v})
		}
		sort.Slice(fvs, func(i, j int) bool { return fvs[i].Code < fvs[j].Code })
		breakdown[factorID] = fvs
	}

	// Composite per entity over its surviving factors.
	entities := make(map[string]bool)
	for _, values := range standardized {
		for code := range values {
			entities[code] = true
		}
	}

	rows := make([]contracts.CompositeScoreRow, 0, len(entities))
	for code := range entities {
		survivors := make([]string, 0, len(standardized))
		for factorID, values := range standardized {
			if _, ok := values[code]; ok {
				survivors = append(survivors, factorID)
			}
		}
		sort.Strings(survivors)

		if len(survivors) < len(weights) {
			t.Log("warn", contracts.StageRankingSelection,
				fmt.Sprintf("%d of %d factors survived, weights renormalized", len(survivors), len(weights)),
				code, "")
		}

		entityWeights, err := strategy.RenormalizeSurvivors(weights, survivors)
		if err != nil {
			t.Log("warn", contracts.StageRankingSelection,
				fmt.Sprintf("entity excluded: %v", err), code, "")
			continue
		}

		score := 0.0
		contributions := make(map[string]float64, len(survivors))
		for _, factorID := range survivors {
			contribution := entityWeights[factorID] * standardized[factorID][code]
			contributions[factorID] = contribution
			score += contribution
		}
		if math.IsNaN(score) {
			t.Log("warn", contracts.StageRankingSelection, "entity excluded: score is NaN", code, "")
			continue
		}

		rows = append(rows, contracts.CompositeScoreRow{
			Code:          code,
			Date:          dateStr,
			Score:         score,
			Contributions: contributions,
		})
	}

	if len(rows) == 0 {
		return nil, nil, contracts.NewOrchestrationError("no entity survived factor execution")
	}

	// Descending by score, ties by entity code ascending.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Code < rows[j].Code
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}

	return rows, breakdown, nil
}
