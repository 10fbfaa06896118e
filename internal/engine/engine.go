package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dkwon/alpharank/internal/catalog"
	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/fetch"
	"github.com/dkwon/alpharank/internal/sandbox"
	"github.com/dkwon/alpharank/pkg/config"
	"github.com/dkwon/alpharank/pkg/logger"
)

// Deps wires the engine's collaborators. Stores are interfaces so tests
// inject in-memory fakes; cache and rate limiters live inside the
// fetcher and are shared across runs.
type Deps struct {
	Resolver   *catalog.Resolver
	Fetcher    *fetch.Fetcher
	Validator  *sandbox.Validator
	Executor   *sandbox.Executor
	Factors    contracts.FactorStore
	Strategies contracts.StrategyStore
	Universe   contracts.UniverseStore
	Runs       contracts.RunStore
	Config     config.EngineConfig
	Logger     *logger.Logger
}

// Engine is the composite scorer and run orchestrator.
type Engine struct {
	resolver   *catalog.Resolver
	fetcher    *fetch.Fetcher
	validator  *sandbox.Validator
	executor   *sandbox.Executor
	factors    contracts.FactorStore
	strategies contracts.StrategyStore
	universe   contracts.UniverseStore
	runs       contracts.RunStore
	registry   *Registry
	cfg        config.EngineConfig
	logger     *logger.Logger
}

// New creates an engine.
func New(deps Deps) *Engine {
	return &Engine{
		resolver:   deps.Resolver,
		fetcher:    deps.Fetcher,
		validator:  deps.Validator,
		executor:   deps.Executor,
		factors:    deps.Factors,
		strategies: deps.Strategies,
		universe:   deps.Universe,
		runs:       deps.Runs,
		registry:   NewRegistry(),
		cfg:        deps.Config,
		logger:     deps.Logger,
	}
}

// RunRequest starts one strategy run.
type RunRequest struct {
	StrategyID string
	Date       time.Time               // cross-section date, defaults to today
	Filters    contracts.UniverseFilter // overrides the strategy universe when set
	Args       map[string]string        // request-bound source parameters
}

// RunStrategy starts a run and returns its id without blocking. The run
// proceeds in the background under the configured run deadline.
func (e *Engine) RunStrategy(ctx context.Context, req RunRequest) (string, error) {
	if req.StrategyID == "" {
		return "", fmt.Errorf("strategy id is required")
	}
	// Fail fast on an unknown strategy before going asynchronous.
	if _, err := e.strategies.GetStrategy(ctx, req.StrategyID); err != nil {
		return "", fmt.Errorf("load strategy %s: %w", req.StrategyID, err)
	}
	if req.Date.IsZero() {
		req.Date = time.Now()
	}

	id := uuid.NewString()
	run := &Run{
		ID:         id,
		StrategyID: req.StrategyID,
		Tracker:    NewTracker(id),
	}
	e.registry.add(run)

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), e.cfg.RunTimeout)
		defer cancel()
		e.execute(runCtx, run, req)
	}()

	return run.ID, nil
}

// Progress returns the current snapshot of a run.
func (e *Engine) Progress(runID string) (contracts.ProgressSnapshot, error) {
	run, err := e.registry.Get(runID)
	if err != nil {
		return contracts.ProgressSnapshot{}, err
	}
	return run.Tracker.Snapshot(), nil
}

// Result returns the terminal output of a completed run.
func (e *Engine) Result(runID string) (*contracts.RunResult, error) {
	run, err := e.registry.Get(runID)
	if err != nil {
		return nil, err
	}
	res := run.Result()
	if res == nil {
		return nil, fmt.Errorf("run %s has no result (status %s)", runID, run.Tracker.Status())
	}
	return res, nil
}

// Cancel requests cancellation. The run stops at the next stage
// boundary; in-flight units are not force-killed, their results are
// discarded with the rest of the run.
func (e *Engine) Cancel(runID string) error {
	run, err := e.registry.Get(runID)
	if err != nil {
		return err
	}
	if run.Tracker.Status().Terminal() {
		return fmt.Errorf("run %s already ended with status %s", runID, run.Tracker.Status())
	}
	run.Tracker.RequestCancel()
	return nil
}

// Validate exposes static factor validation to the API layer.
func (e *Engine) Validate(code string, selection contracts.SelectionSpec) sandbox.Report {
	return e.validator.Validate(code, selection)
}
