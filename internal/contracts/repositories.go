package contracts

import "context"

// FactorStore reads stored factor definitions. The management layer owns
// writes; this engine only loads.
type FactorStore interface {
	GetFactor(ctx context.Context, id string) (*FactorDefinition, error)
}

// StrategyStore reads stored strategy definitions.
type StrategyStore interface {
	GetStrategy(ctx context.Context, id string) (*StrategyDefinition, error)
}

// UniverseStore lists the entities known to the system.
type UniverseStore interface {
	ListCodes(ctx context.Context) ([]string, error)
	ListCodesByCategory(ctx context.Context, category string) ([]string, error)
}

// RunStore persists execution run state and results.
type RunStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	UpdateRun(ctx context.Context, rec *RunRecord) error
	SaveResults(ctx context.Context, runID string, rows []CompositeScoreRow) error
}
