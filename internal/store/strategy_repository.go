package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/strategy"
)

// StrategyRepository implements contracts.StrategyStore.
type StrategyRepository struct {
	pool *pgxpool.Pool
}

// NewStrategyRepository creates a strategy repository.
func NewStrategyRepository(pool *pgxpool.Pool) *StrategyRepository {
	return &StrategyRepository{pool: pool}
}

// GetStrategy loads one strategy. Weights are L1-normalized at
// persistence time; the loader re-normalizes defensively so a stale row
// never leaks raw weights into a run.
func (r *StrategyRepository) GetStrategy(ctx context.Context, id string) (*contracts.StrategyDefinition, error) {
	query := `
		SELECT id, name, factors, normalization, universe, top_n, created_at
		FROM strategies
		WHERE id = $1
	`

	var (
		s                 contracts.StrategyDefinition
		factorsJSON       []byte
		normalizationJSON []byte
		universeJSON      []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &factorsJSON, &normalizationJSON, &universeJSON, &s.TopN, &s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", id, err)
	}

	if err := json.Unmarshal(factorsJSON, &s.Factors); err != nil {
		return nil, fmt.Errorf("decode factors of strategy %s: %w", id, err)
	}
	if err := json.Unmarshal(normalizationJSON, &s.Normalization); err != nil {
		return nil, fmt.Errorf("decode normalization of strategy %s: %w", id, err)
	}
	if err := json.Unmarshal(universeJSON, &s.Universe); err != nil {
		return nil, fmt.Errorf("decode universe of strategy %s: %w", id, err)
	}

	normalized, err := strategy.NormalizeFactorWeights(s.Factors)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", id, err)
	}
	s.Factors = normalized

	return &s, nil
}
