package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkwon/alpharank/internal/contracts"
)

// FactorRepository implements contracts.FactorStore. The management
// layer owns writes; the engine only ever loads definitions.
type FactorRepository struct {
	pool *pgxpool.Pool
}

// NewFactorRepository creates a factor repository.
func NewFactorRepository(pool *pgxpool.Pool) *FactorRepository {
	return &FactorRepository{pool: pool}
}

// GetFactor loads one stored, already-validated factor definition.
func (r *FactorRepository) GetFactor(ctx context.Context, id string) (*contracts.FactorDefinition, error) {
	query := `
		SELECT id, name, code, fields_used, direction, selection, created_at
		FROM factors
		WHERE id = $1
	`

	var (
		f             contracts.FactorDefinition
		selectionJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.Name, &f.Code, &f.FieldsUsed, &f.Direction, &selectionJSON, &f.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("load factor %s: %w", id, err)
	}

	if err := json.Unmarshal(selectionJSON, &f.Selection); err != nil {
		return nil, fmt.Errorf("decode selection of factor %s: %w", id, err)
	}
	return &f, nil
}
