package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UniverseRepository implements contracts.UniverseStore over the
// entities table.
type UniverseRepository struct {
	pool *pgxpool.Pool
}

// NewUniverseRepository creates a universe repository.
func NewUniverseRepository(pool *pgxpool.Pool) *UniverseRepository {
	return &UniverseRepository{pool: pool}
}

// ListCodes returns every known entity code.
func (r *UniverseRepository) ListCodes(ctx context.Context) ([]string, error) {
	query := `SELECT code FROM entities ORDER BY code ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ListCodesByCategory returns the entity codes of one category.
func (r *UniverseRepository) ListCodesByCategory(ctx context.Context, category string) ([]string, error) {
	query := `SELECT code FROM entities WHERE category = $1 ORDER BY code ASC`

	rows, err := r.pool.Query(ctx, query, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
