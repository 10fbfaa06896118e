package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkwon/alpharank/internal/contracts"
)

// RunRepository implements contracts.RunStore.
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a run repository.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// SaveRun inserts the initial record of a run.
func (r *RunRepository) SaveRun(ctx context.Context, rec *contracts.RunRecord) error {
	query := `
		INSERT INTO runs (run_id, strategy_id, status, stage, percent, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.RunID, rec.StrategyID, rec.Status, rec.Stage, rec.Percent, rec.Error, rec.StartedAt,
	)
	return err
}

// UpdateRun persists a status or stage transition.
func (r *RunRepository) UpdateRun(ctx context.Context, rec *contracts.RunRecord) error {
	query := `
		UPDATE runs
		SET status = $2, stage = $3, percent = $4, error = $5, finished_at = $6
		WHERE run_id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		rec.RunID, rec.Status, rec.Stage, rec.Percent, rec.Error, rec.FinishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", rec.RunID)
	}
	return nil
}

// SaveResults writes the ranked output of a completed run in one batch.
func (r *RunRepository) SaveResults(ctx context.Context, runID string, rows []contracts.CompositeScoreRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO run_results (run_id, code, date, score, rank, contributions)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for _, row := range rows {
		contributions, err := json.Marshal(row.Contributions)
		if err != nil {
			return fmt.Errorf("encode contributions for %s: %w", row.Code, err)
		}
		batch.Queue(query, runID, row.Code, row.Date, row.Score, row.Rank, contributions)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save results of run %s: %w", runID, err)
		}
	}
	return nil
}
