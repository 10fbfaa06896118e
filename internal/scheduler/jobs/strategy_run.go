package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/engine"
	"github.com/dkwon/alpharank/pkg/logger"
)

// StrategyRunJob runs one configured strategy on a schedule, typically
// daily after market close, and waits for the run to finish so the
// scheduler's retry logic sees failures.
type StrategyRunJob struct {
	engine     *engine.Engine
	strategyID string
	schedule   string
	logger     *logger.Logger
}

// NewStrategyRunJob creates a new strategy run job
func NewStrategyRunJob(eng *engine.Engine, strategyID, schedule string, log *logger.Logger) *StrategyRunJob {
	return &StrategyRunJob{
		engine:     eng,
		strategyID: strategyID,
		schedule:   schedule,
		logger:     log,
	}
}

// Name returns the job name
func (j *StrategyRunJob) Name() string {
	return "strategy_run"
}

// Schedule returns the cron schedule expression
func (j *StrategyRunJob) Schedule() string {
	return j.schedule
}

// Run starts the strategy run and blocks until it reaches a terminal state
func (j *StrategyRunJob) Run(ctx context.Context) error {
	j.logger.WithField("strategy", j.strategyID).Info("Starting scheduled strategy run")

	runID, err := j.engine.RunStrategy(ctx, engine.RunRequest{
		StrategyID: j.strategyID,
		Date:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("start run for strategy %s: %w", j.strategyID, err)
	}

	snapshot, err := j.waitTerminal(ctx, runID)
	if err != nil {
		return err
	}

	switch snapshot.Status {
	case contracts.RunCompleted:
		j.logger.WithFields(map[string]interface{}{
			"strategy": j.strategyID,
			"run_id":   runID,
		}).Info("Scheduled strategy run completed")
		return nil
	case contracts.RunCancelled:
		return fmt.Errorf("run %s was cancelled", runID)
	default:
		return fmt.Errorf("run %s failed: %s", runID, snapshot.Error)
	}
}

func (j *StrategyRunJob) waitTerminal(ctx context.Context, runID string) (contracts.ProgressSnapshot, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		snapshot, err := j.engine.Progress(runID)
		if err != nil {
			return contracts.ProgressSnapshot{}, err
		}
		if snapshot.Status.Terminal() {
			return snapshot, nil
		}

		select {
		case <-ctx.Done():
			return contracts.ProgressSnapshot{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
