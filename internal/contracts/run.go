package contracts

import "time"

// Pipeline stage definitions. All logs, progress snapshots and DB rows
// use these constants.
//
// Pipeline flow:
//   Initialization → UniverseFiltering → DataFetching → FactorExecution
//   → RankingSelection → Finalization → (Completed | Failed | Cancelled)

// Stage represents a pipeline stage
type Stage string

const (
	StageInitialization    Stage = "INITIALIZATION"
	StageUniverseFiltering Stage = "UNIVERSE_FILTERING"
	StageDataFetching      Stage = "DATA_FETCHING"
	StageFactorExecution   Stage = "FACTOR_EXECUTION"
	StageRankingSelection  Stage = "RANKING_SELECTION"
	StageFinalization      Stage = "FINALIZATION"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// Weight returns the stage's share of overall progress. Weights sum to 100.
func (s Stage) Weight() float64 {
	switch s {
	case StageInitialization:
		return 5
	case StageUniverseFiltering:
		return 10
	case StageDataFetching:
		return 40
	case StageFactorExecution:
		return 35
	case StageRankingSelection:
		return 8
	case StageFinalization:
		return 2
	default:
		return 0
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageInitialization,
		StageUniverseFiltering,
		StageDataFetching,
		StageFactorExecution,
		StageRankingSelection,
		StageFinalization,
	}
}

// RunStatus is the lifecycle state of an execution run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// LogEntry is one ordered record in a run's log trail.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"` // info | warn | error
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`   // entity, when applicable
	Factor  string    `json:"factor,omitempty"` // factor id, when applicable
}

// ProgressSnapshot is the externally visible state of a run.
type ProgressSnapshot struct {
	RunID   string     `json:"run_id"`
	Stage   Stage      `json:"stage"`
	Percent float64    `json:"percent"`
	Status  RunStatus  `json:"status"`
	Error   string     `json:"error,omitempty"`
	Logs    []LogEntry `json:"logs"`
}

// RunResult is the terminal output of a completed run.
type RunResult struct {
	RunID      string              `json:"run_id"`
	StrategyID string              `json:"strategy_id"`
	Date       string              `json:"date"`
	TopN       []CompositeScoreRow `json:"top_n"`
	// Breakdown maps factor id -> per-entity standardized values that
	// survived execution, before weighting.
	Breakdown map[string][]FactorValue `json:"breakdown,omitempty"`
	Duration  time.Duration           `json:"duration"`
}

// RunRecord is the persisted form of an execution run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	StrategyID string    `json:"strategy_id"`
	Status     RunStatus `json:"status"`
	Stage      Stage     `json:"stage"`
	Percent    float64   `json:"percent"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
