package engine

import (
	"sync"
	"time"

	"github.com/dkwon/alpharank/internal/contracts"
)

// Tracker holds the externally visible state of one run: current stage,
// per-stage progress, the append-only log trail and the cancellation
// flag. Workers update it concurrently; every method is safe.
type Tracker struct {
	mu sync.Mutex

	runID     string
	stage     contracts.Stage
	stageDone map[contracts.Stage]float64 // 0..1 per stage
	status    contracts.RunStatus
	errMsg    string
	logs      []contracts.LogEntry
	cancelled bool
}

// NewTracker creates a tracker in the RUNNING state.
func NewTracker(runID string) *Tracker {
	return &Tracker{
		runID:     runID,
		stage:     contracts.StageInitialization,
		stageDone: make(map[contracts.Stage]float64, 6),
		status:    contracts.RunRunning,
	}
}

// EnterStage advances to the next stage. Stage transitions are
// monotonic: every earlier stage is marked complete.
func (t *Tracker) EnterStage(stage contracts.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range contracts.AllStages() {
		if s == stage {
			break
		}
		t.stageDone[s] = 1
	}
	t.stage = stage
	t.logs = append(t.logs, contracts.LogEntry{
		Time:    time.Now(),
		Level:   "info",
		Stage:   stage,
		Message: "stage started",
	})
}

// SetStageProgress records the fraction [0,1] of the current stage done.
// Progress never moves backwards.
func (t *Tracker) SetStageProgress(stage contracts.Stage, frac float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	if frac > t.stageDone[stage] {
		t.stageDone[stage] = frac
	}
}

// Log appends one entry to the run's trail.
func (t *Tracker) Log(level string, stage contracts.Stage, msg, code, factor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = append(t.logs, contracts.LogEntry{
		Time:    time.Now(),
		Level:   level,
		Stage:   stage,
		Message: msg,
		Code:    code,
		Factor:  factor,
	})
}

// RequestCancel marks the run for cancellation. The orchestrator honors
// it at the next stage boundary.
func (t *Tracker) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// CancelRequested reports whether cancellation was requested.
func (t *Tracker) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Finish moves the run to a terminal status. The first terminal
// transition wins; later calls are ignored.
func (t *Tracker) Finish(status contracts.RunStatus, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = status
	t.errMsg = errMsg
	if status == contracts.RunCompleted {
		for _, s := range contracts.AllStages() {
			t.stageDone[s] = 1
		}
	}

	level := "info"
	msg := "run " + string(status)
	if errMsg != "" {
		level = "error"
		msg += ": " + errMsg
	}
	t.logs = append(t.logs, contracts.LogEntry{
		Time:    time.Now(),
		Level:   level,
		Stage:   t.stage,
		Message: msg,
	})
}

// Status returns the current lifecycle state.
func (t *Tracker) Status() contracts.RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Percent is the weighted overall progress in [0,100].
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percentLocked()
}

func (t *Tracker) percentLocked() float64 {
	var done, total float64
	for _, s := range contracts.AllStages() {
		w := s.Weight()
		total += w
		done += t.stageDone[s] * w
	}
	if total == 0 {
		return 0
	}
	return 100 * done / total
}

// Snapshot returns a copy of the visible state, logs included.
func (t *Tracker) Snapshot() contracts.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	logs := make([]contracts.LogEntry, len(t.logs))
	copy(logs, t.logs)

	return contracts.ProgressSnapshot{
		RunID:   t.runID,
		Stage:   t.stage,
		Percent: t.percentLocked(),
		Status:  t.status,
		Error:   t.errMsg,
		Logs:    logs,
	}
}
