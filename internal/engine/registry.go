package engine

import (
	"fmt"
	"sync"

	"github.com/dkwon/alpharank/internal/contracts"
)

// Run is the in-memory handle of one execution. Concurrent runs are
// isolated: each has its own tracker, log trail and result slot; only
// the fetch cache and rate limiters are shared process-wide.
type Run struct {
	ID         string
	StrategyID string
	Tracker    *Tracker

	mu     sync.Mutex
	result *contracts.RunResult
}

func (r *Run) setResult(res *contracts.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = res
}

// Result returns the terminal output, nil until the run completes.
func (r *Run) Result() *contracts.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Registry tracks live and finished runs by id.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

func (r *Registry) add(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

// Get looks up a run by id.
func (r *Registry) Get(id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return run, nil
}
