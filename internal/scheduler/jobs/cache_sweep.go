package jobs

import (
	"context"

	"github.com/dkwon/alpharank/internal/fetch"
	"github.com/dkwon/alpharank/pkg/logger"
)

// CacheSweepJob evicts expired entries from the in-process fetch cache.
// Expired entries are otherwise only dropped lazily on lookup, so a
// long-idle process would hold stale tables until the LRU pushes them out.
type CacheSweepJob struct {
	cache    *fetch.Cache
	schedule string
	logger   *logger.Logger
}

// NewCacheSweepJob creates a new cache sweep job
func NewCacheSweepJob(cache *fetch.Cache, schedule string, log *logger.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		cache:    cache,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

// Schedule returns the cron schedule expression
func (j *CacheSweepJob) Schedule() string {
	return j.schedule
}

// Run sweeps the cache once
func (j *CacheSweepJob) Run(ctx context.Context) error {
	evicted := j.cache.Sweep()

	j.logger.WithFields(map[string]interface{}{
		"evicted":   evicted,
		"remaining": j.cache.Len(),
	}).Info("Fetch cache swept")

	return nil
}
