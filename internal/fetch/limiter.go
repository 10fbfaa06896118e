package fetch

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkwon/alpharank/internal/catalog"
)

// LimiterRegistry holds one token bucket per data source. The bucket is
// created from the source's policy on first use and shared by every
// fetch against that source for the life of the process.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiterRegistry creates an empty registry.
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{limiters: make(map[string]*rate.Limiter)}
}

// Get returns the limiter for a source, creating it from the policy if
// the source has not been seen yet.
func (r *LimiterRegistry) Get(source string, policy catalog.RateLimitPolicy) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[source]; ok {
		return lim
	}

	qps := policy.QPS
	if qps <= 0 {
		qps = 5
	}
	burst := policy.Burst
	if burst < 1 {
		burst = 1
	}

	lim := rate.NewLimiter(rate.Limit(qps), burst)
	r.limiters[source] = lim
	return lim
}
