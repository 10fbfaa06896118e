package fetch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkwon/alpharank/internal/catalog"
	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/provider"
	"github.com/dkwon/alpharank/pkg/config"
	"github.com/dkwon/alpharank/pkg/logger"
)

// Args carries the run-time values that parameter bindings resolve
// against: the request arguments, the run date and the entity universe.
type Args struct {
	Date    time.Time
	Request map[string]string
	Codes   []string
}

// Fetcher executes fetch plans. It owns batching, rate limiting,
// caching and retries; providers only perform single external calls.
type Fetcher struct {
	providers map[catalog.SourceKind]provider.Provider
	cache     *Cache
	limiters  *LimiterRegistry
	cfg       config.FetcherConfig
	logger    *logger.Logger
}

// New creates a fetcher over the given providers.
func New(providers map[catalog.SourceKind]provider.Provider, cache *Cache, cfg config.FetcherConfig, log *logger.Logger) *Fetcher {
	return &Fetcher{
		providers: providers,
		cache:     cache,
		limiters:  NewLimiterRegistry(),
		cfg:       cfg,
		logger:    log,
	}
}

// Fetch executes every planned source call and joins the results into
// one table keyed by (code, date). Entity batches of one plan run
// concurrently under the configured worker bound.
func (f *Fetcher) Fetch(ctx context.Context, plan *catalog.FetchPlan, args Args) (contracts.Table, error) {
	tables := make([]contracts.Table, 0, len(plan.Fetches))

	for _, pf := range plan.Fetches {
		table, err := f.fetchSource(ctx, pf, args)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	merged := mergeTables(tables)
	f.logger.WithFields(map[string]interface{}{
		"sources": len(plan.Fetches),
		"rows":    len(merged),
		"columns": merged.Columns(),
	}).Debug("Fetch plan merged")
	return merged, nil
}

func (f *Fetcher) fetchSource(ctx context.Context, pf catalog.PlannedFetch, args Args) (contracts.Table, error) {
	prov, ok := f.providers[pf.Kind]
	if !ok {
		return nil, &contracts.FetchError{
			Kind:   contracts.FetchPermanent,
			Source: pf.Source,
			Err:    fmt.Errorf("no provider for source kind %q", pf.Kind),
		}
	}

	params, err := resolveParams(pf, args)
	if err != nil {
		return nil, err
	}

	maxBatch := pf.MaxBatch
	if maxBatch <= 0 {
		maxBatch = f.cfg.MaxBatch
	}
	batches := splitBatches(args.Codes, maxBatch)

	var (
		mu     sync.Mutex
		merged contracts.Table
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			table, err := f.fetchBatch(gctx, prov, pf, params, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			merged = append(merged, table...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}

// fetchBatch serves one batch read-through: a cache hit never touches
// the limiter or the provider.
func (f *Fetcher) fetchBatch(ctx context.Context, prov provider.Provider, pf catalog.PlannedFetch, params map[string]string, codes []string) (contracts.Table, error) {
	key := CacheKey(pf.Source, params, codes)

	return f.cache.GetOrFetch(ctx, key, pf.TTL, func() (contracts.Table, error) {
		lim := f.limiters.Get(pf.Source, pf.RateLimit)
		if err := lim.Wait(ctx); err != nil {
			return nil, &contracts.FetchError{
				Kind:   contracts.FetchTransient,
				Source: pf.Source,
				Err:    err,
			}
		}

		return f.callWithRetry(ctx, prov, provider.Request{
			Source:   pf.Source,
			Endpoint: pf.Endpoint,
			Fields:   pf.Fields,
			Params:   params,
			Codes:    codes,
		})
	})
}

// callWithRetry retries transient failures with exponential backoff.
// Permanent failures surface immediately.
func (f *Fetcher) callWithRetry(ctx context.Context, prov provider.Provider, req provider.Request) (contracts.Table, error) {
	var lastErr error
	delay := f.cfg.InitialDelay

	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		table, err := prov.Fetch(callCtx, req)
		cancel()

		if err == nil {
			return table, nil
		}
		if !contracts.IsTransient(err) {
			return nil, err
		}
		lastErr = err

		if attempt == f.cfg.MaxAttempts {
			break
		}

		f.logger.WithFields(map[string]interface{}{
			"source":  req.Source,
			"attempt": attempt,
			"delay":   delay.String(),
		}).WithError(err).Warn("Transient fetch failure, retrying")

		select {
		case <-ctx.Done():
			return nil, &contracts.FetchError{
				Kind:   contracts.FetchTransient,
				Source: req.Source,
				Err:    ctx.Err(),
			}
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxDelay {
			delay = f.cfg.MaxDelay
		}
	}

	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", req.Source, f.cfg.MaxAttempts, lastErr)
}

// resolveParams turns symbolic bindings into concrete string values.
// A request binding with no matching argument is a validation failure.
func resolveParams(pf catalog.PlannedFetch, args Args) (map[string]string, error) {
	out := make(map[string]string, len(pf.Params))

	for name, binding := range pf.Params {
		switch binding.Mode {
		case contracts.BindFixed:
			out[name] = binding.Value

		case contracts.BindRequest:
			v, ok := args.Request[binding.From]
			if !ok || v == "" {
				return nil, &contracts.ValidationError{
					Kind: contracts.MissingRequiredParam,
					Name: name,
					Msg:  "request argument " + binding.From + " is not set",
				}
			}
			out[name] = v

		case contracts.BindDerived:
			switch binding.From {
			case contracts.KeyDate, "":
				out[name] = contracts.DateString(args.Date)
			default:
				return nil, &contracts.ValidationError{
					Kind: contracts.MissingRequiredParam,
					Name: name,
					Msg:  "unknown derivation " + binding.From,
				}
			}

		default:
			return nil, &contracts.ValidationError{
				Kind: contracts.MissingRequiredParam,
				Name: name,
				Msg:  "unknown binding mode " + string(binding.Mode),
			}
		}
	}

	return out, nil
}

// splitBatches chunks codes into groups of at most size.
func splitBatches(codes []string, size int) [][]string {
	if len(codes) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(codes)+size-1)/size)
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		out = append(out, codes[start:end])
	}
	return out
}

// mergeTables joins source tables on (code, date). Columns from later
// tables are added to the matching row; rows without a code are dropped.
// Output order is deterministic: code ascending, then date.
func mergeTables(tables []contracts.Table) contracts.Table {
	type joinKey struct {
		code string
		date string
	}

	index := make(map[joinKey]contracts.Row)
	order := make([]joinKey, 0)

	for _, table := range tables {
		for _, row := range table {
			code, _ := row[contracts.KeyCode].(string)
			if code == "" {
				continue
			}
			date, _ := row[contracts.KeyDate].(string)

			k := joinKey{code: code, date: date}
			dst, ok := index[k]
			if !ok {
				dst = contracts.Row{}
				index[k] = dst
				order = append(order, k)
			}
			for col, val := range row {
				dst[col] = val
			}
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].code != order[j].code {
			return order[i].code < order[j].code
		}
		return order[i].date < order[j].date
	})

	out := make(contracts.Table, 0, len(order))
	for _, k := range order {
		out = append(out, index[k])
	}
	return out
}
