package fetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkwon/alpharank/internal/catalog"
	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/provider"
	"github.com/dkwon/alpharank/pkg/config"
	"github.com/dkwon/alpharank/pkg/logger"
)

func testFetcherConfig() config.FetcherConfig {
	return config.FetcherConfig{
		Workers:      4,
		MaxBatch:     50,
		CacheTTL:     time.Hour,
		CacheMaxSize: 128,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		CallTimeout:  time.Second,
	}
}

func testLogger() *logger.Logger {
	return logger.NewWriter(nullWriter{})
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func staticFetcher(static *provider.StaticProvider, cfg config.FetcherConfig) *Fetcher {
	providers := map[catalog.SourceKind]provider.Provider{
		catalog.KindStatic: static,
	}
	return New(providers, NewCache(cfg.CacheMaxSize, nil), cfg, testLogger())
}

func valuationPlan() *catalog.FetchPlan {
	return &catalog.FetchPlan{Fetches: []catalog.PlannedFetch{{
		Source: "valuation",
		Kind:   catalog.KindStatic,
		Fields: []string{"pe"},
		Params: map[string]contracts.ParamBinding{
			"date": {Mode: contracts.BindDerived, From: "date"},
		},
		RateLimit: catalog.RateLimitPolicy{QPS: 1000, Burst: 1000},
		MaxBatch:  50,
		TTL:       time.Hour,
	}}}
}

func valuationTable() contracts.Table {
	return contracts.Table{
		{contracts.KeyCode: "000100", contracts.KeyDate: "2024-01-02", "pe": 8.0},
		{contracts.KeyCode: "005930", contracts.KeyDate: "2024-01-02", "pe": 11.5},
	}
}

func TestCacheKeyCanonical(t *testing.T) {
	a := CacheKey("valuation", map[string]string{"date": "2024-01-02", "market": "kospi"}, []string{"b", "a"})
	b := CacheKey("valuation", map[string]string{"market": "kospi", "date": "2024-01-02"}, []string{"a", "b"})
	assert.Equal(t, a, b)

	c := CacheKey("valuation", map[string]string{"date": "2024-01-03", "market": "kospi"}, []string{"a", "b"})
	assert.NotEqual(t, a, c)

	d := CacheKey("fundamental", map[string]string{"date": "2024-01-02", "market": "kospi"}, []string{"a", "b"})
	assert.NotEqual(t, a, d)
}

func TestFetchCachesExternalCalls(t *testing.T) {
	static := provider.NewStaticProvider()
	static.Put("valuation", valuationTable())
	f := staticFetcher(static, testFetcherConfig())

	args := Args{
		Date:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Codes: []string{"000100", "005930"},
	}

	for i := 0; i < 3; i++ {
		table, err := f.Fetch(context.Background(), valuationPlan(), args)
		require.NoError(t, err)
		require.Len(t, table, 2)
	}

	assert.Equal(t, 1, static.Calls("valuation"), "repeated identical fetches must hit the source once")
}

func TestFetchDifferentBatchMissesCache(t *testing.T) {
	static := provider.NewStaticProvider()
	static.Put("valuation", valuationTable())
	f := staticFetcher(static, testFetcherConfig())

	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := f.Fetch(context.Background(), valuationPlan(), Args{Date: date, Codes: []string{"000100"}})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), valuationPlan(), Args{Date: date, Codes: []string{"005930"}})
	require.NoError(t, err)

	assert.Equal(t, 2, static.Calls("valuation"))
}

func TestCacheExpiryAndSweep(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	c := NewCache(8, nil)
	c.now = func() time.Time { return now }

	calls := 0
	fn := func() (contracts.Table, error) {
		calls++
		return valuationTable(), nil
	}

	_, err := c.GetOrFetch(context.Background(), "k", time.Minute, fn)
	require.NoError(t, err)
	_, err = c.GetOrFetch(context.Background(), "k", time.Minute, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	now = now.Add(2 * time.Minute)

	_, err = c.GetOrFetch(context.Background(), "k", time.Minute, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expired entry must be refetched")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestCacheEvictsLRU(t *testing.T) {
	c := NewCache(2, nil)

	fill := func(key string) {
		_, err := c.GetOrFetch(context.Background(), key, time.Hour, func() (contracts.Table, error) {
			return contracts.Table{}, nil
		})
		require.NoError(t, err)
	}

	fill("a")
	fill("b")
	fill("c") // evicts a

	assert.Equal(t, 2, c.Len())

	calls := 0
	_, err := c.GetOrFetch(context.Background(), "a", time.Hour, func() (contracts.Table, error) {
		calls++
		return contracts.Table{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "evicted key must refetch")
}

// flakyProvider fails transiently n times before succeeding.
type flakyProvider struct {
	failures int
	attempts int
	kind     contracts.FetchErrorKind
}

func (p *flakyProvider) Fetch(ctx context.Context, req provider.Request) (contracts.Table, error) {
	p.attempts++
	if p.attempts <= p.failures {
		return nil, &contracts.FetchError{
			Kind:   p.kind,
			Source: req.Source,
			Err:    fmt.Errorf("synthetic failure %d", p.attempts),
		}
	}
	return valuationTable(), nil
}

func TestRetryRecoversTransient(t *testing.T) {
	flaky := &flakyProvider{failures: 2, kind: contracts.FetchTransient}
	f := New(map[catalog.SourceKind]provider.Provider{catalog.KindStatic: flaky},
		NewCache(8, nil), testFetcherConfig(), testLogger())

	table, err := f.Fetch(context.Background(), valuationPlan(), Args{
		Date:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Codes: []string{"000100"},
	})
	require.NoError(t, err)
	assert.Len(t, table, 2)
	assert.Equal(t, 3, flaky.attempts)
}

func TestRetryExhaustsTransient(t *testing.T) {
	flaky := &flakyProvider{failures: 10, kind: contracts.FetchTransient}
	f := New(map[catalog.SourceKind]provider.Provider{catalog.KindStatic: flaky},
		NewCache(8, nil), testFetcherConfig(), testLogger())

	_, err := f.Fetch(context.Background(), valuationPlan(), Args{
		Date:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Codes: []string{"000100"},
	})
	require.Error(t, err)
	assert.Equal(t, 3, flaky.attempts, "attempts must stop at the configured maximum")
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	flaky := &flakyProvider{failures: 10, kind: contracts.FetchPermanent}
	f := New(map[catalog.SourceKind]provider.Provider{catalog.KindStatic: flaky},
		NewCache(8, nil), testFetcherConfig(), testLogger())

	_, err := f.Fetch(context.Background(), valuationPlan(), Args{
		Date:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Codes: []string{"000100"},
	})
	require.Error(t, err)
	assert.False(t, contracts.IsTransient(err))
	assert.Equal(t, 1, flaky.attempts)
}

func TestResolveParams(t *testing.T) {
	pf := catalog.PlannedFetch{
		Source: "valuation",
		Params: map[string]contracts.ParamBinding{
			"market": {Mode: contracts.BindFixed, Value: "kospi"},
			"period": {Mode: contracts.BindRequest, From: "period"},
			"date":   {Mode: contracts.BindDerived, From: contracts.KeyDate},
			"asof":   {Mode: contracts.BindDerived}, // empty From defaults to the run date
		},
	}
	args := Args{
		Date:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Request: map[string]string{"period": "annual"},
	}

	params, err := resolveParams(pf, args)
	require.NoError(t, err)
	assert.Equal(t, "kospi", params["market"])
	assert.Equal(t, "annual", params["period"])
	assert.Equal(t, "2024-01-02", params["date"])
	assert.Equal(t, "2024-01-02", params["asof"])
}

func TestResolveParamsMissingRequestArg(t *testing.T) {
	pf := catalog.PlannedFetch{
		Source: "valuation",
		Params: map[string]contracts.ParamBinding{
			"period": {Mode: contracts.BindRequest, From: "period"},
		},
	}

	_, err := resolveParams(pf, Args{Date: time.Now()})
	require.Error(t, err)

	var verr *contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, contracts.MissingRequiredParam, verr.Kind)
	assert.Equal(t, "period", verr.Name)
}

func TestSplitBatches(t *testing.T) {
	batches := splitBatches([]string{"a", "b", "c", "d", "e"}, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Nil(t, splitBatches(nil, 2))
}

func TestMergeTablesJoinsOnCodeAndDate(t *testing.T) {
	a := contracts.Table{
		{contracts.KeyCode: "005930", contracts.KeyDate: "2024-01-02", "pe": 11.5},
	}
	b := contracts.Table{
		{contracts.KeyCode: "005930", contracts.KeyDate: "2024-01-02", "roe": 0.14},
		{contracts.KeyCode: "000100", contracts.KeyDate: "2024-01-02", "roe": 0.09},
	}

	merged := mergeTables([]contracts.Table{a, b})
	require.Len(t, merged, 2)

	// Sorted by code ascending.
	assert.Equal(t, "000100", merged[0][contracts.KeyCode])
	assert.Equal(t, "005930", merged[1][contracts.KeyCode])

	// Columns from both sources land on the joined row.
	assert.Equal(t, 11.5, merged[1]["pe"])
	assert.Equal(t, 0.14, merged[1]["roe"])
}
