package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/pkg/httputil"
	"github.com/dkwon/alpharank/pkg/logger"
)

const samplePage = `
<html><body>
<table>
  <tr><th>pe</th><th>pb</th><th>note</th></tr>
  <tr><td>9.5</td><td>1.2</td><td>ok</td></tr>
  <tr><td>12,300.5</td><td>0.8</td><td>ok</td></tr>
</table>
</body></html>`

func testLogger() *logger.Logger {
	return logger.NewWriter(nullWriter{})
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestScrapeProviderParsesTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("code"))
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	p := NewScrapeProvider(httputil.New(testLogger()), testLogger())

	table, err := p.Fetch(context.Background(), Request{
		Source:   "valuation",
		Endpoint: srv.URL,
		Fields:   []string{"pe", "pb"},
		Params:   map[string]string{"date": "2024-01-01"},
		Codes:    []string{"005930"},
	})
	require.NoError(t, err)
	require.Len(t, table, 2)

	assert.Equal(t, "005930", table[0][contracts.KeyCode])
	assert.Equal(t, "2024-01-01", table[0][contracts.KeyDate])
	assert.Equal(t, 9.5, table[0]["pe"])
	assert.Equal(t, 12300.5, table[1]["pe"])

	// Unrequested columns are dropped.
	_, hasNote := table[0]["note"]
	assert.False(t, hasNote)
}

func TestScrapeProviderStatusClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewScrapeProvider(httputil.New(testLogger()), testLogger())

	_, err := p.Fetch(context.Background(), Request{
		Source:   "valuation",
		Endpoint: srv.URL,
		Codes:    []string{"005930"},
	})
	require.Error(t, err)
	assert.True(t, contracts.IsTransient(err), "5xx must classify as transient")
}

func TestHTTPProviderPermanentOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPProvider(httputil.New(testLogger()), testLogger())

	_, err := p.Fetch(context.Background(), Request{
		Source:   "valuation",
		Endpoint: srv.URL,
		Codes:    []string{"005930"},
	})
	require.Error(t, err)
	assert.False(t, contracts.IsTransient(err), "4xx must classify as permanent")
}

func TestHTTPProviderDecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"code":"005930","date":"2024-01-01","pe":9.1}]`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(httputil.New(testLogger()), testLogger())

	table, err := p.Fetch(context.Background(), Request{
		Source:   "valuation",
		Endpoint: srv.URL,
		Fields:   []string{"pe"},
		Codes:    []string{"005930"},
	})
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, 9.1, table[0]["pe"])
}

func TestHTTPProviderSchemaMismatchPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(httputil.New(testLogger()), testLogger())

	_, err := p.Fetch(context.Background(), Request{Source: "valuation", Endpoint: srv.URL})
	require.Error(t, err)
	assert.False(t, contracts.IsTransient(err), "schema mismatch must be permanent")
}
