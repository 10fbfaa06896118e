package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkwon/alpharank/internal/contracts"
)

// StaticProvider serves tables from memory. Used by tests, the dev
// catalog and the sample universe of factor test runs.
type StaticProvider struct {
	mu     sync.RWMutex
	tables map[string]contracts.Table // source name -> full table
	calls  map[string]int             // source name -> fetch count
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		tables: make(map[string]contracts.Table),
		calls:  make(map[string]int),
	}
}

// Put registers the table served for a source.
func (p *StaticProvider) Put(source string, table contracts.Table) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tables[source] = table
}

// Calls returns how many times a source was fetched.
func (p *StaticProvider) Calls(source string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls[source]
}

// Fetch filters the stored table down to the requested codes.
func (p *StaticProvider) Fetch(ctx context.Context, req Request) (contracts.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, &contracts.FetchError{Kind: contracts.FetchTransient, Source: req.Source, Err: err}
	}

	p.mu.Lock()
	table, ok := p.tables[req.Source]
	p.calls[req.Source]++
	p.mu.Unlock()

	if !ok {
		return nil, &contracts.FetchError{
			Kind:   contracts.FetchPermanent,
			Source: req.Source,
			Err:    fmt.Errorf("no static table for source"),
		}
	}

	if len(req.Codes) == 0 {
		return table, nil
	}

	want := make(map[string]bool, len(req.Codes))
	for _, c := range req.Codes {
		want[c] = true
	}

	out := make(contracts.Table, 0, len(table))
	for _, row := range table {
		if code, ok := row[contracts.KeyCode].(string); ok && want[code] {
			out = append(out, row)
		}
	}
	return out, nil
}
