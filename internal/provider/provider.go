package provider

import (
	"context"

	"github.com/dkwon/alpharank/internal/contracts"
)

// Request is one concrete external call after parameter resolution.
type Request struct {
	Source   string
	Endpoint string
	Fields   []string
	Params   map[string]string // fully resolved
	Codes    []string          // entity batch, at most the source's max batch
}

// Provider executes one external call against a data source. A provider
// does not retry and does not rate-limit: both belong to the fetcher.
// Providers classify their failures as FetchError{Transient, Permanent}.
type Provider interface {
	Fetch(ctx context.Context, req Request) (contracts.Table, error)
}
