package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/pkg/httputil"
	"github.com/dkwon/alpharank/pkg/logger"
)

// HTTPProvider fetches JSON row arrays from a REST endpoint. The expected
// response body is a JSON array of objects keyed by column name.
type HTTPProvider struct {
	httpClient *httputil.Client
	logger     *logger.Logger
}

// NewHTTPProvider creates a JSON API provider.
func NewHTTPProvider(httpClient *httputil.Client, log *logger.Logger) *HTTPProvider {
	return &HTTPProvider{
		httpClient: httpClient,
		logger:     log,
	}
}

// Fetch performs one GET against the source endpoint.
func (p *HTTPProvider) Fetch(ctx context.Context, req Request) (contracts.Table, error) {
	query := url.Values{}
	for k, v := range req.Params {
		query.Set(k, v)
	}
	if len(req.Codes) > 0 {
		query.Set("codes", strings.Join(req.Codes, ","))
	}
	if len(req.Fields) > 0 {
		query.Set("fields", strings.Join(req.Fields, ","))
	}

	fullURL := fmt.Sprintf("%s?%s", req.Endpoint, query.Encode())

	resp, err := p.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, classifyNetErr(req.Source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(req.Source, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &contracts.FetchError{
			Kind:   contracts.FetchTransient,
			Source: req.Source,
			Err:    fmt.Errorf("read response body: %w", err),
		}
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		// A malformed body is a schema mismatch, not worth retrying.
		return nil, &contracts.FetchError{
			Kind:   contracts.FetchPermanent,
			Source: req.Source,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}

	table := make(contracts.Table, 0, len(rows))
	for _, row := range rows {
		table = append(table, contracts.Row(row))
	}

	p.logger.WithFields(map[string]interface{}{
		"source": req.Source,
		"codes":  len(req.Codes),
		"rows":   len(table),
	}).Debug("Fetched rows")

	return table, nil
}

// classifyStatus maps HTTP status codes onto the fetch failure taxonomy.
func classifyStatus(source string, status int) *contracts.FetchError {
	kind := contracts.FetchPermanent
	if status >= 500 || status == http.StatusTooManyRequests {
		kind = contracts.FetchTransient
	}
	return &contracts.FetchError{
		Kind:   kind,
		Source: source,
		Err:    fmt.Errorf("unexpected status code: %d", status),
	}
}

// classifyNetErr treats timeouts and connection errors as transient.
func classifyNetErr(source string, err error) *contracts.FetchError {
	kind := contracts.FetchPermanent
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		kind = contracts.FetchTransient
	}
	return &contracts.FetchError{
		Kind:   kind,
		Source: source,
		Err:    err,
	}
}
