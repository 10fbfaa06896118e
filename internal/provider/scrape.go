package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/pkg/httputil"
	"github.com/dkwon/alpharank/pkg/logger"
)

// ScrapeProvider fetches snapshot-style sources published as HTML tables.
// One page is fetched per entity code; the first <table> on the page is
// parsed with its header row as column names.
type ScrapeProvider struct {
	httpClient *httputil.Client
	logger     *logger.Logger
}

// NewScrapeProvider creates an HTML table provider.
func NewScrapeProvider(httpClient *httputil.Client, log *logger.Logger) *ScrapeProvider {
	return &ScrapeProvider{
		httpClient: httpClient,
		logger:     log,
	}
}

// Fetch retrieves and parses one page per entity code.
func (p *ScrapeProvider) Fetch(ctx context.Context, req Request) (contracts.Table, error) {
	table := make(contracts.Table, 0, len(req.Codes))

	for _, code := range req.Codes {
		select {
		case <-ctx.Done():
			return nil, &contracts.FetchError{
				Kind:   contracts.FetchTransient,
				Source: req.Source,
				Err:    ctx.Err(),
			}
		default:
		}

		rows, err := p.fetchPage(ctx, req, code)
		if err != nil {
			return nil, err
		}
		table = append(table, rows...)
	}

	p.logger.WithFields(map[string]interface{}{
		"source": req.Source,
		"codes":  len(req.Codes),
		"rows":   len(table),
	}).Debug("Scraped rows")

	return table, nil
}

func (p *ScrapeProvider) fetchPage(ctx context.Context, req Request, code string) (contracts.Table, error) {
	query := url.Values{}
	for k, v := range req.Params {
		query.Set(k, v)
	}
	query.Set("code", code)
	fullURL := fmt.Sprintf("%s?%s", req.Endpoint, query.Encode())

	resp, err := p.httpClient.GetWithHeaders(ctx, fullURL, map[string]string{
		"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	})
	if err != nil {
		return nil, classifyNetErr(req.Source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(req.Source, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &contracts.FetchError{
			Kind:   contracts.FetchPermanent,
			Source: req.Source,
			Err:    fmt.Errorf("parse HTML: %w", err),
		}
	}

	rows, err := parseFirstTable(doc, req.Fields)
	if err != nil {
		return nil, &contracts.FetchError{
			Kind:   contracts.FetchPermanent,
			Source: req.Source,
			Err:    err,
		}
	}

	date := req.Params["date"]
	for i := range rows {
		rows[i][contracts.KeyCode] = code
		if _, ok := rows[i][contracts.KeyDate]; !ok && date != "" {
			rows[i][contracts.KeyDate] = date
		}
	}

	return rows, nil
}

// parseFirstTable reads the first <table> of a document. Header cells
// become column names; only requested fields and join keys are kept.
func parseFirstTable(doc *goquery.Document, fields []string) (contracts.Table, error) {
	sel := doc.Find("table").First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("no table in document")
	}

	wanted := make(map[string]bool, len(fields)+2)
	for _, f := range fields {
		wanted[f] = true
	}
	wanted[contracts.KeyCode] = true
	wanted[contracts.KeyDate] = true

	headers := make([]string, 0)
	sel.Find("tr").First().Find("th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(th.Text()))
	})
	if len(headers) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}

	out := make(contracts.Table, 0)
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}

		row := contracts.Row{}
		cells.Each(func(j int, td *goquery.Selection) {
			if j >= len(headers) || !wanted[headers[j]] {
				return
			}
			row[headers[j]] = parseCell(strings.TrimSpace(td.Text()))
		})
		if len(row) > 0 {
			out = append(out, row)
		}
	})

	return out, nil
}

// parseCell converts "1,234.5" style numerics; anything else stays text.
func parseCell(s string) interface{} {
	cleaned := strings.ReplaceAll(s, ",", "")
	if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return v
	}
	return s
}
