package contracts

import (
	"sort"
	"time"
)

// Join key column names shared by every fetched and computed table.
const (
	KeyCode = "code" // entity identifier
	KeyDate = "date" // calendar date, formatted as 2006-01-02
)

// JoinKeys returns the canonical join key columns.
func JoinKeys() []string {
	return []string{KeyCode, KeyDate}
}

// Row is a single field-named record.
type Row map[string]interface{}

// Table is a list of rows. All data moving between the fetcher, the
// sandbox and the engine uses this shape.
type Table []Row

// Columns returns the sorted union of column names across all rows.
func (t Table) Columns() []string {
	seen := make(map[string]bool)
	for _, row := range t {
		for k := range row {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// FilterByCode returns the rows belonging to a single entity.
func (t Table) FilterByCode(code string) Table {
	out := make(Table, 0)
	for _, row := range t {
		if c, ok := row[KeyCode].(string); ok && c == code {
			out = append(out, row)
		}
	}
	return out
}

// AsFloat converts the loosely typed values that cross the JSON and
// sandbox boundaries into float64.
func AsFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// AsString converts a cell value into a string if possible.
func AsString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// FactorValue is one raw or standardized factor observation.
type FactorValue struct {
	Code  string  `json:"code"`
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// CompositeScoreRow is one entry of the ranked output.
type CompositeScoreRow struct {
	Code          string             `json:"code"`
	Date          string             `json:"date"`
	Score         float64            `json:"score"`
	Rank          int                `json:"rank"`
	Contributions map[string]float64 `json:"contributions"` // factor id -> weighted standardized value
}

// DateString formats a time as the canonical table date.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}
