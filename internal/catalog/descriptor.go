package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SourceKind selects the provider implementation for a source.
type SourceKind string

const (
	KindHTTP   SourceKind = "http"   // JSON API
	KindScrape SourceKind = "scrape" // HTML table scraping
	KindStatic SourceKind = "static" // in-memory, for tests and dev
)

// ParamSpec declares one parameter a source accepts.
type ParamSpec struct {
	Name     string `yaml:"name" json:"name"`
	Required bool   `yaml:"required" json:"required"`
	Default  string `yaml:"default,omitempty" json:"default,omitempty"`
}

// RateLimitPolicy is the token-bucket policy for one source.
type RateLimitPolicy struct {
	QPS   float64 `yaml:"qps" json:"qps"`
	Burst int     `yaml:"burst" json:"burst"`
}

// DataSourceDescriptor describes one external data source. Descriptors
// are immutable once registered.
type DataSourceDescriptor struct {
	Name      string          `yaml:"name" json:"name"`
	Kind      SourceKind      `yaml:"kind" json:"kind"`
	Axis      string          `yaml:"axis" json:"axis"` // primary time dimension, e.g. "date"
	Endpoint  string          `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Fields    []string        `yaml:"fields" json:"fields"`
	Params    []ParamSpec     `yaml:"params,omitempty" json:"params,omitempty"`
	RateLimit RateLimitPolicy `yaml:"rate_limit" json:"rate_limit"`
	MaxBatch  int             `yaml:"max_batch" json:"max_batch"`
	TTL       time.Duration   `yaml:"ttl" json:"ttl"` // cache lifetime for fetched tables
}

// HasField reports whether the descriptor declares the field.
func (d *DataSourceDescriptor) HasField(name string) bool {
	for _, f := range d.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// RequiredParams returns the names of all required parameters.
func (d *DataSourceDescriptor) RequiredParams() []string {
	out := make([]string, 0)
	for _, p := range d.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Registry holds all registered source descriptors. Registration happens
// at startup; lookups afterwards are concurrent-safe.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*DataSourceDescriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]*DataSourceDescriptor)}
}

// Register adds a descriptor. Re-registering a name is an error: a
// descriptor is immutable once registered.
func (r *Registry) Register(d *DataSourceDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("source %s declares no fields", d.Name)
	}
	if d.MaxBatch <= 0 {
		d.MaxBatch = 50
	}
	if d.TTL <= 0 {
		d.TTL = 24 * time.Hour
	}
	if d.RateLimit.QPS <= 0 {
		d.RateLimit.QPS = 5
	}
	if d.RateLimit.Burst <= 0 {
		d.RateLimit.Burst = int(d.RateLimit.QPS)
		if d.RateLimit.Burst < 1 {
			d.RateLimit.Burst = 1
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[d.Name]; exists {
		return fmt.Errorf("source %s is already registered", d.Name)
	}
	r.sources[d.Name] = d
	return nil
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (*DataSourceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sources[name]
	return d, ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []*DataSourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DataSourceDescriptor, 0, len(r.sources))
	for _, d := range r.sources {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
