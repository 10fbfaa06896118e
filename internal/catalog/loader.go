package catalog

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of the catalog. Durations are parsed
// from strings so the YAML stays readable ("24h", "10m").
type catalogFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	Name      string          `yaml:"name"`
	Kind      string          `yaml:"kind"`
	Axis      string          `yaml:"axis"`
	Endpoint  string          `yaml:"endpoint"`
	Fields    []string        `yaml:"fields"`
	Params    []ParamSpec     `yaml:"params"`
	RateLimit RateLimitPolicy `yaml:"rate_limit"`
	MaxBatch  int             `yaml:"max_batch"`
	TTL       string          `yaml:"ttl"`
}

// Load reads a YAML catalog file into a Registry. Unknown YAML fields
// fail immediately so typos never silently drop configuration.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from raw catalog YAML.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("catalog declares no sources")
	}

	registry := NewRegistry()
	for _, entry := range file.Sources {
		desc := &DataSourceDescriptor{
			Name:      entry.Name,
			Kind:      SourceKind(entry.Kind),
			Axis:      entry.Axis,
			Endpoint:  entry.Endpoint,
			Fields:    entry.Fields,
			Params:    entry.Params,
			RateLimit: entry.RateLimit,
			MaxBatch:  entry.MaxBatch,
		}

		switch desc.Kind {
		case KindHTTP, KindScrape, KindStatic:
		case "":
			desc.Kind = KindHTTP
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", entry.Name, entry.Kind)
		}

		if entry.TTL != "" {
			ttl, err := time.ParseDuration(entry.TTL)
			if err != nil {
				return nil, fmt.Errorf("source %s: bad ttl %q: %w", entry.Name, entry.TTL, err)
			}
			desc.TTL = ttl
		}

		if err := registry.Register(desc); err != nil {
			return nil, fmt.Errorf("register source: %w", err)
		}
	}

	return registry, nil
}
