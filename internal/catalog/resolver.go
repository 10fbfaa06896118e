package catalog

import (
	"time"

	"github.com/dkwon/alpharank/internal/contracts"
)

// PlannedFetch is one concrete source call the fetcher will execute.
// Parameter bindings stay symbolic here; the fetcher resolves request and
// derived bindings against the run arguments.
type PlannedFetch struct {
	Source    string
	Kind      SourceKind
	Endpoint  string
	Axis      string
	Fields    []string
	Params    map[string]contracts.ParamBinding
	RateLimit RateLimitPolicy
	MaxBatch  int
	TTL       time.Duration
}

// FetchPlan is the resolved form of a SelectionSpec.
type FetchPlan struct {
	Fetches []PlannedFetch
}

// Resolver binds selections against the registered catalog.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver over a registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve validates a selection against the catalog and produces a fetch
// plan. Validation is strict: unknown fields and unbound required
// parameters are rejected with the offending name, never auto-corrected.
func (r *Resolver) Resolve(selection contracts.SelectionSpec) (*FetchPlan, error) {
	plan := &FetchPlan{Fetches: make([]PlannedFetch, 0, len(selection.Selects))}

	for _, sel := range selection.Selects {
		desc, ok := r.registry.Get(sel.Source)
		if !ok {
			return nil, &contracts.ValidationError{
				Kind: contracts.UnknownSource,
				Name: sel.Source,
				Msg:  "source is not in the catalog",
			}
		}

		for _, field := range sel.Fields {
			if !desc.HasField(field) {
				return nil, &contracts.ValidationError{
					Kind: contracts.UnknownField,
					Name: field,
					Msg:  "field is not declared by source " + desc.Name,
				}
			}
		}

		params := make(map[string]contracts.ParamBinding, len(sel.Params))
		for name, binding := range sel.Params {
			params[name] = binding
		}

		for _, spec := range desc.Params {
			if _, bound := params[spec.Name]; bound {
				continue
			}
			if spec.Default != "" {
				params[spec.Name] = contracts.ParamBinding{
					Mode:  contracts.BindFixed,
					Value: spec.Default,
				}
				continue
			}
			if spec.Required {
				return nil, &contracts.ValidationError{
					Kind: contracts.MissingRequiredParam,
					Name: spec.Name,
					Msg:  "required parameter of source " + desc.Name + " has no binding",
				}
			}
		}

		fields := make([]string, len(sel.Fields))
		copy(fields, sel.Fields)

		plan.Fetches = append(plan.Fetches, PlannedFetch{
			Source:    desc.Name,
			Kind:      desc.Kind,
			Endpoint:  desc.Endpoint,
			Axis:      desc.Axis,
			Fields:    fields,
			Params:    params,
			RateLimit: desc.RateLimit,
			MaxBatch:  desc.MaxBatch,
			TTL:       desc.TTL,
		})
	}

	return plan, nil
}
