package contracts

import "sort"

// BindingMode describes how a source parameter obtains its value.
type BindingMode string

const (
	BindFixed   BindingMode = "fixed"   // constant stored with the selection
	BindRequest BindingMode = "request" // supplied by the run request
	BindDerived BindingMode = "derived" // computed by the engine (e.g. run date)
)

// ParamBinding binds one source parameter.
type ParamBinding struct {
	Mode  BindingMode `json:"mode" yaml:"mode"`
	Value string      `json:"value,omitempty" yaml:"value,omitempty"` // fixed value
	From  string      `json:"from,omitempty" yaml:"from,omitempty"`   // request arg or derivation name
}

// Select requests a set of fields from one data source.
type Select struct {
	Source string                  `json:"source" yaml:"source"`
	Fields []string                `json:"fields" yaml:"fields"`
	Params map[string]ParamBinding `json:"params,omitempty" yaml:"params,omitempty"`
}

// SelectionSpec declares the data a factor consumes. Join keys are
// implicit: every source table carries code and date columns.
type SelectionSpec struct {
	Selects []Select `json:"selects" yaml:"selects"`
}

// FieldSet returns the sorted union of requested fields across selects.
// Join keys are not part of the field set.
func (s SelectionSpec) FieldSet() []string {
	seen := make(map[string]bool)
	for _, sel := range s.Selects {
		for _, f := range sel.Fields {
			seen[f] = true
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// HasField reports whether the selection requests the given field.
func (s SelectionSpec) HasField(name string) bool {
	for _, sel := range s.Selects {
		for _, f := range sel.Fields {
			if f == name {
				return true
			}
		}
	}
	return false
}
