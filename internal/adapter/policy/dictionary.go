package policy

import (
	"fmt"

	"github.com/tellusko/tellusko/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Dictionary holds operator-controlled business context for the allowed
// table, loaded from a YAML file. Column descriptions are folded into the
// LLM prompt; mask directives apply PII masking to result sets.
type Dictionary struct {
	Table TableEntry `yaml:"table"`
}

// TableEntry describes the allowed table and its columns.
type TableEntry struct {
	Description string                 `yaml:"description"`
	Columns     map[string]ColumnEntry `yaml:"columns"`
}

// ColumnEntry holds a column's business description and optional mask directive.
type ColumnEntry struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML supports both the struct format and a plain-string shorthand.
//
//	columns:
//	  company: "Supplier company name"   # shorthand: plain string
//	  customer_name:                     # struct with optional mask
//	    description: "Buyer's full name"
//	    mask: "redact"
func (ce *ColumnEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		ce.Description = value.Value
		return nil
	}
	// Decode as struct (avoid infinite recursion by using an alias type).
	type alias ColumnEntry
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column entry: %w", err)
	}
	*ce = ColumnEntry(a)
	return nil
}

// Descriptions returns the column-name to business-description map.
func (d *Dictionary) Descriptions() map[string]string {
	if d == nil {
		return nil
	}
	descs := make(map[string]string, len(d.Table.Columns))
	for col, ce := range d.Table.Columns {
		if ce.Description != "" {
			descs[col] = ce.Description
		}
	}
	return descs
}

// Masks returns the column-name to mask-type map for result masking.
func (d *Dictionary) Masks() map[string]domain.MaskType {
	if d == nil {
		return nil
	}
	masks := make(map[string]domain.MaskType)
	for col, ce := range d.Table.Columns {
		if ce.Mask != "" {
			masks[col] = ce.Mask
		}
	}
	return masks
}
