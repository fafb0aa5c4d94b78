package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML dictionary file and returns a validated Dictionary.
func LoadFromFile(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary file: %w", err)
	}

	var dict Dictionary
	if err := yaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary YAML: %w", err)
	}

	if err := validate(&dict); err != nil {
		return nil, fmt.Errorf("validating dictionary: %w", err)
	}

	return &dict, nil
}

func validate(dict *Dictionary) error {
	for col, ce := range dict.Table.Columns {
		if col == "" {
			return fmt.Errorf("table.columns contains an empty key")
		}
		if !ce.Mask.Valid() {
			return fmt.Errorf("table.columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", col, ce.Mask)
		}
	}
	return nil
}
