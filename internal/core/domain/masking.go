package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType represents a column masking strategy from the table dictionary.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid returns true if the MaskType is a recognised masking strategy
// (including the zero value "", which means "no mask").
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a value according to the mask type.
// Masked values may change type (e.g. int -> string for hash/partial).
// MaskNull returns nil, which is indistinguishable from SQL NULL.
func ApplyMask(value any, maskType MaskType) any {
	if value == nil {
		return nil
	}

	switch maskType {
	case MaskRedact:
		return "***"
	case MaskHash:
		s := fmt.Sprintf("%v", value)
		h := sha256.Sum256([]byte(s))
		return fmt.Sprintf("%x", h)
	case MaskPartial:
		return maskPartial(value)
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial reveals only the last 4 characters, replacing the rest with
// asterisks. Works correctly with multi-byte (unicode) strings.
func maskPartial(value any) string {
	s := fmt.Sprintf("%v", value)
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	masked := make([]rune, len(runes))
	for i := range masked {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// ResolveMaskAliases returns a mask map extended with the output aliases
// of any masked column, so that SELECT customer_name AS name cannot slip
// past a mask keyed on customer_name. The input map is never modified.
func ResolveMaskAliases(sql string, masks map[string]MaskType) map[string]MaskType {
	if len(masks) == 0 {
		return masks
	}
	aliases := ExtractAliasMap(sql)
	if len(aliases) == 0 {
		return masks
	}
	resolved := make(map[string]MaskType, len(masks)+len(aliases))
	for col, mt := range masks {
		resolved[col] = mt
		if alias, ok := aliases[col]; ok {
			resolved[alias] = mt
		}
	}
	return resolved
}

// MaskResult applies column masks to a result set in place. Rows are
// positional tuples aligned with the columns slice; matching is by column
// name only.
func MaskResult(columns []string, rows [][]any, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for i, col := range columns {
		maskType, ok := masks[col]
		if !ok {
			continue
		}
		for _, row := range rows {
			if i < len(row) {
				row[i] = ApplyMask(row[i], maskType)
			}
		}
	}
}
