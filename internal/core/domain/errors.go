package domain

import "errors"

var (
	ErrTooLong          = errors.New("query exceeds maximum length")
	ErrEmptyQuery       = errors.New("empty query")
	ErrMultiStatement   = errors.New("multiple statements are not allowed")
	ErrParseFailed      = errors.New("failed to parse SQL")
	ErrForbiddenKeyword = errors.New("forbidden keyword detected")
	ErrNotSelect        = errors.New("only SELECT queries are allowed")
	ErrTableNotAllowed  = errors.New("query does not reference the allowed table")
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
)

// Reason maps a validation error to a stable snake_case identifier for
// audit records and API responses. Unknown errors map to "internal_error".
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooLong):
		return "too_long"
	case errors.Is(err, ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, ErrMultiStatement):
		return "multiple_statements"
	case errors.Is(err, ErrParseFailed):
		return "parse_error"
	case errors.Is(err, ErrForbiddenKeyword):
		return "forbidden_keyword"
	case errors.Is(err, ErrNotSelect):
		return "not_a_select"
	case errors.Is(err, ErrTableNotAllowed):
		return "table_not_allowed"
	default:
		return "internal_error"
	}
}
