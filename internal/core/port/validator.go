package port

// QueryValidator gates every candidate statement before execution and
// rewrites accepted statements to enforce the row-limit ceiling.
type QueryValidator interface {
	// Validate returns nil for an accepted statement, or an error wrapping
	// one of the domain sentinel errors for a rejected one.
	Validate(sql string) error
	// HasLimit reports whether the statement already carries a LIMIT clause.
	HasLimit(sql string) bool
	// EnforceLimit bounds the statement's row count. Only ever called on
	// accepted statements; cannot fail.
	EnforceLimit(sql string, requested int) string
}
