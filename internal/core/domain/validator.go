package domain

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// forbiddenKeywords are scanned in this exact order; the first match wins.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
	"MERGE", "REPLACE", "CALL", "LOCK", "UNLOCK",
}

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	limitClauseRe  = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+|ALL)\b`)

	keywordRes = compileKeywordPatterns()
)

func compileKeywordPatterns() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(forbiddenKeywords))
	for i, kw := range forbiddenKeywords {
		// Word-boundary match so column names like "created_at" never
		// trip the CREATE check.
		res[i] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return res
}

// Policy is the immutable configuration governing what the validator accepts.
type Policy struct {
	Schema         string // allowed schema, e.g. "public"
	Table          string // the single allowed table name
	DefaultLimit   int    // applied when the caller requests no limit
	MaxLimit       int    // hard ceiling on any row limit
	MaxQueryLength int    // candidate statements longer than this are rejected outright
}

// SQLValidator is the safety gate between generated SQL and a live database.
// It is a policy engine, not a full parser: conservative by design, it rejects
// on ambiguity rather than guessing. Stateless per call and safe for
// concurrent use.
type SQLValidator struct {
	policy Policy
}

func NewSQLValidator(policy Policy) *SQLValidator {
	return &SQLValidator{policy: policy}
}

// Validate classifies a candidate statement as safe or unsafe. A nil return
// means accepted. Every non-nil error wraps one of the sentinel errors in
// errors.go; Reason turns it into a stable identifier. Rejection is terminal:
// the statement must never reach the executor.
func (v *SQLValidator) Validate(sql string) error {
	if v.policy.MaxQueryLength > 0 && len(sql) > v.policy.MaxQueryLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLong, len(sql), v.policy.MaxQueryLength)
	}

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ErrEmptyQuery
	}

	// Strip comments first so they cannot hide a second statement or a
	// forbidden keyword from the checks below.
	clean := lineCommentRe.ReplaceAllString(trimmed, "")
	clean = blockCommentRe.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)

	// One trailing semicolon is legitimate; any other semicolon means
	// statement chaining, the primary injection vector.
	if strings.Contains(strings.TrimSuffix(clean, ";"), ";") {
		return ErrMultiStatement
	}

	// Defense in depth: run the real PostgreSQL parser over the statement.
	// A parse failure is a rejection, never "assume safe".
	if _, err := pg_query.Parse(clean); err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	for i, re := range keywordRes {
		if re.MatchString(clean) {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, forbiddenKeywords[i])
		}
	}

	if !strings.HasPrefix(strings.ToUpper(clean), "SELECT") {
		return ErrNotSelect
	}

	// Coarse substring scope check. Known limitation: a table name inside a
	// string literal passes, and alias-only references fail. See DESIGN.md.
	if !strings.Contains(strings.ToLower(clean), strings.ToLower(v.policy.Table)) {
		return fmt.Errorf("%w: %s", ErrTableNotAllowed, v.policy.Table)
	}

	return nil
}

// HasLimit reports whether the statement already carries a LIMIT clause.
// Absence is not a rejection; callers log it and rely on EnforceLimit.
func (v *SQLValidator) HasLimit(sql string) bool {
	return limitClauseRe.MatchString(sql)
}

// EnforceLimit rewrites an accepted statement so that it carries exactly one
// LIMIT clause bounded by the policy ceiling. A requested limit of zero or
// less means "use the policy default". An existing LIMIT is always normalized
// to the effective value, even when it was already below the cap. This step
// cannot fail and is idempotent.
func (v *SQLValidator) EnforceLimit(sql string, requested int) string {
	limit := requested
	if limit <= 0 {
		limit = v.policy.DefaultLimit
	}
	if limit > v.policy.MaxLimit {
		limit = v.policy.MaxLimit
	}

	if limitClauseRe.MatchString(sql) {
		return limitClauseRe.ReplaceAllString(sql, fmt.Sprintf("LIMIT %d", limit))
	}

	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")
	return fmt.Sprintf("%s LIMIT %d;", sql, limit)
}

// Policy returns a copy of the validator's policy.
func (v *SQLValidator) Policy() Policy {
	return v.policy
}
