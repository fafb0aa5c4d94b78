package domain

import (
	"regexp"
	"strings"
)

var (
	fenceRe = regexp.MustCompile("(?i)```(?:sql)?\n?")
	labelRe = regexp.MustCompile(`(?i)^(SQL Query:|Query:|Answer:)\s*`)
)

// Extract reduces raw generator output to a single candidate SQL statement.
// It strips markdown code fences and leading label tokens, drops blank lines
// and comment lines, joins the rest with single spaces, and stops at the
// first line ending in ";". The result always carries exactly one trailing
// semicolon. No SQL validation happens here.
func Extract(raw string) string {
	text := fenceRe.ReplaceAllString(raw, "")
	text = labelRe.ReplaceAllString(text, "")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "--") {
			continue
		}
		lines = append(lines, line)
		if strings.HasSuffix(line, ";") {
			break
		}
	}

	sql := strings.TrimSpace(strings.Join(lines, " "))
	if !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	return sql
}
