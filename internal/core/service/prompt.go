package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tellusko/tellusko/internal/core/port"
)

const sqlSystemPrompt = "You are a SQL expert assistant. Generate safe, efficient PostgreSQL queries."

const summarySystemPrompt = "You are a data analyst. Summarize query results in clear business language."

// memoryContext holds the layered conversational context assembled for a
// single request.
type memoryContext struct {
	userMemory     string
	sessionSummary string
	oldSummary     string
	recent         []port.ChatMessage
}

func (m memoryContext) render() string {
	var b strings.Builder
	if m.userMemory != "" {
		fmt.Fprintf(&b, "User Memory (long-term):\n%s\n\n", m.userMemory)
	}
	if m.sessionSummary != "" {
		fmt.Fprintf(&b, "Session Summary:\n%s\n\n", m.sessionSummary)
	}
	if m.oldSummary != "" {
		fmt.Fprintf(&b, "Condensed Past Chat:\n%s\n\n", m.oldSummary)
	}
	if len(m.recent) > 0 {
		b.WriteString("Recent Conversation:\n")
		for _, msg := range m.recent {
			fmt.Fprintf(&b, "%s: %s\n", capitalize(msg.Role), msg.Content)
		}
	}
	return b.String()
}

// buildSQLPrompt assembles the generation prompt: conversational context,
// table schema, the fixed safety rules, and the user's question.
func buildSQLPrompt(schemaDesc, schema, table string, mem memoryContext, defaultLimit int, question string) string {
	var b strings.Builder

	if ctx := mem.render(); ctx != "" {
		b.WriteString(ctx)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Database Schema:\n%s\n\n", schemaDesc)
	fmt.Fprintf(&b, `IMPORTANT RULES:
1. ONLY use SELECT statements
2. ONLY query the table: %s.%s
3. Use proper PostgreSQL syntax
4. Always include a LIMIT clause (max %d)
5. Return ONLY the SQL query, no explanations
6. Use double quotes for column names if they contain special characters

`, schema, table, defaultLimit)
	fmt.Fprintf(&b, "User Question: %s\n\nSQL Query:", question)

	return b.String()
}

// buildSummaryPrompt asks the generator for a short business summary of the
// executed query's results. Only the first sampleSize rows are included.
func buildSummaryPrompt(question, sql string, result *port.QueryResult) string {
	const sampleSize = 10

	sample := make([]map[string]any, 0, sampleSize)
	for i, row := range result.Rows {
		if i >= sampleSize {
			break
		}
		m := make(map[string]any, len(result.Columns))
		for j, col := range result.Columns {
			if j < len(row) {
				m[col] = row[j]
			}
		}
		sample = append(sample, m)
	}
	sampleJSON, _ := json.MarshalIndent(sample, "", "  ")

	var b strings.Builder
	b.WriteString("Analyze these query results and provide a clear, concise business summary.\n\n")
	fmt.Fprintf(&b, "Original Question: %s\n\n", question)
	fmt.Fprintf(&b, "SQL Query: %s\n\n", sql)
	fmt.Fprintf(&b, "Results Summary:\n- Total rows returned: %d\n- Columns: %s\n\n", len(result.Rows), strings.Join(result.Columns, ", "))
	fmt.Fprintf(&b, "Sample Data (first %d rows):\n%s\n", sampleSize, sampleJSON)

	if stats := numericStats(result); stats != "" {
		b.WriteString(stats)
	}

	b.WriteString(`
Provide a 2-3 sentence natural language summary that:
1. Answers the user's question directly
2. Highlights key insights from the data
3. Uses business-friendly language (no technical jargon)

Summary:`)

	return b.String()
}

// numericStats computes min/max/avg per numeric column so the summary has
// concrete figures even when the model ignores the sample data.
func numericStats(result *port.QueryResult) string {
	var b strings.Builder

	for i, col := range result.Columns {
		var vals []float64
		for _, row := range result.Rows {
			if i >= len(row) {
				continue
			}
			if f, ok := toFloat(row[i]); ok {
				vals = append(vals, f)
			}
		}
		if len(vals) == 0 || len(vals) < len(result.Rows) {
			continue
		}
		min, max, sum := vals[0], vals[0], 0.0
		for _, v := range vals {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		fmt.Fprintf(&b, "  - %s: min=%g, max=%g, avg=%.2f\n", col, min, max, sum/float64(len(vals)))
	}

	if b.Len() == 0 {
		return ""
	}
	return "\nBasic Statistics:\n" + b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// buildCondensePrompt asks the generator to shrink old conversation turns
// into a few lines so the prompt stays bounded as sessions grow.
func buildCondensePrompt(messages []port.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Summarize this past conversation in 2-3 lines:\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
