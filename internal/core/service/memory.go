package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tellusko/tellusko/internal/core/port"
)

// assembleMemory gathers the layered context for the generation prompt.
// Every layer is best-effort: a failing store degrades the prompt, it never
// fails the request.
func (s *QueryService) assembleMemory(ctx context.Context, sessionID string, userID int64) memoryContext {
	var mem memoryContext

	full, err := s.chats.FullHistory(ctx, sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "loading chat history failed", slog.String("error", err.Error()))
	}

	var old []port.ChatMessage
	if len(full) > historySplitMin {
		old, mem.recent = full[:len(full)-recentWindow], full[len(full)-recentWindow:]
	} else {
		mem.recent = full
	}

	if userID > 0 {
		if summary, err := s.memory.SessionSummary(ctx, sessionID, userID); err != nil {
			s.logger.WarnContext(ctx, "loading session summary failed", slog.String("error", err.Error()))
		} else {
			mem.sessionSummary = summary
		}
		if memo, err := s.memory.UserMemory(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "loading user memory failed", slog.String("error", err.Error()))
		} else {
			mem.userMemory = memo
		}
	}

	mem.oldSummary = s.condense(ctx, old)

	return mem
}

// condense shrinks old conversation turns via the generator. Empty input or
// a generator failure yields an empty summary.
func (s *QueryService) condense(ctx context.Context, messages []port.ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	summary, err := s.generator.Complete(ctx, summarySystemPrompt, buildCondensePrompt(messages))
	if err != nil {
		s.logger.WarnContext(ctx, "condensing old history failed", slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(summary)
}

// updateMemory refreshes the session summary and appends to long-term user
// memory after a successful request. Guests (userID 0) keep chat history
// only.
func (s *QueryService) updateMemory(ctx context.Context, sessionID string, userID int64, summary string) {
	if userID <= 0 {
		s.logger.DebugContext(ctx, "guest session, skipping memory update")
		return
	}
	if summary == "" {
		summary = "No summary generated."
	}

	if err := s.memory.UpsertSessionSummary(ctx, sessionID, userID, summary); err != nil {
		s.logger.WarnContext(ctx, "updating session summary failed", slog.String("error", err.Error()))
	}

	prev, err := s.memory.UserMemory(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "loading user memory failed", slog.String("error", err.Error()))
		prev = ""
	}
	combined := summary
	if prev != "" {
		combined = prev + "\n" + summary
	}
	if err := s.memory.UpsertUserMemory(ctx, userID, combined); err != nil {
		s.logger.WarnContext(ctx, "updating user memory failed", slog.String("error", err.Error()))
	}
}

// summarize produces the natural-language answer for the user. When the
// generator fails or returns nothing, a deterministic fallback keeps the
// response (and the stored assistant message) non-empty.
func (s *QueryService) summarize(ctx context.Context, question, sql string, result *port.QueryResult) string {
	if len(result.Rows) == 0 {
		return "No results found for your query."
	}

	summary, err := s.generator.Complete(ctx, summarySystemPrompt, buildSummaryPrompt(question, sql, result))
	if err != nil {
		s.logger.WarnContext(ctx, "summarization failed", slog.String("error", err.Error()))
		return fmt.Sprintf("Query returned %d rows with columns: %s", len(result.Rows), strings.Join(result.Columns, ", "))
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Sprintf("Query executed successfully with %d rows returned.", len(result.Rows))
	}
	return summary
}
