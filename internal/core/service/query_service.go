package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tellusko/tellusko/internal/core/domain"
	"github.com/tellusko/tellusko/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// recentWindow is how many trailing messages stay verbatim in the prompt;
// anything older gets condensed. Sessions shorter than historySplitMin keep
// their full history.
const (
	recentWindow    = 5
	historySplitMin = 8
)

// Outcome is the result of one natural-language request. Rejections and
// execution failures are outcomes, not errors: the candidate SQL and the
// reason travel back to the caller as data so it can respond safely.
type Outcome struct {
	Success         bool     `json:"success"`
	SQL             string   `json:"sql"`
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	Summary         string   `json:"summary"`
	RowCount        int      `json:"row_count"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
	Error           string   `json:"error,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

// Deps bundles the collaborators QueryService orchestrates.
type Deps struct {
	Policy    domain.Policy
	Validator port.QueryValidator
	Executor  port.QueryExecutor
	Generator port.Generator
	Inspector port.SchemaInspector
	Chats     port.ChatStore
	Memory    port.MemoryStore
	QueryLogs port.QueryLogStore
	Auditor   port.QueryAuditor
	Masks     map[string]domain.MaskType
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Inst      port.Instrumentation
}

// QueryService turns a natural-language question into an executed, bounded
// SQL query with conversational memory. Generated text is hostile until it
// has passed the extractor and the validator; the executor only ever sees
// statements that cleared both.
type QueryService struct {
	policy    domain.Policy
	validator port.QueryValidator
	executor  port.QueryExecutor
	generator port.Generator
	inspector port.SchemaInspector
	chats     port.ChatStore
	memory    port.MemoryStore
	queryLogs port.QueryLogStore
	auditor   port.QueryAuditor
	masks     map[string]domain.MaskType
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewQueryService(d Deps) *QueryService {
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if d.Inst == nil {
		d.Inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		policy:    d.Policy,
		validator: d.Validator,
		executor:  d.Executor,
		generator: d.Generator,
		inspector: d.Inspector,
		chats:     d.Chats,
		memory:    d.Memory,
		queryLogs: d.QueryLogs,
		auditor:   d.Auditor,
		masks:     d.Masks,
		logger:    d.Logger,
		tracer:    d.Tracer,
		inst:      d.Inst,
	}
}

// Process runs the full pipeline for one question. userID 0 means guest:
// chat history still works, but session summaries and long-term memory are
// skipped. requestedLimit <= 0 means the policy default.
func (s *QueryService) Process(ctx context.Context, sessionID string, userID int64, question string, requestedLimit int) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Process",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("session.id", sessionID),
		),
	)
	defer span.End()

	start := time.Now()

	if err := s.chats.SaveMessage(ctx, sessionID, "user", question); err != nil {
		s.logger.WarnContext(ctx, "saving user message failed", slog.String("error", err.Error()))
	}

	schemaDesc, err := s.inspector.Description(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("describing schema: %w", err)
	}

	mem := s.assembleMemory(ctx, sessionID, userID)
	prompt := buildSQLPrompt(schemaDesc, s.policy.Schema, s.policy.Table, mem, s.policy.DefaultLimit, question)

	llmStart := time.Now()
	raw, err := s.generator.Complete(ctx, sqlSystemPrompt, prompt)
	s.inst.RecordLLMDuration(ctx, float64(time.Since(llmStart).Milliseconds()))
	if err != nil {
		s.logQuery(ctx, sessionID, question, "", "error", "failed", err.Error(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generating SQL: %w", err)
	}

	candidate := domain.Extract(raw)
	s.logger.InfoContext(ctx, "generated SQL", slog.String("db.statement", candidate))

	if err := s.validator.Validate(candidate); err != nil {
		reason := domain.Reason(err)
		s.logger.WarnContext(ctx, "candidate rejected",
			slog.String("db.statement", candidate),
			slog.String("reason", reason),
		)
		s.inst.IncrementRejections(ctx, reason)
		s.logQuery(ctx, sessionID, question, candidate, reason, "failed", err.Error(), 0, 0)
		s.auditor.Record(ctx, port.AuditEntry{
			SessionID: sessionID,
			Question:  question,
			SQL:       candidate,
			Reason:    reason,
			Err:       err,
		})
		span.SetAttributes(attribute.String("query.rejection", reason))
		return &Outcome{SQL: candidate, Error: err.Error(), Reason: reason}, nil
	}

	if !s.validator.HasLimit(candidate) {
		s.logger.DebugContext(ctx, "no LIMIT in candidate, enforcing default")
	}
	executable := s.validator.EnforceLimit(candidate, requestedLimit)
	span.SetAttributes(attribute.String("db.statement", executable))

	execStart := time.Now()
	result, err := s.executor.Execute(ctx, executable)
	durationMS := time.Since(execStart).Milliseconds()
	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	rows := 0
	if result != nil {
		rows = len(result.Rows)
	}
	s.auditor.Record(ctx, port.AuditEntry{
		SessionID:    sessionID,
		Question:     question,
		SQL:          executable,
		RowsReturned: rows,
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		s.inst.IncrementQueryErrors(ctx)
		s.logQuery(ctx, sessionID, question, executable, "valid", "failed", err.Error(), 0, durationMS)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("executing query: %w", err)
	}
	s.inst.IncrementQueryCount(ctx)

	domain.MaskResult(result.Columns, result.Rows, domain.ResolveMaskAliases(executable, s.masks))

	summary := s.summarize(ctx, question, executable, result)
	if err := s.chats.SaveMessage(ctx, sessionID, "assistant", summary); err != nil {
		s.logger.WarnContext(ctx, "saving assistant message failed", slog.String("error", err.Error()))
	}
	s.updateMemory(ctx, sessionID, userID, summary)

	totalMS := time.Since(start).Milliseconds()
	s.logQuery(ctx, sessionID, question, executable, "valid", "success", "", len(result.Rows), totalMS)
	span.SetAttributes(attribute.Int("db.response.rows", len(result.Rows)))

	s.logger.InfoContext(ctx, "query executed",
		slog.Int("rows", len(result.Rows)),
		slog.Int64("duration_ms", totalMS),
	)

	return &Outcome{
		Success:         true,
		SQL:             executable,
		Columns:         result.Columns,
		Rows:            result.Rows,
		Summary:         summary,
		RowCount:        len(result.Rows),
		ExecutionTimeMS: totalMS,
	}, nil
}

// History returns up to limit most recent messages of a session.
func (s *QueryService) History(ctx context.Context, sessionID string, limit int) ([]port.ChatMessage, error) {
	return s.chats.History(ctx, sessionID, limit)
}

// ClearHistory wipes a session's conversation.
func (s *QueryService) ClearHistory(ctx context.Context, sessionID string) error {
	if err := s.chats.ClearHistory(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	s.logger.InfoContext(ctx, "chat history cleared", slog.String("session.id", sessionID))
	return nil
}

// ExecuteSQL runs a raw candidate statement through the gate and, if it
// passes, the executor. Used by the MCP query tool where the agent supplies
// SQL directly.
func (s *QueryService) ExecuteSQL(ctx context.Context, sql string) (*port.QueryResult, error) {
	candidate := domain.Extract(sql)
	if err := s.validator.Validate(candidate); err != nil {
		s.inst.IncrementRejections(ctx, domain.Reason(err))
		s.auditor.Record(ctx, port.AuditEntry{SQL: candidate, Reason: domain.Reason(err), Err: err})
		return nil, fmt.Errorf("validation: %w", err)
	}
	executable := s.validator.EnforceLimit(candidate, 0)

	start := time.Now()
	result, err := s.executor.Execute(ctx, executable)
	durationMS := time.Since(start).Milliseconds()
	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	rows := 0
	if result != nil {
		rows = len(result.Rows)
	}
	s.auditor.Record(ctx, port.AuditEntry{SQL: executable, RowsReturned: rows, DurationMS: durationMS, Err: err})
	if err != nil {
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}
	s.inst.IncrementQueryCount(ctx)
	domain.MaskResult(result.Columns, result.Rows, domain.ResolveMaskAliases(executable, s.masks))
	return result, nil
}

func (s *QueryService) logQuery(ctx context.Context, sessionID, question, sql, validation, execution, errMsg string, rowCount int, durationMS int64) {
	entry := port.QueryLogEntry{
		SessionID:        sessionID,
		UserQuery:        question,
		GeneratedSQL:     sql,
		ValidationStatus: validation,
		ExecutionStatus:  execution,
		ErrorMessage:     errMsg,
		RowCount:         rowCount,
		ExecutionTimeMS:  durationMS,
	}
	if err := s.queryLogs.LogQuery(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "query log write failed", slog.String("error", err.Error()))
	}
}
