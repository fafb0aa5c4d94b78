package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// streamBatchSize is how many result rows go into one SSE event.
const streamBatchSize = 10

// handleQueryStream runs the same pipeline as handleQuery but delivers the
// result as server-sent events: start, sql, columns, batched rows, summary
// and complete, or a single error event.
func (s *Server) handleQueryStream(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := s.userFromRequest(c, req.Token)
	sessionID := s.resolveSession(c, req.SessionID, userID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	emit := func(event string, data any) {
		c.SSEvent(event, data)
		c.Writer.Flush()
	}

	emit("start", gin.H{"message": "processing query", "session_id": sessionID})

	outcome, err := s.queries.Process(c.Request.Context(), sessionID, userID, req.Query, req.Limit)
	if err != nil {
		emit("error", gin.H{"error": err.Error()})
		return
	}
	if !outcome.Success {
		emit("error", gin.H{"error": outcome.Error, "reason": outcome.Reason})
		return
	}

	emit("sql", gin.H{"sql": outcome.SQL})
	emit("columns", gin.H{"columns": outcome.Columns})

	for i := 0; i < len(outcome.Rows); i += streamBatchSize {
		end := min(i+streamBatchSize, len(outcome.Rows))
		emit("rows", gin.H{"rows": outcome.Rows[i:end]})
	}

	emit("summary", gin.H{"summary": outcome.Summary})
	emit("complete", gin.H{
		"row_count":         outcome.RowCount,
		"execution_time_ms": outcome.ExecutionTimeMS,
	})
}
