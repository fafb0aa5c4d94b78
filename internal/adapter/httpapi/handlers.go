package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tellusko/tellusko/internal/core/service"
)

const defaultHistoryLimit = 50

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := s.userFromRequest(c, req.Token)
	sessionID := s.resolveSession(c, req.SessionID, userID)

	outcome, err := s.queries.Process(c.Request.Context(), sessionID, userID, req.Query, req.Limit)
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "query failed",
			slog.String("session.id", sessionID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "session_id": sessionID})
		return
	}

	c.JSON(http.StatusOK, toQueryResponse(outcome, sessionID))
}

func (s *Server) handleSchema(c *gin.Context) {
	schema, err := s.inspector.TableSchema(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, schemaResponse{
		TableName:  schema.Table,
		Schema:     schema.Schema,
		Columns:    schema.Columns,
		SampleRows: schema.SampleRows,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.pinger.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:   "ok",
		Database: "connected",
		Table:    s.schema + "." + s.table,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	sessionID := c.Param("session_id")

	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	history, err := s.queries.History(c.Request.Context(), sessionID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, historyResponse{SessionID: sessionID, History: history})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := s.queries.ClearHistory(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "history cleared for session: " + sessionID})
}

// resolveSession picks the session for a query request. "new" always starts
// a fresh session. An explicit session ID is honored as-is. Otherwise
// authenticated users resume their last session and guests are tracked
// through a cookie.
func (s *Server) resolveSession(c *gin.Context, requested string, userID int64) string {
	ctx := c.Request.Context()

	switch {
	case strings.EqualFold(requested, "new"):
		id := uuid.NewString()
		if userID != 0 {
			if err := s.users.SetLastSessionID(ctx, userID, id); err != nil {
				s.logger.WarnContext(ctx, "saving last session failed", slog.String("error", err.Error()))
			}
		}
		return id

	case requested != "":
		return requested

	case userID != 0:
		user, err := s.users.UserByID(ctx, userID)
		if err == nil && user.LastSessionID != "" {
			return user.LastSessionID
		}
		id := uuid.NewString()
		if err := s.users.SetLastSessionID(ctx, userID, id); err != nil {
			s.logger.WarnContext(ctx, "saving last session failed", slog.String("error", err.Error()))
		}
		return id

	default:
		return s.guestSession(c)
	}
}

// guestSession resumes the caller's cookie session when it is still alive in
// the session store, otherwise starts a new one and sets the cookie.
func (s *Server) guestSession(c *gin.Context) string {
	ctx := c.Request.Context()

	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		if s.sessions == nil {
			return id
		}
		if err := s.sessions.Touch(ctx, id); err == nil {
			return id
		}
	}

	if s.sessions != nil {
		id, err := s.sessions.Create(ctx)
		if err == nil {
			s.setSessionCookie(c, id)
			return id
		}
		s.logger.WarnContext(ctx, "creating guest session failed", slog.String("error", err.Error()))
	}

	id := uuid.NewString()
	s.setSessionCookie(c, id)
	return id
}

func (s *Server) setSessionCookie(c *gin.Context, id string) {
	c.SetCookie(sessionCookie, id, int(s.sessionTTL.Seconds()), "/", "", false, true)
}

func toQueryResponse(o *service.Outcome, sessionID string) queryResponse {
	return queryResponse{
		Success:         o.Success,
		SessionID:       sessionID,
		SQL:             o.SQL,
		Columns:         o.Columns,
		Rows:            o.Rows,
		Summary:         o.Summary,
		RowCount:        o.RowCount,
		ExecutionTimeMS: o.ExecutionTimeMS,
		Error:           o.Error,
		Reason:          o.Reason,
	}
}
