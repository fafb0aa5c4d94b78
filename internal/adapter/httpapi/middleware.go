package httpapi

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs one line per request with method, path, status and
// latency.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.InfoContext(c.Request.Context(), "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}

// corsMiddleware sets CORS headers for the configured origins and answers
// preflight requests.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowAll := slices.Contains(s.corsOrigins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.corsOrigins, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// userFromRequest resolves the caller's user ID from a bearer token in the
// Authorization header, falling back to bodyToken when given. An invalid or
// missing token means guest (userID 0), never an error: every endpoint that
// calls this works unauthenticated.
func (s *Server) userFromRequest(c *gin.Context, bodyToken string) int64 {
	token := bearerToken(c)
	if token == "" {
		token = bodyToken
	}
	if token == "" {
		return 0
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.WarnContext(c.Request.Context(), "token rejected, continuing as guest",
			slog.String("error", err.Error()))
		return 0
	}
	return claims.UserID
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
