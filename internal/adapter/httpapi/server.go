// Package httpapi exposes the query pipeline over HTTP. All endpoints live
// under /api/v1; authentication is optional everywhere except account
// management, with unauthenticated callers tracked as guest sessions.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tellusko/tellusko/internal/auth"
	"github.com/tellusko/tellusko/internal/core/port"
	"github.com/tellusko/tellusko/internal/core/service"
	"github.com/tellusko/tellusko/internal/session"
)

const sessionCookie = "session_id"

// QueryRunner is the slice of the query service the HTTP layer needs.
type QueryRunner interface {
	Process(ctx context.Context, sessionID string, userID int64, question string, requestedLimit int) (*service.Outcome, error)
	History(ctx context.Context, sessionID string, limit int) ([]port.ChatMessage, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// Pinger reports database liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles the collaborators the server routes requests to.
type Deps struct {
	Queries     QueryRunner
	Users       port.UserStore
	Tokens      *auth.TokenManager
	Sessions    *session.Manager
	Inspector   port.SchemaInspector
	Pinger      Pinger
	Schema      string
	Table       string
	CORSOrigins []string
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

// Server serves the REST and SSE API.
type Server struct {
	queries     QueryRunner
	users       port.UserStore
	tokens      *auth.TokenManager
	sessions    *session.Manager
	inspector   port.SchemaInspector
	pinger      Pinger
	schema      string
	table       string
	corsOrigins []string
	sessionTTL  time.Duration
	logger      *slog.Logger
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 24 * time.Hour
	}
	return &Server{
		queries:     d.Queries,
		users:       d.Users,
		tokens:      d.Tokens,
		sessions:    d.Sessions,
		inspector:   d.Inspector,
		pinger:      d.Pinger,
		schema:      d.Schema,
		table:       d.Table,
		corsOrigins: d.CORSOrigins,
		sessionTTL:  d.SessionTTL,
		logger:      d.Logger,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(s.corsMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "tellusko",
			"health":  "/api/v1/health",
		})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/schema", s.handleSchema)

		v1.POST("/auth/signup", s.handleSignup)
		v1.POST("/auth/login", s.handleLogin)
		v1.GET("/auth/me", s.handleMe)

		v1.POST("/query", s.handleQuery)
		v1.POST("/query/stream", s.handleQueryStream)
		v1.GET("/history/:session_id", s.handleHistory)
		v1.DELETE("/history/:session_id", s.handleClearHistory)
	}

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("http server listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
