package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tellusko/tellusko/internal/auth"
	"github.com/tellusko/tellusko/internal/core/domain"
)

func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hashing password failed"})
		return
	}

	user, err := s.users.CreateUser(c.Request.Context(), req.Username, req.Email, hash)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.InfoContext(c.Request.Context(), "user registered",
		slog.Int64("user.id", user.ID),
		slog.String("email", user.Email),
	)
	c.JSON(http.StatusCreated, gin.H{"message": "signup successful"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.UserByEmail(ctx, req.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	// Each login starts a fresh session the next query resumes.
	sessionID := uuid.NewString()
	if err := s.users.SetLastSessionID(ctx, user.ID, sessionID); err != nil {
		s.logger.WarnContext(ctx, "saving login session failed", slog.String("error", err.Error()))
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issuing token failed"})
		return
	}

	s.logger.InfoContext(ctx, "login succeeded",
		slog.Int64("user.id", user.ID),
		slog.String("session.id", sessionID),
	)
	c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := s.users.UserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":         user.ID,
		"username":        user.DisplayName,
		"email":           user.Email,
		"last_session_id": user.LastSessionID,
	})
}
