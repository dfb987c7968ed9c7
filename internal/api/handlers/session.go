package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/api/middleware"
	"github.com/aromelle/cartsync/internal/session"
	"github.com/aromelle/cartsync/pkg/errors"
)

// CreateSessionRequest carries the backend credential obtained at login. An
// empty body or credential starts an anonymous guest session.
type CreateSessionRequest struct {
	Credential string `json:"credential"`
}

// SessionResponse returns the gateway session token
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleCreateSession handles POST /v1/session
func HandleCreateSession(mgr *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		token, expiresAt, err := mgr.Create(c.Request.Context(), req.Credential)
		if err != nil {
			if _, ok := err.(*errors.ErrBackend); ok {
				logger.Error("Backend unavailable during session creation", zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "cart service unavailable"})
				return
			}
			logger.Error("Failed to create session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusCreated, SessionResponse{
			Token:     token,
			ExpiresAt: expiresAt,
		})
	}
}

// HandleDestroySession handles DELETE /v1/session
func HandleDestroySession(mgr *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.GetTokenFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		if err := mgr.Destroy(c.Request.Context(), token); err != nil {
			logger.Error("Failed to destroy session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
