package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/cart"
	"github.com/aromelle/cartsync/internal/session"
	"github.com/aromelle/cartsync/pkg/errors"
)

const (
	syncContextKey  = "cartSynchronizer"
	tokenContextKey = "sessionToken"
)

// SessionMiddleware resolves the bearer session token, if any, to the
// session's cart synchronizer. A missing or invalid token leaves the request
// unauthenticated; it is up to the route to require a session or not.
func SessionMiddleware(mgr *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		sync, err := mgr.Resolve(c.Request.Context(), token)
		if err != nil {
			if _, ok := err.(*errors.ErrNoSession); !ok {
				logger.Error("Failed to resolve session", zap.Error(err))
			}
			c.Next()
			return
		}

		c.Set(syncContextKey, sync)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// RequireSession rejects unauthenticated requests before they reach a cart
// mutation handler, so no mutation is ever attempted without a session.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetSyncFromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// GetSyncFromContext returns the request's cart synchronizer
func GetSyncFromContext(c *gin.Context) (*cart.Synchronizer, bool) {
	val, ok := c.Get(syncContextKey)
	if !ok {
		return nil, false
	}
	sync, ok := val.(*cart.Synchronizer)
	return sync, ok
}

// GetTokenFromContext returns the request's session token
func GetTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(tokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
