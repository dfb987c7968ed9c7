package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/api/handlers"
	"github.com/aromelle/cartsync/internal/api/middleware"
	"github.com/aromelle/cartsync/internal/config"
	"github.com/aromelle/cartsync/internal/metrics"
	"github.com/aromelle/cartsync/internal/session"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, mgr *session.Manager, collector *metrics.Collector, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware(collector))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(collector.Handler()))

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	// API v1 routes
	v1 := router.Group("/v1")
	v1.Use(middleware.SessionMiddleware(mgr, logger))
	{
		v1.POST("/session", handlers.HandleCreateSession(mgr, logger))
		v1.DELETE("/session", handlers.HandleDestroySession(mgr, logger))

		// Reading the cart never requires a session: anonymous viewers get
		// an empty cart.
		v1.GET("/cart", handlers.HandleGetCart(collector, logger))

		// Mutations require a session and are rate limited per session
		mutations := v1.Group("")
		mutations.Use(middleware.RequireSession())
		mutations.Use(rateLimiter.Middleware())
		{
			mutations.POST("/cart/items", handlers.HandleAddItem(collector, logger))
			mutations.PATCH("/cart/items/:id", handlers.HandleUpdateItem(collector, logger))
			mutations.DELETE("/cart/items/:id", handlers.HandleRemoveItem(collector, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
		)
	}
}

// metricsMiddleware records request counts and durations per route
func metricsMiddleware(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		collector.ObserveHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
