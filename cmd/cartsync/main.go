package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/api"
	"github.com/aromelle/cartsync/internal/backend"
	"github.com/aromelle/cartsync/internal/config"
	"github.com/aromelle/cartsync/internal/metrics"
	"github.com/aromelle/cartsync/internal/repository/postgres"
	"github.com/aromelle/cartsync/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)

	sealer, err := session.NewSealer(cfg.Session.SealKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential sealer", zap.Error(err))
	}

	client := backend.NewClient(cfg.Backend, logger)
	mgr := session.NewManager(repos.Session, sealer, client, cfg.Session.TTL, logger)
	collector := metrics.NewCollector()

	// Reap expired sessions periodically
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			mgr.ReapExpired(context.Background())
		}
	}()

	router := api.NewRouter(cfg, mgr, collector, logger)

	logger.Info("Cart gateway listening",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.Backend.BaseURL),
	)
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
