// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/bridge"
	"github.com/javajoker/broadcast-backend/internal/cache"
	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/database"
	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/logging"
	"github.com/javajoker/broadcast-backend/internal/metrics"
	"github.com/javajoker/broadcast-backend/internal/repository"
	"github.com/javajoker/broadcast-backend/internal/router"
	"github.com/javajoker/broadcast-backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := logging.New(cfg.Log, cfg.Environment)

	// Initialize i18n
	if err := i18n.Initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize i18n")
	}

	clk := clock.New()
	repo, closeRepo := openRepository(cfg, clk, logger)
	defer closeRepo()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.PrometheusMetrics(metrics.DefaultNamespace, reg)

	// Initialize services
	broadcastService := services.NewBroadcastService(repo, clk, cfg.Broadcast, m, logger)
	quoteService := services.NewQuoteService(repo, clk, cfg.Broadcast, m, logger)
	resolutionService := services.NewResolutionService(repo, clk, m, logger)
	sweeper := services.NewSweeper(repo, broadcastService, clk, cfg.Sweeper, m, logger)
	mediaService, err := services.NewMediaService(cfg.AWS, repo, clk)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize media service")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.Sweeper.Enabled {
		sweeper.Start(ctx)
	}

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	relay := bridge.NewRelay(repo, publisher, clk, bridge.RelayConfig{
		Interval:    cfg.Bridge.RelayInterval,
		BatchSize:   cfg.Bridge.RelayBatch,
		MaxAttempts: cfg.Bridge.MaxAttempts,
	}, m, logger)
	relay.Start(ctx)

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r := router.Initialize(router.Dependencies{
		Config:      cfg,
		Repo:        repo,
		Clock:       clk,
		Metrics:     m,
		Gatherer:    reg,
		Log:         logger,
		Broadcasts:  broadcastService,
		Quotes:      quoteService,
		Resolutions: resolutionService,
		Sweeper:     sweeper,
		Media:       mediaService,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	sweeper.Stop()
	relay.Stop()
	stop()

	logger.Info("Server exited")
}

func openRepository(cfg *config.Config, clk clock.Clock, logger *logrus.Logger) (repository.Repository, func()) {
	if cfg.Database.IsMemory() {
		logger.Warn("Using in-memory repository; data is lost on restart")
		return repository.NewMemoryRepository(clk), func() {}
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	return repository.NewGormRepository(db), func() { database.Close(db) }
}

// newPublisher picks the bridge transport. With the queue enabled the relay
// only enqueues and cmd/worker performs the HTTP delivery.
func newPublisher(cfg *config.Config, logger *logrus.Logger) (bridge.Publisher, func()) {
	httpPublisher := bridge.NewHTTPPublisher(cfg.Bridge.BaseURL, cfg.Bridge.APIKey, cfg.Bridge.Timeout)
	if !cfg.Bridge.UseQueue {
		return httpPublisher, func() {}
	}

	rdb, err := cache.ConnectRedis(cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	client := bridge.NewClient(rdb)

	return bridge.NewQueuePublisher(client, cfg.Bridge.Queue, cfg.Bridge.MaxAttempts), func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close queue client")
		}
		if err := cache.DisconnectRedis(rdb); err != nil {
			logger.WithError(err).Warn("Failed to close Redis connection")
		}
	}
}
