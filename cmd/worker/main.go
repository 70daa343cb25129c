// cmd/worker/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javajoker/broadcast-backend/internal/bridge"
	"github.com/javajoker/broadcast-backend/internal/cache"
	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/logging"
	"github.com/javajoker/broadcast-backend/internal/metrics"
)

// The worker drains the bridge queue filled by the server when
// BRIDGE_USE_QUEUE is set, delivering each event over HTTP.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := logging.New(cfg.Log, cfg.Environment)

	rdb, err := cache.ConnectRedis(cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer cache.DisconnectRedis(rdb)

	reg := prometheus.NewRegistry()
	m := metrics.PrometheusMetrics(metrics.DefaultNamespace, reg)

	publisher := bridge.NewHTTPPublisher(cfg.Bridge.BaseURL, cfg.Bridge.APIKey, cfg.Bridge.Timeout)
	worker := bridge.NewWorker(publisher, m, logger)

	srv := bridge.SetupServer(rdb, cfg.Bridge.Queue, cfg.Bridge.WorkerConcurrency, logger)
	if err := srv.Start(bridge.NewServeMux(worker)); err != nil {
		logger.WithError(err).Fatal("Failed to start worker")
	}

	// Metrics only; the worker has no API.
	metricsSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()

	logger.WithField("queue", cfg.Bridge.Queue).Info("Bridge worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	metricsSrv.Close()
	srv.Shutdown()

	logger.Info("Worker exited")
}
