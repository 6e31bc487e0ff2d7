package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipflow/internal/classify"
	"clipflow/internal/database"
	"clipflow/internal/handlers"
	"clipflow/internal/logging"
	"clipflow/internal/middleware"
	"clipflow/internal/notify"
	"clipflow/internal/pipeline"
	"clipflow/internal/startup"
	"clipflow/internal/streamer"
	"clipflow/internal/transcoder"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Refresh connection gauges periodically
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		for range ticker.C {
			db.UpdateDBMetrics()
		}
	}()

	// Initialize transcoder
	startup.LogTranscoderInit()
	trans := transcoder.New()

	// Initialize notification hub and streamer
	hub := notify.NewHub()
	str := streamer.New(config.ChunkCacheTTL)

	// Initialize pipeline
	workerCount := config.PipelineWorkers
	startup.LogPipelineInit(workerCount, config.ProgressInterval)
	pl := pipeline.New(db, trans, hub, classify.NewRandomPolicy(0.1, time.Now().UnixNano()), pipeline.Config{
		Workers:          workerCount,
		ProgressInterval: config.ProgressInterval,
		UploadDir:        config.UploadDir,
	})

	// Initialize handlers and router
	h := handlers.New(db, config, hub, pl, str)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	router.Use(middleware.Metrics)
	router.Use(middleware.AccessLog(config.LogHealthChecks))

	// Log routes dynamically
	startup.LogHTTPRoutes(router)

	// Metrics server on its own port
	if config.MetricsEnabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			logging.Info("Metrics server listening on :%s", config.MetricsPort)
			if err := http.ListenAndServe(":"+config.MetricsPort, metricsMux); err != nil {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Create server. WriteTimeout stays 0 so long video streams are not
	// cut off; the streaming writer enforces its own per-write deadline.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      router,
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, pl, hub, str)

	// Start server
	startup.LogServerStarted(config.Port, time.Since(startTime))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func handleShutdown(srv *http.Server, pl *pipeline.Manager, hub *notify.Hub, str *streamer.Streamer) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping pipeline")
	if err := pl.Shutdown(ctx); err != nil {
		logging.Warn("Pipeline shutdown error: %v", err)
	}

	startup.LogShutdownStep("Closing websocket connections")
	hub.CloseAll()

	startup.LogShutdownStep("Releasing chunk cache")
	str.Close()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	}

	startup.LogShutdownComplete()
}
