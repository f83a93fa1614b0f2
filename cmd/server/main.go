package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/karmaloop/karmaloop/internal/api"
	"github.com/karmaloop/karmaloop/internal/auth"
	"github.com/karmaloop/karmaloop/internal/config"
	"github.com/karmaloop/karmaloop/internal/database"
	"github.com/karmaloop/karmaloop/internal/health"
	"github.com/karmaloop/karmaloop/internal/logging"
	"github.com/karmaloop/karmaloop/internal/metrics"
	"github.com/karmaloop/karmaloop/internal/platform"
	"github.com/karmaloop/karmaloop/internal/scheduler"
	"github.com/karmaloop/karmaloop/internal/server"
	"github.com/karmaloop/karmaloop/internal/warmup"
	"log/slog"
)

func main() {
	// Optional .env for local development; real deployments use the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting karmaloop")

	logger.Info("connecting to database")
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	db, err := database.Connect(context.Background(), dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// Run pending migrations (non-fatal to allow app to start even if migrations fail)
	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}

	// Create repositories
	accountRepo := database.NewPostgresAccountRepository(db)
	eventRepo := database.NewPostgresErrorEventRepository(db)

	// Metrics
	collector, err := metrics.NewHTTPCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	warmupCollector, err := metrics.NewWarmupCollector(collector.Registry())
	if err != nil {
		logger.Error("failed to init warmup metrics", "error", err)
		os.Exit(1)
	}

	// Platform gateway client
	platformClient := platform.NewHTTPClient(platform.HTTPClientConfig{
		BaseURL:           cfg.Platform.BaseURL,
		APIKey:            cfg.Platform.APIKey,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
		CallTimeout:       cfg.Platform.CallTimeout,
	}, logger)

	// Warmup engine
	warmupScheduler := warmup.NewScheduler(warmup.DefaultPolicy())
	orchestrator := warmup.NewOrchestrator(accountRepo, platformClient, warmupScheduler, eventRepo, warmupCollector, logger, warmup.OrchestratorConfig{
		SweepParallelism: cfg.Warmup.SweepParallelism,
		FailureThreshold: cfg.Warmup.FailureThreshold,
		ActionTimeout:    cfg.Platform.CallTimeout,
	})

	detectorConfig := warmup.DefaultDetectorConfig()
	detectorConfig.BatchDelay = cfg.Warmup.BatchCheckDelay
	detector := warmup.NewDetector(accountRepo, platformClient, orchestrator, warmupCollector, logger, detectorConfig)

	bulk := warmup.NewBulkCoordinator(accountRepo, orchestrator, detector, logger)

	// Sweep scheduler
	logger.Info("starting sweep scheduler", "interval", cfg.Warmup.SweepInterval)
	sweepScheduler := scheduler.NewSweepScheduler(orchestrator, cfg.Warmup.SweepInterval, logger)
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	go sweepScheduler.Start(schedulerCtx)

	// Health monitor probes storage and the sweep trigger
	monitor := health.NewMonitor(
		health.ProbeFunc(database.Probe(db)),
		health.ProbeFunc(sweepScheduler.Probe),
		accountRepo,
		eventRepo,
		logger,
		health.DefaultMonitorConfig(),
	)

	// Setup HTTP routes
	mux := http.NewServeMux()

	// Liveness endpoint, no dependency probes
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Service info endpoint
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"service":  "karmaloop",
			"status":   "ready",
			"version":  "0.1.0",
			"database": database.Stats(db),
		})
	})

	mux.Handle("/metrics", collector.Handler())

	// Load auth configuration
	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != auth.DefaultSecret)

	// Add REST API routes
	logger.Info("setting up REST API")
	api.SetupRoutes(mux, accountRepo, orchestrator, warmupScheduler, detector, bulk, monitor, authConfig, logger)

	// Start server
	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("karmaloop started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	schedulerCancel()
	sweepScheduler.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
