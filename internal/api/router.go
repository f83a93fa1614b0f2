package api

import (
	"net/http"
	"strings"

	"github.com/karmaloop/karmaloop/internal/auth"
	"github.com/karmaloop/karmaloop/internal/health"
	"github.com/karmaloop/karmaloop/internal/models"
	"github.com/karmaloop/karmaloop/internal/warmup"
	"log/slog"
)

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, repo models.AccountRepository, orchestrator *warmup.Orchestrator, scheduler *warmup.Scheduler, detector *warmup.Detector, bulk *warmup.BulkCoordinator, monitor *health.Monitor, authConfig auth.Config, logger *slog.Logger) {
	accountHandler := NewAccountHandler(repo, orchestrator, scheduler, logger)
	warmupHandler := NewWarmupHandler(orchestrator, detector, bulk, repo, logger)
	healthHandler := NewHealthHandler(monitor, logger)
	authHandler := NewAuthHandler(authConfig, logger)

	// Auth middleware
	authMiddleware := auth.AuthMiddleware(authConfig)

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		authMiddleware(http.HandlerFunc(authHandler.ValidateToken)).ServeHTTP(w, r)
	})

	// Account routes (public for reading)
	mux.HandleFunc("/api/accounts", accountHandler.ListAccounts)
	mux.HandleFunc("/api/accounts/", func(w http.ResponseWriter, r *http.Request) {
		// POST /api/accounts/:id/warmup/:action (requires auth)
		if strings.Contains(r.URL.Path, "/warmup/") {
			authMiddleware(http.HandlerFunc(warmupHandler.ControlAccount)).ServeHTTP(w, r)
			return
		}
		// POST /api/accounts/:id/shadowban-check (requires auth)
		if strings.HasSuffix(r.URL.Path, "/shadowban-check") {
			authMiddleware(http.HandlerFunc(warmupHandler.CheckShadowban)).ServeHTTP(w, r)
			return
		}
		// GET /api/accounts/:id/risk (public)
		if strings.HasSuffix(r.URL.Path, "/risk") {
			warmupHandler.GetRisk(w, r)
			return
		}
		// Otherwise handle as get by ID (public)
		accountHandler.GetAccount(w, r)
	})
	mux.HandleFunc("/api/stats", accountHandler.GetStats)

	// Bulk operations (requires auth)
	mux.HandleFunc("/api/warmup/bulk", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			setCORSHeaders(w)
			w.WriteHeader(http.StatusOK)
			return
		}
		authMiddleware(http.HandlerFunc(warmupHandler.BulkOperation)).ServeHTTP(w, r)
	})

	// Health routes
	mux.HandleFunc("/api/health", healthHandler.GetHealth)
	mux.HandleFunc("/api/health/alerts", healthHandler.GetAlerts)
	mux.HandleFunc("/api/health/alerts/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			setCORSHeaders(w)
			w.WriteHeader(http.StatusOK)
			return
		}
		authMiddleware(http.HandlerFunc(healthHandler.ClearAlerts)).ServeHTTP(w, r)
	})

	// CORS preflight
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			setCORSHeaders(w)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})
}
