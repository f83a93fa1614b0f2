package api

import (
	"encoding/json"
	"net/http"

	"github.com/karmaloop/karmaloop/internal/health"
	"github.com/karmaloop/karmaloop/internal/models"
	"log/slog"
)

// HealthHandler serves system health and alert endpoints
type HealthHandler struct {
	monitor *health.Monitor
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(monitor *health.Monitor, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		monitor: monitor,
		logger:  logger,
	}
}

// GetHealth runs a health check and returns the snapshot
// GET /api/health
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.monitor.PerformHealthCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if snapshot.Status == models.HealthCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(snapshot)
}

// GetAlerts returns the recorded alert log
// GET /api/health/alerts
func (h *HealthHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	alerts := h.monitor.Alerts()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ClearAlerts empties the alert log
// POST /api/health/alerts/clear
func (h *HealthHandler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.monitor.ClearAlerts()
	h.logger.Info("alert log cleared")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
	})
}
