package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/karmaloop/karmaloop/internal/models"
	"github.com/karmaloop/karmaloop/internal/warmup"
	"log/slog"
)

// AccountHandler serves account listing and inspection endpoints
type AccountHandler struct {
	repo         models.AccountRepository
	orchestrator *warmup.Orchestrator
	scheduler    *warmup.Scheduler
	logger       *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(repo models.AccountRepository, orchestrator *warmup.Orchestrator, scheduler *warmup.Scheduler, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		repo:         repo,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		logger:       logger,
	}
}

// ListAccounts returns accounts with optional filtering
// GET /api/accounts?phase=&owner_id=&min_karma=&max_karma=
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := models.AccountFilter{
		OwnerID: r.URL.Query().Get("owner_id"),
		Phase:   models.WarmupPhase(r.URL.Query().Get("phase")),
	}
	if minStr := r.URL.Query().Get("min_karma"); minStr != "" {
		if parsed, err := strconv.Atoi(minStr); err == nil {
			filter.MinKarma = &parsed
		}
	}
	if maxStr := r.URL.Query().Get("max_karma"); maxStr != "" {
		if parsed, err := strconv.Atoi(maxStr); err == nil {
			filter.MaxKarma = &parsed
		}
	}

	accounts, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list accounts", "error", err)
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetAccount returns a single account with its current queue state
// GET /api/accounts/:id
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}

	account, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get account", "id", id, "error", err)
		http.Error(w, "Failed to get account", http.StatusInternalServerError)
		return
	}
	if account == nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	queueState := warmup.DeriveQueueState(h.scheduler, account, h.orchestrator.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account":     account,
		"queue_state": queueState,
	})
}

// GetStats returns fleet-wide warmup statistics
// GET /api/stats
func (h *AccountHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.orchestrator.GetWarmupStats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute warmup stats", "error", err)
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
