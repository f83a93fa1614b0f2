package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/karmaloop/karmaloop/internal/models"
	"github.com/karmaloop/karmaloop/internal/warmup"
	"log/slog"
)

// WarmupHandler serves per-account warmup lifecycle endpoints and the
// bulk operation endpoint.
type WarmupHandler struct {
	orchestrator *warmup.Orchestrator
	detector     *warmup.Detector
	bulk         *warmup.BulkCoordinator
	repo         models.AccountRepository
	logger       *slog.Logger
}

// NewWarmupHandler creates a new warmup handler
func NewWarmupHandler(orchestrator *warmup.Orchestrator, detector *warmup.Detector, bulk *warmup.BulkCoordinator, repo models.AccountRepository, logger *slog.Logger) *WarmupHandler {
	return &WarmupHandler{
		orchestrator: orchestrator,
		detector:     detector,
		bulk:         bulk,
		repo:         repo,
		logger:       logger,
	}
}

// ControlAccount dispatches per-account warmup control actions
// POST /api/accounts/:id/warmup/:action  (start|pause|resume|stop|reset)
func (h *WarmupHandler) ControlAccount(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[1] != "warmup" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	accountID, action := parts[0], parts[2]

	ctx := r.Context()
	var err error
	switch action {
	case "start":
		err = h.orchestrator.StartAccountWarmup(ctx, accountID)
	case "pause":
		err = h.orchestrator.PauseAccountWarmup(ctx, accountID)
	case "resume":
		err = h.orchestrator.ResumeAccountWarmup(ctx, accountID)
	case "stop":
		err = h.orchestrator.StopAccountWarmup(ctx, accountID)
	case "reset":
		err = h.orchestrator.ResetAccountWarmup(ctx, accountID)
	default:
		http.Error(w, "Unknown warmup action", http.StatusNotFound)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountNotFound):
			http.Error(w, "Account not found", http.StatusNotFound)
		case errors.Is(err, warmup.ErrInvalidState):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("warmup control failed", "account_id", accountID, "action", action, "error", err)
			http.Error(w, "Warmup control failed", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("warmup control applied", "account_id", accountID, "action", action)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":    true,
		"account_id": accountID,
		"action":     action,
	})
}

// CheckShadowban runs an on-demand shadowban check for one account
// POST /api/accounts/:id/shadowban-check
func (h *WarmupHandler) CheckShadowban(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	accountID := strings.TrimSuffix(path, "/shadowban-check")

	result, err := h.detector.CheckAndUpdateShadowban(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.logger.Error("shadowban check failed", "account_id", accountID, "error", err)
		http.Error(w, "Shadowban check failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetRisk returns the heuristic risk score for one account
// GET /api/accounts/:id/risk
func (h *WarmupHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	accountID := strings.TrimSuffix(path, "/risk")

	account, err := h.repo.GetByID(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to get account", "id", accountID, "error", err)
		http.Error(w, "Failed to get account", http.StatusInternalServerError)
		return
	}
	if account == nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account_id": accountID,
		"risk_score": h.detector.CalculateShadowbanRisk(account),
	})
}

// BulkRequest is the payload for POST /api/warmup/bulk
type BulkRequest struct {
	Operation models.BulkOperation `json:"operation"`
	Selector  struct {
		IDs      []string           `json:"ids,omitempty"`
		OwnerID  string             `json:"owner_id,omitempty"`
		Phase    models.WarmupPhase `json:"phase,omitempty"`
		MinKarma *int               `json:"min_karma,omitempty"`
		MaxKarma *int               `json:"max_karma,omitempty"`
	} `json:"selector"`
}

// BulkOperation applies one operation across a selected account set
// POST /api/warmup/bulk
func (h *WarmupHandler) BulkOperation(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Operation.Valid() {
		http.Error(w, "Unsupported bulk operation", http.StatusBadRequest)
		return
	}

	selector := models.AccountFilter{
		IDs:      req.Selector.IDs,
		OwnerID:  req.Selector.OwnerID,
		Phase:    req.Selector.Phase,
		MinKarma: req.Selector.MinKarma,
		MaxKarma: req.Selector.MaxKarma,
	}

	result, err := h.bulk.Apply(r.Context(), req.Operation, selector)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("bulk operation failed", "operation", req.Operation, "error", err)
		http.Error(w, "Bulk operation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
