package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/service"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *service.Service
	repo    domain.Repository
	cache   domain.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		version: version,
	}
}

// AnalyzeResponse is the response for POST /analyze.
type AnalyzeResponse struct {
	TransactionID  string                 `json:"transactionId"`
	Status         string                 `json:"status"`
	RiskAssessment *domain.AnalysisResult `json:"riskAssessment"`
	RequiresReview bool                   `json:"requiresReview"`
	Alert          *domain.FraudAlert     `json:"alert,omitempty"`
	Metadata       struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Analyze handles POST /analyze requests: it scores one transaction
// through the full pipeline and returns the assessment.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}
	if req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountId is required",
		})
		return
	}

	event := req.ToEvent(uuid.New().String(), tenantID)

	res, err := h.svc.Process(ctx, tenantID, event)
	if err != nil {
		slog.Error("transaction processing failed", "tx_id", event.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "transaction processing failed",
		})
		return
	}

	resp := AnalyzeResponse{
		TransactionID:  res.TransactionID,
		Status:         res.Status,
		RiskAssessment: res.Analysis,
		RequiresReview: res.RequiresReview,
		Alert:          res.Alert,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAnalysis retrieves an analysis result by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	result, err := h.svc.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "analysis not found",
			})
			return
		}
		slog.Error("failed to get analysis", "id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListAlerts returns active fraud alerts, optionally filtered by severity.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	severity := r.URL.Query().Get("severity")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	alerts, err := h.repo.ListActiveAlerts(ctx, tenantID, severity, limit)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlertRequest is the request body for resolving an alert.
type ResolveAlertRequest struct {
	Resolution string `json:"resolution"`
	Notes      string `json:"notes,omitempty"`
	AssignedTo string `json:"assignedTo,omitempty"`
}

// ResolveAlert closes an alert with a resolution and propagates the
// outcome to the flagged transaction's status.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req ResolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	switch req.Resolution {
	case domain.ResolutionApproved, domain.ResolutionBlocked, domain.ResolutionEscalated:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "resolution must be approved, blocked, or escalated",
		})
		return
	}

	a, err := h.repo.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to get alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve alert",
		})
		return
	}

	if err := h.repo.ResolveAlert(ctx, tenantID, alertID, req.Resolution, req.Notes, req.AssignedTo); err != nil {
		slog.Error("failed to resolve alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve alert",
		})
		return
	}

	// Resolution outcome carries over to the transaction under review.
	txStatus := map[string]string{
		domain.ResolutionApproved:  domain.TxStatusApproved,
		domain.ResolutionBlocked:   domain.TxStatusBlocked,
		domain.ResolutionEscalated: domain.TxStatusEscalated,
	}[req.Resolution]
	if err := h.repo.UpdateTransactionStatus(ctx, tenantID, a.TransactionID, txStatus); err != nil {
		slog.Error("failed to update transaction status",
			"tx_id", a.TransactionID,
			"status", txStatus,
			"error", err,
		)
	}

	slog.Info("alert resolved",
		"alert_id", alertID,
		"resolution", req.Resolution,
		"tx_id", a.TransactionID,
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"alertId":    alertID,
		"status":     domain.AlertStatusResolved,
		"resolution": req.Resolution,
	})
}

// GetStatistics returns fraud statistics for the reporting window.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "days must be a positive integer",
			})
			return
		}
		days = parsed
	}

	stats, err := h.svc.Statistics(ctx, tenantID, days)
	if err != nil {
		slog.Error("failed to get statistics", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get statistics",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ListRules returns the active risk rule set.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.svc.Rules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// UpdateRulesRequest is the request body for replacing the rule set.
type UpdateRulesRequest struct {
	Rules []domain.RiskRule `json:"rules"`
}

// requirePlatformTenant guards rule management: the engine runs one rule
// set for all tenants, so only the global tenant may change it.
func requirePlatformTenant(w http.ResponseWriter, r *http.Request) bool {
	if GetTenantID(r.Context()) != domain.GlobalTenantID {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": "rule management requires the platform tenant",
		})
		return false
	}
	return true
}

// UpdateRules fully replaces the active rule set. The swap is atomic:
// either every rule compiles and the new set goes live, or the previous
// set stays active untouched.
func (h *Handler) UpdateRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requirePlatformTenant(w, r) {
		return
	}

	var req UpdateRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Rules) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one rule is required",
		})
		return
	}
	for _, rule := range req.Rules {
		if rule.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "every rule needs a name",
			})
			return
		}
	}

	if err := h.svc.UpdateRiskRules(ctx, req.Rules); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "risk rules updated",
		"count":   len(req.Rules),
	})
}

// ReloadRules loads the stored rule set into the engine, enabling
// hot-reload without a restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requirePlatformTenant(w, r) {
		return
	}

	count, err := h.svc.ReloadRules(ctx)
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// GetModelPerformance returns scoring engine diagnostics.
func (h *Handler) GetModelPerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Performance())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
