package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/alert"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/service"
	"github.com/opensource-finance/harrier/internal/velocity"
)

// createTestServer wires a full community-tier stack backed by a temp
// sqlite database.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lruCache := cache.NewLRUCache(1000)
	t.Cleanup(func() { lruCache.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	scoring := domain.DefaultScoringConfig()
	scoring.FlagThreshold = 4.0

	eng, err := engine.New(scoring, nil, logger)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	tracker := velocity.NewTracker(repo, lruCache, scoring.VelocityWindow)
	alerts := alert.NewDispatcher(repo, nil, logger)

	svc, err := service.New(eng, repo, lruCache, nil, tracker, alerts, logger)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, svc, repo, lruCache, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONAs(t, server, "tenant-001", method, path, body)
}

func doJSONAs(t *testing.T, server *Server, tenantID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestAnalyzeEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("BaselineTransaction", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/analyze", domain.TransactionRequest{
			Amount:    45.20,
			Currency:  "EUR",
			Kind:      domain.KindDebit,
			Channel:   domain.ChannelPOS,
			AccountID: "acct-001",
			Country:   "IE",
			Timestamp: time.Now().UTC().Truncate(24 * time.Hour).Add(14 * time.Hour).Format(time.RFC3339),
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AnalyzeResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.TransactionID == "" {
			t.Error("expected transactionId in response")
		}
		if resp.Status != domain.TxStatusApproved {
			t.Errorf("expected approved status, got %s", resp.Status)
		}
		if resp.RiskAssessment == nil || resp.RiskAssessment.RiskTier == "" {
			t.Error("expected risk assessment with tier")
		}
		if resp.RequiresReview {
			t.Error("baseline transaction should not require review")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("RiskyTransactionFlagged", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/analyze", domain.TransactionRequest{
			Amount:       9800,
			Currency:     "EUR",
			Kind:         domain.KindDebit,
			Channel:      domain.ChannelOnline,
			AccountID:    "acct-002",
			Country:      "RU",
			MerchantName: "Offshore Casino",
			NewMerchant:  true,
			Timestamp:    time.Now().UTC().Truncate(24 * time.Hour).Add(23 * time.Hour).Format(time.RFC3339),
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AnalyzeResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if !resp.RiskAssessment.Flagged {
			t.Errorf("expected flagged assessment, score %v", resp.RiskAssessment.RiskScore)
		}
		if resp.Status != domain.TxStatusInvestigating {
			t.Errorf("expected investigating status, got %s", resp.Status)
		}
		if resp.Alert == nil {
			t.Fatal("expected alert in response")
		}

		// the analysis and transaction are retrievable afterwards
		rr = doJSON(t, server, http.MethodGet, "/analyses/"+resp.RiskAssessment.ID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("GET analysis returned %d: %s", rr.Code, rr.Body.String())
		}
		rr = doJSON(t, server, http.MethodGet, "/transactions/"+resp.TransactionID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("GET transaction returned %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/analyze", domain.TransactionRequest{
			Amount:    -5,
			AccountID: "acct-001",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsMissingAccount", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/analyze", domain.TransactionRequest{
			Amount: 100,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAlertEndpoints(t *testing.T) {
	server := createTestServer(t)

	// Produce a flagged transaction so an alert exists.
	rr := doJSON(t, server, http.MethodPost, "/analyze", domain.TransactionRequest{
		Amount:      8700,
		Currency:    "EUR",
		Kind:        domain.KindDebit,
		Channel:     domain.ChannelOnline,
		AccountID:   "acct-alerts",
		Country:     "BR",
		NewMerchant: true,
		Timestamp:   time.Now().UTC().Truncate(24 * time.Hour).Add(23 * time.Hour).Format(time.RFC3339),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze returned %d: %s", rr.Code, rr.Body.String())
	}
	var analyzed AnalyzeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &analyzed); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if analyzed.Alert == nil {
		t.Fatalf("expected alert, score %v", analyzed.RiskAssessment.RiskScore)
	}

	t.Run("ListActiveAlerts", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/alerts", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Alerts []*domain.FraudAlert `json:"alerts"`
			Count  int                  `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 || len(resp.Alerts) != 1 {
			t.Fatalf("expected 1 alert, got %d", resp.Count)
		}
		if resp.Alerts[0].ID != analyzed.Alert.ID {
			t.Errorf("listed alert id %q, want %q", resp.Alerts[0].ID, analyzed.Alert.ID)
		}
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/alerts?limit=zero", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResolveBlocksTransaction", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/alerts/"+analyzed.Alert.ID+"/resolve", ResolveAlertRequest{
			Resolution: domain.ResolutionBlocked,
			Notes:      "confirmed fraud",
			AssignedTo: "analyst-7",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		// alert left the active queue
		rr = doJSON(t, server, http.MethodGet, "/alerts", nil)
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 0 {
			t.Errorf("expected 0 active alerts after resolve, got %d", resp.Count)
		}

		// transaction carries the resolution
		rr = doJSON(t, server, http.MethodGet, "/transactions/"+analyzed.TransactionID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("GET transaction returned %d", rr.Code)
		}
	})

	t.Run("InvalidResolution", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/alerts/"+analyzed.Alert.ID+"/resolve", ResolveAlertRequest{
			Resolution: "shredded",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownAlert", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/alerts/FA-0000-missing/resolve", ResolveAlertRequest{
			Resolution: domain.ResolutionApproved,
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("ListDefaultRules", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Rules []domain.RiskRule `json:"rules"`
			Count int               `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != len(engine.DefaultRules()) {
			t.Errorf("expected %d rules, got %d", len(engine.DefaultRules()), resp.Count)
		}
	})

	t.Run("RejectsOrdinaryTenant", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rules", UpdateRulesRequest{
			Rules: []domain.RiskRule{{
				Name:     "sneaky_override",
				Category: domain.RuleCategoryAmount,
				Weight:   1.0,
				Active:   true,
			}},
		})
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected status 403 for ordinary tenant, got %d", rr.Code)
		}

		// The active set is untouched.
		rr = doJSON(t, server, http.MethodGet, "/rules", nil)
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != len(engine.DefaultRules()) {
			t.Errorf("rule set changed after rejected update: %d rules", resp.Count)
		}

		rr = doJSON(t, server, http.MethodPost, "/rules/reload", nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("expected status 403 for reload by ordinary tenant, got %d", rr.Code)
		}
	})

	t.Run("ReplaceRuleSet", func(t *testing.T) {
		rr := doJSONAs(t, server, domain.GlobalTenantID, http.MethodPost, "/rules", UpdateRulesRequest{
			Rules: []domain.RiskRule{{
				Name:        "night_transfers",
				Category:    domain.RuleCategoryTime,
				Threshold:   1,
				Weight:      2.0,
				Description: "Transfers outside normal hours",
				Active:      true,
			}},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/rules", nil)
		var resp struct {
			Rules []domain.RiskRule `json:"rules"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if len(resp.Rules) != 1 || resp.Rules[0].Name != "night_transfers" {
			t.Errorf("unexpected rules after replace: %+v", resp.Rules)
		}
	})

	t.Run("RejectsInvalidExpression", func(t *testing.T) {
		rr := doJSONAs(t, server, domain.GlobalTenantID, http.MethodPost, "/rules", UpdateRulesRequest{
			Rules: []domain.RiskRule{{
				Name:       "broken",
				Category:   domain.RuleCategoryAmount,
				Expression: "amount >>>",
				Active:     true,
			}},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsEmptySet", func(t *testing.T) {
		rr := doJSONAs(t, server, domain.GlobalTenantID, http.MethodPost, "/rules", UpdateRulesRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ReloadStoredRules", func(t *testing.T) {
		rr := doJSONAs(t, server, domain.GlobalTenantID, http.MethodPost, "/rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 reloaded rule, got %d", resp.Count)
		}
	})
}

func TestDiagnosticsEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy status, got %q", resp["status"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("ModelPerformance", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/model/performance", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var perf engine.ModelPerformance
		if err := json.Unmarshal(rr.Body.Bytes(), &perf); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if perf.ModelsLoaded != 2 {
			t.Errorf("expected 2 models, got %d", perf.ModelsLoaded)
		}
		if perf.RulesActive == 0 {
			t.Error("expected active rules")
		}
	})

	t.Run("Statistics", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/statistics?days=7", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var stats domain.FraudStatistics
		if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if stats.PeriodDays != 7 {
			t.Errorf("expected period 7, got %d", stats.PeriodDays)
		}
	})

	t.Run("InvalidDays", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/statistics?days=-1", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}
