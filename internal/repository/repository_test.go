package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		balance := 2500.0
		event := &domain.TransactionEvent{
			ID:               "tx-001",
			AccountID:        "acct-001",
			CustomerID:       "cust-001",
			Amount:           1000.00,
			Currency:         "EUR",
			Kind:             domain.KindDebit,
			Channel:          domain.ChannelOnline,
			Timestamp:        time.Now().UTC(),
			CreatedAt:        time.Now().UTC(),
			MerchantName:     "Acme Ltd",
			MerchantCategory: "electronics",
			Country:          "IE",
			NewMerchant:      true,
			AccountBalance:   &balance,
		}

		if err := repo.SaveTransaction(ctx, tenantID, event, nil); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tenantID, event.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != event.ID {
			t.Errorf("expected ID %s, got %s", event.ID, retrieved.ID)
		}
		if retrieved.Amount != event.Amount {
			t.Errorf("expected Amount %.2f, got %.2f", event.Amount, retrieved.Amount)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
		if !retrieved.NewMerchant {
			t.Error("expected NewMerchant to round-trip")
		}
		if retrieved.AccountBalance == nil || *retrieved.AccountBalance != balance {
			t.Errorf("expected AccountBalance %v, got %v", balance, retrieved.AccountBalance)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, "tenant-002", "tx-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		event := &domain.TransactionEvent{ID: "tx-test"}

		if err := repo.SaveTransaction(ctx, "", event, nil); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.GetTransaction(ctx, "", "tx-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("CountTransactionsByAccount", func(t *testing.T) {
		event := &domain.TransactionEvent{
			ID:        "tx-002",
			AccountID: "acct-001",
			Amount:    150,
			Currency:  "EUR",
			Kind:      domain.KindDebit,
			Channel:   domain.ChannelPOS,
			Timestamp: time.Now().UTC(),
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.SaveTransaction(ctx, tenantID, event, nil); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		count, err := repo.CountTransactionsByAccount(ctx, tenantID, "acct-001", time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("CountTransactionsByAccount failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 transactions, got %d", count)
		}

		count, err = repo.CountTransactionsByAccount(ctx, tenantID, "acct-001", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("CountTransactionsByAccount failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 transactions after future cutoff, got %d", count)
		}
	})

	t.Run("UpdateTransactionStatus", func(t *testing.T) {
		if err := repo.UpdateTransactionStatus(ctx, tenantID, "tx-001", domain.TxStatusBlocked); err != nil {
			t.Fatalf("UpdateTransactionStatus failed: %v", err)
		}
		if err := repo.UpdateTransactionStatus(ctx, tenantID, "nonexistent", domain.TxStatusBlocked); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("SaveAndGetAnalysis", func(t *testing.T) {
		result := &domain.AnalysisResult{
			ID:             "an-001",
			TransactionID:  "tx-001",
			RiskScore:      6.25,
			RiskTier:       domain.TierHigh,
			Flagged:        true,
			Indicators:     []string{"Transaction outside Ireland"},
			TriggeredRules: []string{"foreign_transaction"},
			ModelScore:     4.5,
			RuleScore:      2.0,
			AnalyzedAt:     time.Now().UTC(),
		}

		if err := repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		retrieved, err := repo.GetAnalysis(ctx, tenantID, result.ID)
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if retrieved.RiskScore != result.RiskScore {
			t.Errorf("expected score %.2f, got %.2f", result.RiskScore, retrieved.RiskScore)
		}
		if retrieved.RiskTier != result.RiskTier {
			t.Errorf("expected tier %s, got %s", result.RiskTier, retrieved.RiskTier)
		}
		if !retrieved.Flagged {
			t.Error("expected flagged to round-trip")
		}
		if len(retrieved.Indicators) != 1 || retrieved.Indicators[0] != result.Indicators[0] {
			t.Errorf("indicators did not round-trip: %v", retrieved.Indicators)
		}
		if len(retrieved.TriggeredRules) != 1 || retrieved.TriggeredRules[0] != "foreign_transaction" {
			t.Errorf("triggered rules did not round-trip: %v", retrieved.TriggeredRules)
		}
	})

	t.Run("AlertLifecycle", func(t *testing.T) {
		alert := &domain.FraudAlert{
			ID:            "alert-001",
			TransactionID: "tx-001",
			AnalysisID:    "an-001",
			Type:          domain.AlertTypeHighValue,
			Severity:      domain.TierHigh,
			RiskScore:     6.25,
			Description:   "High value transaction flagged",
			Indicators:    []string{"Unusually high transaction amount"},
			Status:        domain.AlertStatusOpen,
			CreatedAt:     time.Now().UTC(),
		}

		if err := repo.SaveAlert(ctx, tenantID, alert); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}

		retrieved, err := repo.GetAlert(ctx, tenantID, alert.ID)
		if err != nil {
			t.Fatalf("GetAlert failed: %v", err)
		}
		if retrieved.Status != domain.AlertStatusOpen {
			t.Errorf("expected open status, got %s", retrieved.Status)
		}

		active, err := repo.ListActiveAlerts(ctx, tenantID, "", 10)
		if err != nil {
			t.Fatalf("ListActiveAlerts failed: %v", err)
		}
		if len(active) != 1 {
			t.Fatalf("expected 1 active alert, got %d", len(active))
		}

		filtered, err := repo.ListActiveAlerts(ctx, tenantID, domain.TierCritical, 10)
		if err != nil {
			t.Fatalf("ListActiveAlerts failed: %v", err)
		}
		if len(filtered) != 0 {
			t.Errorf("expected 0 critical alerts, got %d", len(filtered))
		}

		if err := repo.ResolveAlert(ctx, tenantID, alert.ID, domain.ResolutionApproved, "verified with customer", "analyst-1"); err != nil {
			t.Fatalf("ResolveAlert failed: %v", err)
		}

		resolved, err := repo.GetAlert(ctx, tenantID, alert.ID)
		if err != nil {
			t.Fatalf("GetAlert failed: %v", err)
		}
		if resolved.Status != domain.AlertStatusResolved {
			t.Errorf("expected resolved status, got %s", resolved.Status)
		}
		if resolved.Resolution != domain.ResolutionApproved {
			t.Errorf("expected resolution approved, got %s", resolved.Resolution)
		}
		if resolved.ResolvedAt == nil {
			t.Error("expected ResolvedAt to be set")
		}

		active, err = repo.ListActiveAlerts(ctx, tenantID, "", 10)
		if err != nil {
			t.Fatalf("ListActiveAlerts failed: %v", err)
		}
		if len(active) != 0 {
			t.Errorf("expected 0 active alerts after resolution, got %d", len(active))
		}
	})

	t.Run("RiskRules", func(t *testing.T) {
		rules := []domain.RiskRule{
			{Name: "b_rule", Category: domain.RuleCategoryAmount, Threshold: 5000, Weight: 3, Active: true},
			{Name: "a_rule", Category: domain.RuleCategoryLocation, Weight: 2, Active: true},
		}

		if err := repo.ReplaceRiskRules(ctx, tenantID, rules); err != nil {
			t.Fatalf("ReplaceRiskRules failed: %v", err)
		}

		stored, err := repo.ListRiskRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListRiskRules failed: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(stored))
		}
		// Position order, not name order.
		if stored[0].Name != "b_rule" || stored[1].Name != "a_rule" {
			t.Errorf("rules out of position order: %v, %v", stored[0].Name, stored[1].Name)
		}

		// Replacement fully discards the previous set.
		if err := repo.ReplaceRiskRules(ctx, tenantID, rules[:1]); err != nil {
			t.Fatalf("ReplaceRiskRules failed: %v", err)
		}
		stored, err = repo.ListRiskRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListRiskRules failed: %v", err)
		}
		if len(stored) != 1 {
			t.Errorf("expected 1 rule after replacement, got %d", len(stored))
		}

		// Upsert updates in place.
		updated := rules[0]
		updated.Weight = 5
		if err := repo.SaveRiskRule(ctx, tenantID, &updated); err != nil {
			t.Fatalf("SaveRiskRule failed: %v", err)
		}
		stored, _ = repo.ListRiskRules(ctx, tenantID)
		if len(stored) != 1 || stored[0].Weight != 5 {
			t.Errorf("expected upserted weight 5, got %+v", stored)
		}
	})

	t.Run("FraudStatistics", func(t *testing.T) {
		flaggedEvent := &domain.TransactionEvent{
			ID:        "tx-flagged",
			AccountID: "acct-009",
			Amount:    9000,
			Currency:  "EUR",
			Kind:      domain.KindDebit,
			Channel:   domain.ChannelOnline,
			Timestamp: time.Now().UTC(),
			CreatedAt: time.Now().UTC(),
		}
		flaggedResult := &domain.AnalysisResult{RiskScore: 8.4, Flagged: true}
		if err := repo.SaveTransaction(ctx, tenantID, flaggedEvent, flaggedResult); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		stats, err := repo.GetFraudStatistics(ctx, tenantID, 7)
		if err != nil {
			t.Fatalf("GetFraudStatistics failed: %v", err)
		}
		if stats.TotalTransactions != 3 {
			t.Errorf("expected 3 transactions, got %d", stats.TotalTransactions)
		}
		if stats.FlaggedTransactions != 1 {
			t.Errorf("expected 1 flagged, got %d", stats.FlaggedTransactions)
		}
		if stats.BlockedAmount != 9000 {
			t.Errorf("expected blocked amount 9000, got %v", stats.BlockedAmount)
		}
		if stats.FraudRatePercent == 0 {
			t.Error("expected non-zero fraud rate")
		}
		if stats.TierDistribution[domain.TierHigh] != 1 {
			t.Errorf("expected 1 high-tier analysis, got %d", stats.TierDistribution[domain.TierHigh])
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetTransaction(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetAnalysis(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetAlert(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
