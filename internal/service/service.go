// Package service runs the end-to-end fraud scoring pipeline: velocity
// lookup, scoring, persistence, caching, alerting, and event publication.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/alert"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/velocity"
)

// defaultAnalysisTTL bounds how long a scored result is served from cache.
const defaultAnalysisTTL = 5 * time.Minute

// Service orchestrates one transaction through the scoring pipeline.
// Only the scoring step is mandatory: every collaborator may be nil and
// its pipeline stage is skipped, so a minimal deployment still scores.
type Service struct {
	engine  *engine.Engine
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	tracker *velocity.Tracker
	alerts  *alert.Dispatcher
	logger  *slog.Logger

	analysisTTL time.Duration
}

// New creates the scoring service. engine is required.
func New(eng *engine.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, tracker *velocity.Tracker, alerts *alert.Dispatcher, logger *slog.Logger) (*Service, error) {
	if eng == nil {
		return nil, fmt.Errorf("scoring engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:      eng,
		repo:        repo,
		cache:       cache,
		bus:         bus,
		tracker:     tracker,
		alerts:      alerts,
		logger:      logger,
		analysisTTL: defaultAnalysisTTL,
	}, nil
}

// ProcessResult is returned for each processed transaction.
type ProcessResult struct {
	TransactionID  string                 `json:"transactionId"`
	Status         string                 `json:"status"`
	Analysis       *domain.AnalysisResult `json:"riskAssessment"`
	RequiresReview bool                   `json:"requiresReview"`
	Alert          *domain.FraudAlert     `json:"alert,omitempty"`

	// Cached marks a result served from a previous scoring of the same
	// transaction id.
	Cached bool `json:"cached,omitempty"`
}

// Process scores a transaction and runs the full downstream pipeline.
// Scoring itself never fails; a degraded result is routed to manual
// review. Persistence or delivery failures are logged and reported, but
// the caller always receives the scoring outcome.
func (s *Service) Process(ctx context.Context, tenantID string, event *domain.TransactionEvent) (*ProcessResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if event == nil || event.ID == "" {
		return nil, fmt.Errorf("transaction event with id is required")
	}

	start := time.Now()

	// Re-submission of an already scored transaction returns the cached
	// result instead of scoring (and alerting) twice.
	if s.cache != nil {
		if cached, err := s.cache.GetAnalysis(ctx, tenantID, event.ID); err == nil && cached != nil {
			return &ProcessResult{
				TransactionID:  event.ID,
				Status:         statusFor(cached),
				Analysis:       cached,
				RequiresReview: cached.Flagged || cached.Degraded(),
				Cached:         true,
			}, nil
		}
	}

	var activity *domain.RecentActivity
	if s.tracker != nil {
		recent, err := s.tracker.Recent(ctx, tenantID, event.AccountID)
		if err != nil {
			s.logger.Warn("velocity lookup failed, scoring without activity signal",
				"tx_id", event.ID,
				"error", err,
			)
		} else {
			activity = recent
		}
	}

	result := s.engine.Analyze(event, activity)
	result.TenantID = tenantID
	status := statusFor(result)

	if s.repo != nil {
		if err := s.repo.SaveTransaction(ctx, tenantID, event, result); err != nil {
			s.logger.Error("failed to save transaction", "tx_id", event.ID, "error", err)
		} else if status != domain.TxStatusPending {
			if err := s.repo.UpdateTransactionStatus(ctx, tenantID, event.ID, status); err != nil {
				s.logger.Error("failed to update transaction status", "tx_id", event.ID, "error", err)
			}
		}
		if err := s.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			s.logger.Error("failed to save analysis", "analysis_id", result.ID, "error", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetAnalysis(ctx, tenantID, event.ID, result, s.analysisTTL); err != nil {
			s.logger.Warn("failed to cache analysis", "tx_id", event.ID, "error", err)
		}
	}

	if s.tracker != nil {
		if _, err := s.tracker.Observe(ctx, tenantID, event.AccountID); err != nil {
			s.logger.Warn("failed to record velocity observation", "tx_id", event.ID, "error", err)
		}
	}

	var raised *domain.FraudAlert
	if s.alerts != nil && (result.Flagged || result.Degraded()) {
		a, err := s.alerts.Raise(ctx, tenantID, event, result)
		if err != nil {
			s.logger.Error("failed to raise alert", "tx_id", event.ID, "error", err)
		} else {
			raised = a
		}
	}

	s.publishScored(ctx, tenantID, result)

	s.logger.Info("transaction processed",
		"tx_id", event.ID,
		"tenant_id", tenantID,
		"risk_score", result.RiskScore,
		"risk_tier", result.RiskTier,
		"flagged", result.Flagged,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &ProcessResult{
		TransactionID:  event.ID,
		Status:         status,
		Analysis:       result,
		RequiresReview: result.Flagged || result.Degraded(),
		Alert:          raised,
	}, nil
}

// statusFor maps a scoring outcome to the stored transaction status. A
// degraded result must never auto-approve.
func statusFor(result *domain.AnalysisResult) string {
	switch {
	case result.Degraded():
		return domain.TxStatusReview
	case result.Flagged:
		return domain.TxStatusInvestigating
	default:
		return domain.TxStatusApproved
	}
}

func (s *Service) publishScored(ctx context.Context, tenantID string, result *domain.AnalysisResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("failed to marshal analysis", "analysis_id", result.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, domain.TopicTransactionScored, payload); err != nil {
		s.logger.Error("failed to publish scored result",
			"analysis_id", result.ID,
			"topic", domain.TopicTransactionScored,
			"error", err,
		)
	}
}

// GetAnalysis returns a stored analysis by its id.
func (s *Service) GetAnalysis(ctx context.Context, tenantID, analysisID string) (*domain.AnalysisResult, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("repository not available")
	}
	return s.repo.GetAnalysis(ctx, tenantID, analysisID)
}

// UpdateRiskRules atomically replaces the active rule set, persists the
// new configuration, and announces the change. The engine swap happens
// first; a rule set the engine rejects is never stored. The engine runs
// one rule set for all tenants, so the configuration is persisted and
// announced under the global tenant — the same identity boot reloads
// from — never under the caller.
func (s *Service) UpdateRiskRules(ctx context.Context, rules []domain.RiskRule) error {
	if err := s.engine.UpdateRiskRules(rules); err != nil {
		return fmt.Errorf("failed to update risk rules: %w", err)
	}

	if s.repo != nil {
		if err := s.repo.ReplaceRiskRules(ctx, domain.GlobalTenantID, rules); err != nil {
			s.logger.Error("failed to persist risk rules", "error", err)
		}
	}

	if s.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"count":     len(rules),
			"updatedAt": time.Now().UTC(),
		})
		if err := s.bus.Publish(ctx, domain.GlobalTenantID, domain.TopicRulesUpdated, payload); err != nil {
			s.logger.Warn("failed to announce rule update", "error", err)
		}
	}

	s.logger.Info("risk rules updated", "count", len(rules))
	return nil
}

// ReloadRules loads the stored global rule set into the engine.
// Returns the number of rules loaded.
func (s *Service) ReloadRules(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("repository not available")
	}

	rules, err := s.repo.ListRiskRules(ctx, domain.GlobalTenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list risk rules: %w", err)
	}
	if len(rules) == 0 {
		return 0, fmt.Errorf("no stored rules")
	}

	if err := s.engine.UpdateRiskRules(rules); err != nil {
		return 0, fmt.Errorf("failed to reload risk rules: %w", err)
	}

	s.logger.Info("risk rules reloaded", "count", len(rules))
	return len(rules), nil
}

// Rules returns the engine's active rule set.
func (s *Service) Rules() []domain.RiskRule {
	return s.engine.Rules()
}

// Performance returns engine state diagnostics.
func (s *Service) Performance() engine.ModelPerformance {
	return s.engine.Performance()
}

// Statistics returns fraud statistics over the reporting window.
func (s *Service) Statistics(ctx context.Context, tenantID string, days int) (*domain.FraudStatistics, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("repository not available")
	}
	return s.repo.GetFraudStatistics(ctx, tenantID, days)
}
