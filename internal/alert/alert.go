// Package alert turns flagged analyses into fraud alerts and dispatches
// notifications for the ones an investigator must see promptly.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Dispatcher creates fraud alerts from flagged analysis results and
// notifies downstream consumers. Notification failures are logged and
// never propagate: an undelivered alert must not fail the scoring call
// that produced it.
type Dispatcher struct {
	repo   domain.Repository
	bus    domain.EventBus
	logger *slog.Logger
}

// NewDispatcher creates an alert dispatcher. repo and bus may be nil;
// the corresponding step is skipped.
func NewDispatcher(repo domain.Repository, bus domain.EventBus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		repo:   repo,
		bus:    bus,
		logger: logger,
	}
}

// Raise builds and persists a FraudAlert for a flagged analysis. High and
// critical severities are additionally dispatched on the alert topic.
func (d *Dispatcher) Raise(ctx context.Context, tenantID string, event *domain.TransactionEvent, result *domain.AnalysisResult) (*domain.FraudAlert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if event == nil || result == nil {
		return nil, fmt.Errorf("event and result are required")
	}

	now := time.Now().UTC()
	a := &domain.FraudAlert{
		ID:            fmt.Sprintf("FA-%s-%s", now.Format("2006"), uuid.NewString()[:8]),
		TenantID:      tenantID,
		TransactionID: event.ID,
		AnalysisID:    result.ID,
		Type:          Classify(result.TriggeredRules),
		Severity:      result.RiskTier,
		RiskScore:     result.RiskScore,
		Description:   describe(result),
		Indicators:    result.Indicators,
		Status:        domain.AlertStatusOpen,
		CreatedAt:     now,
	}

	if d.repo != nil {
		if err := d.repo.SaveAlert(ctx, tenantID, a); err != nil {
			return nil, fmt.Errorf("failed to save alert: %w", err)
		}
	}

	d.logger.Info("fraud alert created",
		"alert_id", a.ID,
		"tx_id", a.TransactionID,
		"type", a.Type,
		"severity", a.Severity,
	)

	if a.Severity == domain.TierHigh || a.Severity == domain.TierCritical || a.Severity == domain.TierUnknown {
		d.notify(ctx, tenantID, a)
	}

	return a, nil
}

// Classify maps the triggered rule names to an alert type. The first
// matching family wins; a flag with no rule hits is a model anomaly.
func Classify(triggeredRules []string) string {
	triggered := func(name string) bool {
		for _, r := range triggeredRules {
			if r == name {
				return true
			}
		}
		return false
	}

	switch {
	case triggered("high_amount_threshold"):
		return domain.AlertTypeHighValue
	case triggered("foreign_transaction"):
		return domain.AlertTypeLocation
	case triggered("velocity_check"):
		return domain.AlertTypeVelocity
	case triggered("unusual_time"):
		return domain.AlertTypeOffHours
	default:
		return domain.AlertTypeAnomaly
	}
}

// describe builds the human-readable alert summary shown in alert queues.
func describe(result *domain.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transaction flagged with %s risk (score: %.1f).", result.RiskTier, result.RiskScore)

	if len(result.Indicators) > 0 {
		shown := result.Indicators
		if len(shown) > 3 {
			shown = shown[:3]
		}
		fmt.Fprintf(&b, " Indicators: %s", strings.Join(shown, ", "))
		if extra := len(result.Indicators) - 3; extra > 0 {
			fmt.Fprintf(&b, " and %d more", extra)
		}
	}

	return b.String()
}

// notify logs the alert at WARN and publishes it on the alert topic.
func (d *Dispatcher) notify(ctx context.Context, tenantID string, a *domain.FraudAlert) {
	d.logger.Warn("FRAUD ALERT",
		"alert_id", a.ID,
		"tx_id", a.TransactionID,
		"severity", a.Severity,
		"risk_score", a.RiskScore,
		"description", a.Description,
	)

	if d.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		d.logger.Error("failed to marshal alert", "alert_id", a.ID, "error", err)
		return
	}
	if err := d.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
		d.logger.Error("failed to publish alert",
			"alert_id", a.ID,
			"topic", domain.TopicAlert,
			"error", err,
		)
	}
}
