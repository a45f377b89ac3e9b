package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine is the scoring orchestrator and the sole entry point the rest of
// the system calls. One instance owns one pair of fitted models and one
// active rule-set snapshot; Analyze is safe for concurrent use.
type Engine struct {
	cfg       domain.ScoringConfig
	extractor *Extractor
	evaluator *Evaluator
	scorer    *Scorer
	fuser     *Fuser
	logger    *slog.Logger
}

// New fits the statistical models, loads the given rule set (or the
// built-in defaults when nil), and returns a ready engine.
func New(cfg domain.ScoringConfig, rules []domain.RiskRule, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = DefaultRules()
	}

	evaluator, err := NewEvaluator(cfg.HomeCountry, rules)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk rules: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		extractor: NewExtractor(cfg),
		evaluator: evaluator,
		scorer:    NewScorer(logger),
		fuser:     NewFuser(cfg),
		logger:    logger,
	}, nil
}

// Analyze scores one transaction event. It never fails outward: any
// internal fault is converted into a degraded unknown-tier result that
// callers must route to manual review, never auto-approve.
//
// activity carries the caller-supplied recent-transaction signal for
// velocity rules; nil means velocity rules do not trigger.
func (e *Engine) Analyze(event *domain.TransactionEvent, activity *domain.RecentActivity) (result *domain.AnalysisResult) {
	analysisID := uuid.New().String()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scoring pipeline failed",
				"transaction_id", event.ID,
				"panic", r)
			result = degradedResult(analysisID, event, fmt.Sprintf("scoring failed: %v", r))
		}
	}()

	if event.Timestamp.IsZero() {
		clone := *event
		clone.Timestamp = time.Now().UTC()
		event = &clone
	}

	features := e.extractor.Extract(event)
	ruleScore, triggeredRules := e.evaluator.Evaluate(event, activity)
	modelScore := e.scorer.Score(features)

	finalScore := round2(e.fuser.Fuse(ruleScore, modelScore))
	tier := e.fuser.Classify(finalScore)

	return &domain.AnalysisResult{
		ID:             analysisID,
		TenantID:       event.TenantID,
		TransactionID:  event.ID,
		RiskScore:      finalScore,
		RiskTier:       tier,
		Flagged:        finalScore >= e.cfg.FlagThreshold,
		Indicators:     Indicators(triggeredRules, features),
		TriggeredRules: triggeredRules,
		ModelScore:     modelScore,
		RuleScore:      ruleScore,
		AnalyzedAt:     time.Now().UTC(),
	}
}

// degradedResult is the conservative-failure output: zero score, unknown
// tier, not flagged, with the fault description embedded.
func degradedResult(analysisID string, event *domain.TransactionEvent, errDesc string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:             analysisID,
		TenantID:       event.TenantID,
		TransactionID:  event.ID,
		RiskScore:      0,
		RiskTier:       domain.TierUnknown,
		Flagged:        false,
		Indicators:     []string{},
		TriggeredRules: []string{},
		AnalyzedAt:     time.Now().UTC(),
		Error:          errDesc,
	}
}

// UpdateRiskRules fully replaces the active rule set. The swap is atomic:
// in-flight Analyze calls see either the old or the new set in full.
func (e *Engine) UpdateRiskRules(rules []domain.RiskRule) error {
	if err := e.evaluator.Replace(rules); err != nil {
		return err
	}
	e.logger.Info("risk rules updated", "count", len(rules))
	return nil
}

// Rules returns the current rule set in iteration order.
func (e *Engine) Rules() []domain.RiskRule {
	return e.evaluator.Rules()
}

// ModelPerformance is the read-only diagnostics view of the engine.
type ModelPerformance struct {
	ModelsLoaded   int       `json:"modelsLoaded"`
	RulesActive    int       `json:"rulesActive"`
	LastUpdated    time.Time `json:"lastUpdated"`
	FraudThreshold float64   `json:"fraudThreshold"`
}

// Performance reports model and rule-set diagnostics. Not used in the
// scoring hot path.
func (e *Engine) Performance() ModelPerformance {
	return ModelPerformance{
		ModelsLoaded:   e.scorer.ModelCount(),
		RulesActive:    e.evaluator.ActiveCount(),
		LastUpdated:    e.evaluator.UpdatedAt(),
		FraudThreshold: e.cfg.FlagThreshold,
	}
}
