package domain

import (
	"math"
	"time"
)

// FeatureLen is the fixed length of a feature vector.
const FeatureLen = 8

// Feature vector positions.
const (
	FeatureLogAmount    = 0 // ln(1 + amount)
	FeatureHour         = 1 // hour of day, 0-23
	FeatureDayOfWeek    = 2 // 0=Monday .. 6=Sunday
	FeatureChannel      = 3 // online=1, atm=2, pos=3, mobile=4
	FeatureCountryRisk  = 4 // home=0, trusted bloc=1, other=2
	FeatureKind         = 5 // debit=1, credit=2, transfer=3
	FeatureMerchantRisk = 6 // high-risk category=2, else 1
	FeatureBalanceRatio = 7 // amount / max(balance, 1), clamped to [0, 2]
)

// FeatureVector is the fixed-length numeric representation of a transaction
// consumed by the statistical models. Always finite.
type FeatureVector [FeatureLen]float64

// IsFinite reports whether every position holds a finite value.
func (f FeatureVector) IsFinite() bool {
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Risk tiers derived from the final score.
const (
	TierLow      = "low"
	TierMedium   = "medium"
	TierHigh     = "high"
	TierCritical = "critical"

	// TierUnknown marks a degraded result: scoring failed and the
	// transaction must be routed to manual review, never auto-approved.
	TierUnknown = "unknown"
)

// AnalysisResult is the output of one scoring call. Produced fresh per call
// and never mutated afterwards.
type AnalysisResult struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	TransactionID string `json:"transactionId"`

	// RiskScore is the fused final score on a 0-10 scale, rounded to two
	// decimals.
	RiskScore float64 `json:"riskScore"`

	// RiskTier: "low", "medium", "high", "critical", or "unknown".
	RiskTier string `json:"riskTier"`

	// Flagged is true when the final score meets the configured threshold.
	// Independent of tier.
	Flagged bool `json:"flagged"`

	// Indicators are human-readable fraud indicator phrases, de-duplicated
	// in insertion order.
	Indicators []string `json:"indicators"`

	// TriggeredRules lists triggered rule names in rule-set order.
	TriggeredRules []string `json:"triggeredRules"`

	// Raw component scores before fusion.
	ModelScore float64 `json:"modelScore"`
	RuleScore  float64 `json:"ruleScore"`

	AnalyzedAt time.Time `json:"analyzedAt"`

	// Error is set only on a degraded "unknown" result.
	Error string `json:"error,omitempty"`
}

// Degraded reports whether this result represents a scoring failure rather
// than a clean assessment.
func (r *AnalysisResult) Degraded() bool {
	return r.RiskTier == TierUnknown
}
