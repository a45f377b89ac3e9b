package domain

import "time"

// Alert statuses.
const (
	AlertStatusOpen          = "open"
	AlertStatusInvestigating = "investigating"
	AlertStatusResolved      = "resolved"
	AlertStatusFalsePositive = "false_positive"
)

// Alert resolutions.
const (
	ResolutionApproved  = "approved"
	ResolutionBlocked   = "blocked"
	ResolutionEscalated = "escalated"
)

// Alert types, derived from which rule family drove the flag.
const (
	AlertTypeHighValue = "high_value_transaction"
	AlertTypeLocation  = "suspicious_location"
	AlertTypeVelocity  = "rapid_transactions"
	AlertTypeOffHours  = "off_hours_transaction"
	AlertTypeAnomaly   = "anomaly_detected"
)

// FraudAlert is raised for a flagged transaction and tracked through
// investigation.
type FraudAlert struct {
	ID            string  `json:"id"`
	TenantID      string  `json:"tenantId"`
	TransactionID string  `json:"transactionId"`
	AnalysisID    string  `json:"analysisId"`
	Type          string  `json:"type"`
	Severity      string  `json:"severity"` // risk tier of the analysis
	RiskScore     float64 `json:"riskScore"`
	Description   string  `json:"description"`

	Indicators []string `json:"indicators"`

	// Investigation lifecycle
	Status     string `json:"status"`
	AssignedTo string `json:"assignedTo,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Resolution string `json:"resolution,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// FraudStatistics summarizes scoring outcomes over a reporting window.
type FraudStatistics struct {
	PeriodDays          int              `json:"periodDays"`
	TotalTransactions   int64            `json:"totalTransactions"`
	FlaggedTransactions int64            `json:"flaggedTransactions"`
	FraudRatePercent    float64          `json:"fraudRatePercent"`
	ActiveAlerts        int64            `json:"activeAlerts"`
	BlockedAmount       float64          `json:"blockedAmount"`
	TierDistribution    map[string]int64 `json:"tierDistribution"`
	GeneratedAt         time.Time        `json:"generatedAt"`
}
