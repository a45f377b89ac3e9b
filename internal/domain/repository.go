// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, event *TransactionEvent, result *AnalysisResult) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*TransactionEvent, error)
	CountTransactionsByAccount(ctx context.Context, tenantID string, accountID string, since time.Time) (int64, error)
	UpdateTransactionStatus(ctx context.Context, tenantID string, txID string, status string) error

	// Analysis results
	SaveAnalysis(ctx context.Context, tenantID string, result *AnalysisResult) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*AnalysisResult, error)

	// Alert lifecycle
	SaveAlert(ctx context.Context, tenantID string, alert *FraudAlert) error
	GetAlert(ctx context.Context, tenantID string, alertID string) (*FraudAlert, error)
	ListActiveAlerts(ctx context.Context, tenantID string, severity string, limit int) ([]*FraudAlert, error)
	ResolveAlert(ctx context.Context, tenantID string, alertID string, resolution, notes, assignee string) error

	// Risk rule configuration; ReplaceRiskRules swaps the stored set
	// wholesale, mirroring the engine's update semantics.
	SaveRiskRule(ctx context.Context, tenantID string, rule *RiskRule) error
	ListRiskRules(ctx context.Context, tenantID string) ([]RiskRule, error)
	ReplaceRiskRules(ctx context.Context, tenantID string, rules []RiskRule) error

	// Reporting
	GetFraudStatistics(ctx context.Context, tenantID string, days int) (*FraudStatistics, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Transaction review statuses persisted alongside scoring output.
const (
	TxStatusPending       = "pending"
	TxStatusApproved      = "approved"
	TxStatusBlocked       = "blocked"
	TxStatusInvestigating = "investigating"
	TxStatusEscalated     = "escalated"
	TxStatusReview        = "manual_review"
)

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
