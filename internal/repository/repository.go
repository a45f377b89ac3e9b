// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation. The scoring
// outcome, when present, is denormalized onto the row for cheap listing.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, event *domain.TransactionEvent, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var riskScore sql.NullFloat64
	flagged := 0
	if result != nil {
		riskScore = sql.NullFloat64{Float64: result.RiskScore, Valid: true}
		if result.Flagged {
			flagged = 1
		}
	}

	var balance sql.NullFloat64
	if event.AccountBalance != nil {
		balance = sql.NullFloat64{Float64: *event.AccountBalance, Valid: true}
	}

	newMerchant := 0
	if event.NewMerchant {
		newMerchant = 1
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, account_id, customer_id, amount, currency,
			kind, channel, timestamp, created_at,
			merchant_name, merchant_category, country, city,
			device_fingerprint, ip_address, new_merchant, account_balance,
			status, risk_score, flagged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID, tenantID, event.AccountID, event.CustomerID,
		event.Amount, event.Currency,
		event.Kind, event.Channel,
		event.Timestamp, event.CreatedAt,
		event.MerchantName, event.MerchantCategory, event.Country, event.City,
		event.DeviceFingerprint, event.IPAddress, newMerchant, balance,
		domain.TxStatusPending, riskScore, flagged,
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.TransactionEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, account_id, customer_id, amount, currency,
			   kind, channel, timestamp, created_at,
			   merchant_name, merchant_category, country, city,
			   device_fingerprint, ip_address, new_merchant, account_balance
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var event domain.TransactionEvent
	var newMerchant int
	var balance sql.NullFloat64

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&event.ID, &event.TenantID, &event.AccountID, &event.CustomerID,
		&event.Amount, &event.Currency,
		&event.Kind, &event.Channel,
		&event.Timestamp, &event.CreatedAt,
		&event.MerchantName, &event.MerchantCategory, &event.Country, &event.City,
		&event.DeviceFingerprint, &event.IPAddress, &newMerchant, &balance,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	event.NewMerchant = newMerchant == 1
	if balance.Valid {
		b := balance.Float64
		event.AccountBalance = &b
	}

	return &event, nil
}

// CountTransactionsByAccount counts transactions for an account since a
// cutoff, with tenant isolation. Feeds the velocity tracker.
func (r *SQLRepository) CountTransactionsByAccount(ctx context.Context, tenantID string, accountID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE tenant_id = ? AND account_id = ? AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, since).Scan(&count)
	return count, err
}

// UpdateTransactionStatus sets the review status of a transaction.
func (r *SQLRepository) UpdateTransactionStatus(ctx context.Context, tenantID string, txID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE transactions SET status = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, tenantID, txID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAnalysis stores an analysis result with tenant isolation.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	indicators, _ := json.Marshal(result.Indicators)
	triggered, _ := json.Marshal(result.TriggeredRules)

	flagged := 0
	if result.Flagged {
		flagged = 1
	}

	query := `
		INSERT INTO analyses (
			id, tenant_id, transaction_id, risk_score, risk_tier, flagged,
			indicators, triggered_rules, model_score, rule_score,
			analyzed_at, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.TransactionID,
		result.RiskScore, result.RiskTier, flagged,
		string(indicators), string(triggered),
		result.ModelScore, result.RuleScore,
		result.AnalyzedAt, result.Error,
	)
	return err
}

// GetAnalysis retrieves an analysis result by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, transaction_id, risk_score, risk_tier, flagged,
			   indicators, triggered_rules, model_score, rule_score,
			   analyzed_at, error
		FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	var result domain.AnalysisResult
	var indicators, triggered string
	var flagged int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID).Scan(
		&result.ID, &result.TenantID, &result.TransactionID,
		&result.RiskScore, &result.RiskTier, &flagged,
		&indicators, &triggered,
		&result.ModelScore, &result.RuleScore,
		&result.AnalyzedAt, &result.Error,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result.Flagged = flagged == 1
	json.Unmarshal([]byte(indicators), &result.Indicators)
	json.Unmarshal([]byte(triggered), &result.TriggeredRules)

	return &result, nil
}

// SaveAlert stores a fraud alert with tenant isolation.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.FraudAlert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	indicators, _ := json.Marshal(alert.Indicators)

	query := `
		INSERT INTO fraud_alerts (
			id, tenant_id, transaction_id, analysis_id, type, severity,
			risk_score, description, indicators, status,
			assigned_to, notes, resolution, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.TransactionID, alert.AnalysisID,
		alert.Type, alert.Severity,
		alert.RiskScore, alert.Description, string(indicators), alert.Status,
		alert.AssignedTo, alert.Notes, alert.Resolution,
		alert.CreatedAt, alert.ResolvedAt,
	)
	return err
}

// GetAlert retrieves a fraud alert by ID with tenant isolation.
func (r *SQLRepository) GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.FraudAlert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, transaction_id, analysis_id, type, severity,
			   risk_score, description, indicators, status,
			   assigned_to, notes, resolution, created_at, resolved_at
		FROM fraud_alerts
		WHERE tenant_id = ? AND id = ?
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return alert, err
}

// ListActiveAlerts retrieves unresolved alerts, newest first, optionally
// filtered by severity.
func (r *SQLRepository) ListActiveAlerts(ctx context.Context, tenantID string, severity string, limit int) ([]*domain.FraudAlert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, transaction_id, analysis_id, type, severity,
			   risk_score, description, indicators, status,
			   assigned_to, notes, resolution, created_at, resolved_at
		FROM fraud_alerts
		WHERE tenant_id = ? AND status IN (?, ?)
	`
	args := []any{tenantID, domain.AlertStatusOpen, domain.AlertStatusInvestigating}

	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.FraudAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// ResolveAlert closes an alert with a resolution and optional notes.
func (r *SQLRepository) ResolveAlert(ctx context.Context, tenantID string, alertID string, resolution, notes, assignee string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE fraud_alerts
		SET status = ?, resolution = ?, notes = ?, assigned_to = ?, resolved_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		domain.AlertStatusResolved, resolution, notes, assignee, time.Now().UTC(),
		tenantID, alertID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRiskRule upserts a single risk rule with tenant isolation.
func (r *SQLRepository) SaveRiskRule(ctx context.Context, tenantID string, rule *domain.RiskRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	active := 0
	if rule.Active {
		active = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_rules (
			name, tenant_id, category, threshold, weight, description,
			expression, active, position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, tenant_id) DO UPDATE SET
			category = excluded.category,
			threshold = excluded.threshold,
			weight = excluded.weight,
			description = excluded.description,
			expression = excluded.expression,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.Name, tenantID, rule.Category, rule.Threshold, rule.Weight,
		rule.Description, rule.Expression, active, 0, now, now,
	)
	return err
}

// ListRiskRules retrieves the stored rule set in position order.
func (r *SQLRepository) ListRiskRules(ctx context.Context, tenantID string) ([]domain.RiskRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT name, category, threshold, weight, description, expression, active
		FROM risk_rules
		WHERE tenant_id = ?
		ORDER BY position, name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.RiskRule
	for rows.Next() {
		var rule domain.RiskRule
		var active int
		if err := rows.Scan(
			&rule.Name, &rule.Category, &rule.Threshold, &rule.Weight,
			&rule.Description, &rule.Expression, &active,
		); err != nil {
			return nil, err
		}
		rule.Active = active == 1
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// ReplaceRiskRules swaps the stored rule set wholesale in one transaction,
// mirroring the engine's atomic update semantics.
func (r *SQLRepository) ReplaceRiskRules(ctx context.Context, tenantID string, rules []domain.RiskRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM risk_rules WHERE tenant_id = ?`), tenantID); err != nil {
		return err
	}

	now := time.Now().UTC()
	insert := r.rebind(`
		INSERT INTO risk_rules (
			name, tenant_id, category, threshold, weight, description,
			expression, active, position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for i, rule := range rules {
		active := 0
		if rule.Active {
			active = 1
		}
		if _, err := tx.ExecContext(ctx, insert,
			rule.Name, tenantID, rule.Category, rule.Threshold, rule.Weight,
			rule.Description, rule.Expression, active, i, now, now,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetFraudStatistics aggregates scoring outcomes over the last N days.
func (r *SQLRepository) GetFraudStatistics(ctx context.Context, tenantID string, days int) (*domain.FraudStatistics, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	stats := &domain.FraudStatistics{
		PeriodDays:       days,
		TierDistribution: make(map[string]int64),
		GeneratedAt:      time.Now().UTC(),
	}

	countQuery := `
		SELECT COUNT(*), COALESCE(SUM(flagged), 0),
			   COALESCE(SUM(CASE WHEN flagged = 1 THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE tenant_id = ? AND timestamp >= ?
	`
	err := r.db.QueryRowContext(ctx, r.rebind(countQuery), tenantID, since).Scan(
		&stats.TotalTransactions, &stats.FlaggedTransactions, &stats.BlockedAmount,
	)
	if err != nil {
		return nil, err
	}
	if stats.TotalTransactions > 0 {
		stats.FraudRatePercent = float64(stats.FlaggedTransactions) / float64(stats.TotalTransactions) * 100
	}

	alertQuery := `
		SELECT COUNT(*)
		FROM fraud_alerts
		WHERE tenant_id = ? AND status IN (?, ?)
	`
	err = r.db.QueryRowContext(ctx, r.rebind(alertQuery),
		tenantID, domain.AlertStatusOpen, domain.AlertStatusInvestigating,
	).Scan(&stats.ActiveAlerts)
	if err != nil {
		return nil, err
	}

	tierQuery := `
		SELECT risk_tier, COUNT(*)
		FROM analyses
		WHERE tenant_id = ? AND analyzed_at >= ?
		GROUP BY risk_tier
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(tierQuery), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var count int64
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		stats.TierDistribution[tier] = count
	}

	return stats, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.FraudAlert, error) {
	var alert domain.FraudAlert
	var indicators string
	var resolvedAt sql.NullTime

	err := s.Scan(
		&alert.ID, &alert.TenantID, &alert.TransactionID, &alert.AnalysisID,
		&alert.Type, &alert.Severity,
		&alert.RiskScore, &alert.Description, &indicators, &alert.Status,
		&alert.AssignedTo, &alert.Notes, &alert.Resolution,
		&alert.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(indicators), &alert.Indicators)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}

	return &alert, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
