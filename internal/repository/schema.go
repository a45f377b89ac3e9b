package repository

// Schema definitions for Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    customer_id TEXT,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    kind TEXT NOT NULL,
    channel TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    merchant_name TEXT,
    merchant_category TEXT,
    country TEXT,
    city TEXT,
    device_fingerprint TEXT,
    ip_address TEXT,
    new_merchant INTEGER NOT NULL DEFAULT 0,
    account_balance REAL,
    status TEXT NOT NULL DEFAULT 'pending',
    risk_score REAL,
    flagged INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(tenant_id, account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_flagged ON transactions(tenant_id, flagged);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_tier TEXT NOT NULL,
    flagged INTEGER NOT NULL DEFAULT 0,
    indicators TEXT NOT NULL,
    triggered_rules TEXT NOT NULL,
    model_score REAL NOT NULL,
    rule_score REAL NOT NULL,
    analyzed_at TIMESTAMP NOT NULL,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_tx ON analyses(tenant_id, transaction_id);
CREATE INDEX IF NOT EXISTS idx_analyses_tier ON analyses(tenant_id, risk_tier);
CREATE INDEX IF NOT EXISTS idx_analyses_analyzed ON analyses(tenant_id, analyzed_at);
`

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    analysis_id TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    risk_score REAL NOT NULL,
    description TEXT,
    indicators TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    assigned_to TEXT,
    notes TEXT,
    resolution TEXT,
    created_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_tenant ON fraud_alerts(tenant_id);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_status ON fraud_alerts(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_severity ON fraud_alerts(tenant_id, severity);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_created ON fraud_alerts(tenant_id, created_at);
`

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    name TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    category TEXT NOT NULL,
    threshold REAL NOT NULL DEFAULT 0,
    weight REAL NOT NULL DEFAULT 1.0,
    description TEXT,
    expression TEXT,
    active INTEGER NOT NULL DEFAULT 1,
    position INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (name, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_tenant ON risk_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_risk_rules_active ON risk_rules(tenant_id, active);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAnalyses,
		schemaFraudAlerts,
		schemaRiskRules,
	}
}
