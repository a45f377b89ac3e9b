package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing-service selection
	Tier Tier `json:"tier"`

	// Scoring holds the runtime-adjustable scoring surface.
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScoringConfig is the runtime configuration surface of the scoring engine.
// Every value here is adjustable without redeploying core logic.
type ScoringConfig struct {
	// HomeCountry is the domestic country code (feature position 4 = 0).
	HomeCountry string `json:"homeCountry"`

	// TrustedBloc lists country codes treated as reduced-risk
	// (feature position 4 = 1).
	TrustedBloc []string `json:"trustedBloc"`

	// HighRiskMerchantCategories score 2 at feature position 6.
	HighRiskMerchantCategories []string `json:"highRiskMerchantCategories"`

	// DefaultAccountBalance substitutes for an absent balance when
	// computing the balance-utilization feature.
	DefaultAccountBalance float64 `json:"defaultAccountBalance"`

	// RuleWeight and ModelWeight combine the rule and model scores.
	RuleWeight  float64 `json:"ruleWeight"`
	ModelWeight float64 `json:"modelWeight"`

	// Tier boundaries on the 0-10 final score.
	CriticalThreshold float64 `json:"criticalThreshold"`
	HighThreshold     float64 `json:"highThreshold"`
	MediumThreshold   float64 `json:"mediumThreshold"`

	// FlagThreshold flags a transaction when the final score meets it.
	// Note: the final score is on a 0-10 scale while the inherited default
	// (0.7) reads like a 0-1 probability. The mismatch is deliberate and
	// preserved: integrators must set this value for their score scale.
	FlagThreshold float64 `json:"flagThreshold"`

	// VelocityWindow bounds the recent-activity lookback for velocity
	// rules.
	VelocityWindow time.Duration `json:"velocityWindow"`
}

// DefaultScoringConfig mirrors the production defaults for an Irish home
// market with an EU trusted bloc.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		HomeCountry:                "IE",
		TrustedBloc:                []string{"IE", "GB", "FR", "DE", "ES", "IT", "NL", "BE", "AT", "PT"},
		HighRiskMerchantCategories: []string{"gambling", "crypto", "cash_advance", "money_transfer"},
		DefaultAccountBalance:      10000,
		RuleWeight:                 0.6,
		ModelWeight:                0.4,
		CriticalThreshold:          8.0,
		HighThreshold:              6.0,
		MediumThreshold:            4.0,
		FlagThreshold:              0.7,
		VelocityWindow:             10 * time.Minute,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// GlobalTenantID owns platform-wide data, most importantly the rule set
// the scoring engine runs. Rule management is restricted to it: the
// engine holds a single rule set, so a per-tenant update would rewire
// scoring for everyone.
const GlobalTenantID = "*"

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:    TierCommunity,
		Scoring: DefaultScoringConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
