// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"

	sessiondomain "claude-director/core/internal/session/domain"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the persistence DSN. postgres:// DSNs use pgx; anything
	// else is treated as a SQLite path (e.g. "file:director.db" or ":memory:").
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DefaultContextTTL is the TTL applied to context records created without
	// an explicit TTL (e.g. "30m"). Zero or negative means "never expires".
	DefaultContextTTL string `mapstructure:"DEFAULT_CONTEXT_TTL"`
	// GCInterval is how often the garbage collector sweeps (e.g. "5m").
	GCInterval string `mapstructure:"GC_INTERVAL"`
	// IdleSessionThreshold is how long a session may go without a backup
	// before the sweep ends it (e.g. "1h").
	IdleSessionThreshold string `mapstructure:"IDLE_SESSION_THRESHOLD"`
	// RestartWindow is the max age of the latest backup for restart detection (e.g. "10m").
	RestartWindow string `mapstructure:"RESTART_WINDOW"`
	// RestartMinQuality is the minimum snapshot quality score [0,1] for restart detection.
	RestartMinQuality float64 `mapstructure:"RESTART_MIN_QUALITY"`
	// SwitchLatencyBudget is the context-switch duration above which a warning
	// is logged (e.g. "5ms"). Exceeding it is never an error.
	SwitchLatencyBudget string `mapstructure:"SWITCH_LATENCY_BUDGET"`
	// QualityWeight* weigh the four snapshot components in the session
	// quality score. The score is normalized, so only ratios matter.
	QualityWeightTenantContext float64 `mapstructure:"QUALITY_WEIGHT_TENANT_CONTEXT"`
	QualityWeightConversation  float64 `mapstructure:"QUALITY_WEIGHT_CONVERSATION"`
	QualityWeightParticipants  float64 `mapstructure:"QUALITY_WEIGHT_PARTICIPANTS"`
	QualityWeightTopics        float64 `mapstructure:"QUALITY_WEIGHT_TOPICS"`
	// OTLPEndpoint is the OTLP gRPC endpoint for metrics export; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "file:claudedirector.db")
	v.SetDefault("DEFAULT_CONTEXT_TTL", "0")
	v.SetDefault("GC_INTERVAL", "5m")
	v.SetDefault("IDLE_SESSION_THRESHOLD", "1h")
	v.SetDefault("RESTART_WINDOW", "10m")
	v.SetDefault("RESTART_MIN_QUALITY", 0.5)
	v.SetDefault("SWITCH_LATENCY_BUDGET", "5ms")
	v.SetDefault("QUALITY_WEIGHT_TENANT_CONTEXT", 1.0)
	v.SetDefault("QUALITY_WEIGHT_CONVERSATION", 1.0)
	v.SetDefault("QUALITY_WEIGHT_PARTICIPANTS", 1.0)
	v.SetDefault("QUALITY_WEIGHT_TOPICS", 1.0)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	if cfg.RestartMinQuality < 0 || cfg.RestartMinQuality > 1 {
		return nil, errors.New("config: RESTART_MIN_QUALITY must be between 0 and 1")
	}
	for _, w := range []float64{cfg.QualityWeightTenantContext, cfg.QualityWeightConversation,
		cfg.QualityWeightParticipants, cfg.QualityWeightTopics} {
		if w < 0 {
			return nil, errors.New("config: QUALITY_WEIGHT_* must not be negative")
		}
	}

	return &cfg, nil
}

// ContextTTL parses DefaultContextTTL as a time.Duration. Returns 0 (never
// expires) if unset, invalid, or negative.
func (c *Config) ContextTTL() time.Duration {
	d, err := time.ParseDuration(c.DefaultContextTTL)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// GCSweepInterval parses GCInterval as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) GCSweepInterval() time.Duration {
	d, err := time.ParseDuration(c.GCInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// IdleThreshold parses IdleSessionThreshold as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) IdleThreshold() time.Duration {
	d, err := time.ParseDuration(c.IdleSessionThreshold)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RestartDetectionWindow parses RestartWindow as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) RestartDetectionWindow() time.Duration {
	d, err := time.ParseDuration(c.RestartWindow)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// QualityWeights returns the configured snapshot quality weights.
func (c *Config) QualityWeights() sessiondomain.QualityWeights {
	return sessiondomain.QualityWeights{
		TenantContext: c.QualityWeightTenantContext,
		Conversation:  c.QualityWeightConversation,
		Participants:  c.QualityWeightParticipants,
		Topics:        c.QualityWeightTopics,
	}
}

// LatencyBudget parses SwitchLatencyBudget as a time.Duration. Returns 5ms if unset or invalid.
func (c *Config) LatencyBudget() time.Duration {
	d, err := time.ParseDuration(c.SwitchLatencyBudget)
	if err != nil || d <= 0 {
		return 5 * time.Millisecond
	}
	return d
}
