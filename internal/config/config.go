// Package config loads and validates the scanner configuration from a
// YAML file with environment-variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScanConfig is the full runtime configuration.
type ScanConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Movement MovementConfig `yaml:"movement"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Staking  StakingConfig  `yaml:"staking"`
	Server   ServerConfig   `yaml:"server"`
	Alerts   AlertConfig    `yaml:"alerts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RedisConfig holds the stream bus connection.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	ConsumerID string `yaml:"consumer_id"`
	GroupName  string `yaml:"group_name"`
}

// DatabaseConfig holds the Postgres connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ScannerConfig bounds the external API cost per tick.
type ScannerConfig struct {
	EnabledSports     []string      `yaml:"enabled_sports"`
	SportsPerTick     int           `yaml:"sports_per_tick"`
	LowFreqInterval   time.Duration `yaml:"low_freq_interval"`
	HighFreqInterval  time.Duration `yaml:"high_freq_interval"`
	FetchConcurrency  int           `yaml:"fetch_concurrency"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	APICallsPerMinute int           `yaml:"api_calls_per_minute"`
	SnapshotRetention time.Duration `yaml:"snapshot_retention"`
}

// MovementConfig holds the escalation thresholds.
type MovementConfig struct {
	LookbackWindow        time.Duration `yaml:"lookback_window"`
	MovementThresholdPct  float64       `yaml:"movement_threshold_pct"`
	MinVelocity           float64       `yaml:"min_velocity"`
	MinConfirmingBooks    int           `yaml:"min_confirming_books"`
	TightnessPoints       float64       `yaml:"tightness_points"`
	MaxSimultaneousActive int           `yaml:"max_simultaneous_active"`
	ActiveWindow          time.Duration `yaml:"active_window"`
	SamplesRequired       int           `yaml:"samples_required"`
	ReversalThresholdPct  float64       `yaml:"reversal_threshold_pct"`
}

// ScoringConfig holds the tier thresholds.
type ScoringConfig struct {
	PremiumEdgePct  float64       `yaml:"premium_edge_pct"`
	GoodEdgePct     float64       `yaml:"good_edge_pct"`
	MarginalEdgePct float64       `yaml:"marginal_edge_pct"`
	SignalTTL       time.Duration `yaml:"signal_ttl"`
}

// StakingConfig holds bankroll and Kelly clamps.
type StakingConfig struct {
	Bankroll              float64 `yaml:"bankroll"`
	KellyFraction         float64 `yaml:"kelly_fraction"`
	MinStakePct           float64 `yaml:"min_stake_pct"`
	MaxStakePct           float64 `yaml:"max_stake_pct"`
	MinCombinedEdgePct    float64 `yaml:"min_combined_edge_pct"`
	MinLegEdgePct         float64 `yaml:"min_leg_edge_pct"`
	MaxLossCeiling        float64 `yaml:"max_loss_ceiling"`
	MinKellyFraction      float64 `yaml:"min_kelly_fraction"`
	MaxKellyFraction      float64 `yaml:"max_kelly_fraction"`
	CorrelationPenaltyPct float64 `yaml:"correlation_penalty_pct"`
	ComplexityPenaltyPct  float64 `yaml:"complexity_penalty_pct"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AlertConfig bounds signal publication for the downstream notifier.
type AlertConfig struct {
	DedupTTLMinutes int `yaml:"dedup_ttl_minutes"`
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`        // empty = stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"` // rotation threshold
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads a YAML config file and expands ${VAR} environment variables.
func Load(path string) (*ScanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg ScanConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*ScanConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
