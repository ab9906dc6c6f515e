// Package config holds the process-wide configuration for the agent router,
// loaded once at startup. On SIGHUP, router-server decodes the loader's
// settings again without re-reading the config files; components built at
// startup keep the values they were given.
package config

import "time"

// Config is the router's full configuration surface, matching §6 of the
// routing specification. Every field has a documented default; a zero-value
// Config is invalid, and Defaults() returns a populated one.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Learning LearningConfig `mapstructure:"learning"`
	Loops    LoopsConfig    `mapstructure:"loops"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// APIConfig holds the HTTP listener settings for the routing API.
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// RoutingConfig holds Scorer, Selector and CircuitBreaker tuning knobs.
type RoutingConfig struct {
	CapacityDefault int            `mapstructure:"capacity_default"`
	Breaker         BreakerConfig  `mapstructure:"breaker"`
}

// BreakerConfig holds the per-agent circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold       int           `mapstructure:"failure_threshold"`
	RecoveryTimeout        time.Duration `mapstructure:"recovery_timeout_ms"`
	HalfOpenSuccessRequired int          `mapstructure:"half_open_success_required"`
}

// LearningConfig holds LearningEngine tuning knobs.
type LearningConfig struct {
	LearningRate       float64 `mapstructure:"learning_rate"`
	ExplorationRate    float64 `mapstructure:"exploration_rate"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MinimumSampleSize  int     `mapstructure:"minimum_sample_size"`
	PredictionThreshold float64 `mapstructure:"prediction_threshold"`
}

// LoopsConfig holds the cadence of the four ControlLoops.
type LoopsConfig struct {
	PerformanceRefreshSeconds int `mapstructure:"performance_refresh_seconds"`
	BreakerTransitionsSeconds int `mapstructure:"breaker_transitions_seconds"`
	SnapshotsSeconds          int `mapstructure:"snapshots_seconds"`
	SpecializationSeconds     int `mapstructure:"specialization_seconds"`
}

// DatabaseConfig holds the relational store connection settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig holds the key/value cache connection settings.
type CacheConfig struct {
	Address        string        `mapstructure:"address"`
	ScoreCacheTTL  time.Duration `mapstructure:"score_cache_ttl"`
}

// Defaults returns a Config populated with the defaults enumerated in §6
// of the routing specification.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			ListenAddress: ":8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  15 * time.Second,
			IdleTimeout:   60 * time.Second,
		},
		Routing: RoutingConfig{
			CapacityDefault: 10,
			Breaker: BreakerConfig{
				FailureThreshold:        5,
				RecoveryTimeout:         60 * time.Second,
				HalfOpenSuccessRequired: 3,
			},
		},
		Learning: LearningConfig{
			LearningRate:        0.01,
			ExplorationRate:     0.1,
			ConfidenceThreshold: 0.8,
			MinimumSampleSize:   20,
			PredictionThreshold: 0.6,
		},
		Loops: LoopsConfig{
			PerformanceRefreshSeconds: 300,
			BreakerTransitionsSeconds: 30,
			SnapshotsSeconds:          600,
			SpecializationSeconds:     1800,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Cache: CacheConfig{
			ScoreCacheTTL: 5 * time.Minute,
		},
	}
}
