package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, 10, v.GetInt("routing.capacity_default"))
	assert.Equal(t, 5, v.GetInt("routing.breaker.failure_threshold"))
	assert.Equal(t, int64(60000), v.GetInt64("routing.breaker.recovery_timeout_ms"))
	assert.Equal(t, 3, v.GetInt("routing.breaker.half_open_success_required"))

	assert.Equal(t, 0.01, v.GetFloat64("learning.learning_rate"))
	assert.Equal(t, 0.8, v.GetFloat64("learning.confidence_threshold"))
	assert.Equal(t, 20, v.GetInt("learning.minimum_sample_size"))
	assert.Equal(t, 0.6, v.GetFloat64("learning.prediction_threshold"))

	assert.Equal(t, 300, v.GetInt("loops.performance_refresh_seconds"))
	assert.Equal(t, 30, v.GetInt("loops.breaker_transitions_seconds"))
	assert.Equal(t, 600, v.GetInt("loops.snapshots_seconds"))
	assert.Equal(t, 1800, v.GetInt("loops.specialization_seconds"))

	assert.Equal(t, "postgres", v.GetString("database.driver"))
	assert.Equal(t, 20, v.GetInt("database.max_open_conns"))
	assert.Equal(t, 5*time.Minute, v.GetDuration("cache.score_cache_ttl"))
}

func TestNewConfigLoaderAppliesDefaults(t *testing.T) {
	loader := NewConfigLoader("")

	cfg, err := loader.Decode()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Routing.CapacityDefault)
	assert.Equal(t, 5, cfg.Routing.Breaker.FailureThreshold)
	assert.Equal(t, 0.01, cfg.Learning.LearningRate)
	assert.Equal(t, 1800, cfg.Loops.SpecializationSeconds)
}

func TestLoadEnvironmentMergesBaseAndEnvFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "router-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	base := `
routing:
  capacity_default: 15
database:
  driver: postgres
`
	prod := `
routing:
  breaker:
    failure_threshold: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.base.yaml"), []byte(base), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.production.yaml"), []byte(prod), 0644))

	loader := NewConfigLoader(dir)
	require.NoError(t, loader.LoadEnvironment("production"))

	cfg, err := loader.Decode()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Routing.CapacityDefault)
	assert.Equal(t, 8, cfg.Routing.Breaker.FailureThreshold)
	// Unset keys keep their default.
	assert.Equal(t, 3, cfg.Routing.Breaker.HalfOpenSuccessRequired)
}

func TestValidateConfigMissingProductionFields(t *testing.T) {
	loader := NewConfigLoader("")
	err := ValidateConfig(loader, "production")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestValidateConfigDevelopmentPasses(t *testing.T) {
	loader := NewConfigLoader("")
	require.NoError(t, ValidateConfig(loader, "development"))
}

func TestValidateConfigRejectsNonPositiveThresholds(t *testing.T) {
	loader := NewConfigLoader("")
	loader.viper.Set("routing.breaker.failure_threshold", 0)
	err := ValidateConfig(loader, "development")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_threshold")
}
