package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "FEEDBACK", cfg.StreamName)
	assert.Equal(t, "feedback.events", cfg.Subject)
	assert.Equal(t, "feedback.dlq", cfg.DLQSubject)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 0.1, cfg.EMAAlpha)
	assert.Equal(t, 3.0, cfg.SeedAverage)
	assert.Equal(t, 2.5, cfg.AlertThreshold)
	assert.Equal(t, 24*time.Hour, cfg.AlertCooldown)
	assert.Equal(t, 5*time.Minute, cfg.IdempotencyLease)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyRetention)
	assert.Equal(t, -5.0, cfg.ScorerMin)
	assert.Equal(t, 5.0, cfg.ScorerMax)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("EMA_ALPHA", "0.25")
	t.Setenv("ALERT_COOLDOWN", "6h")
	t.Setenv("NATS_MAX_DELIVERIES", "10")

	cfg := LoadFromEnv()

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 0.25, cfg.EMAAlpha)
	assert.Equal(t, 6*time.Hour, cfg.AlertCooldown)
	assert.Equal(t, 10, cfg.MaxDeliveries)
}

func TestLoadFromEnvMalformedValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("EMA_ALPHA", "lots")
	t.Setenv("ALERT_COOLDOWN", "yesterday")

	cfg := LoadFromEnv()

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 0.1, cfg.EMAAlpha)
	assert.Equal(t, 24*time.Hour, cfg.AlertCooldown)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return LoadFromEnv()
	}

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha zero", func(c *Config) { c.EMAAlpha = 0 }},
		{"alpha above one", func(c *Config) { c.EMAAlpha = 1.5 }},
		{"empty score domain", func(c *Config) { c.ScoreDomainMin, c.ScoreDomainMax = 5, 5 }},
		{"seed outside domain", func(c *Config) { c.SeedAverage = 9 }},
		{"threshold outside domain", func(c *Config) { c.AlertThreshold = -1 }},
		{"empty scorer range", func(c *Config) { c.ScorerMin, c.ScorerMax = 5, -5 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"retention not above lease", func(c *Config) { c.IdempotencyRetention = c.IdempotencyLease }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("development", func(t *testing.T) {
		logger, err := NewLogger(&Config{AppEnv: "development"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("production", func(t *testing.T) {
		logger, err := NewLogger(&Config{AppEnv: "production"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})
}
