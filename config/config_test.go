package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "SEQUENCE_BACKEND", "IDEMPOTENCY_TTL_SECONDS", "SWEEP_INTERVAL_SECONDS", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sql", cfg.Business.SequenceBackend)
	assert.Equal(t, 24*time.Hour, cfg.Business.IdempotencyTTL)
	assert.Equal(t, 5*time.Minute, cfg.Business.SweepInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "60")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()

	assert.Equal(t, time.Minute, cfg.Business.SweepInterval)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(*Config) bool
	}{
		{"SWEEP_INTERVAL_SECONDS", "5m", func(c *Config) bool { return c.Business.SweepInterval == 300*time.Second }},
		{"SWEEP_INTERVAL_SECONDS", "0", func(c *Config) bool { return c.Business.SweepInterval == 300*time.Second }},
		{"IDEMPOTENCY_TTL_SECONDS", "0", func(c *Config) bool { return c.Business.IdempotencyTTL == 86400*time.Second }},
		{"ORPHAN_LOCK_TIMEOUT_SECONDS", "-5", func(c *Config) bool { return c.Business.OrphanLockTimeout == 900*time.Second }},
		{"JWT_TTL_HOURS", "abc", func(c *Config) bool { return c.Auth.TokenTTL == 24*time.Hour }},
		{"RATE_LIMIT_RPS", "0", func(c *Config) bool { return c.Server.RateLimitRPS == 20 }},
		{"RATE_LIMIT_BURST", "-1", func(c *Config) bool { return c.Server.RateLimitBurst == 40 }},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			assert.True(t, tt.check(Load()))
		})
	}
}
