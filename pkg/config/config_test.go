package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 100*time.Millisecond, cfg.DrainTick)
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", cfg.FreeModel)
	assert.Equal(t, "openai/gpt-4o", cfg.PremiumModel)
	assert.Equal(t, "/tmp/llmgovd.sock", cfg.SocketPath)
	assert.Equal(t, "info", cfg.LogLevel)

	require.Contains(t, cfg.RateLimits, "openai/gpt-4o")
	assert.Equal(t, 60, cfg.RateLimits["openai/gpt-4o"].MaxRequests)

	require.Contains(t, cfg.Pricing, "anthropic/claude-3.5-sonnet")
	assert.Equal(t, 0.003, cfg.Pricing["anthropic/claude-3.5-sonnet"].InputPer1K)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"concurrency zero", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"concurrency over ceiling", func(c *Config) { c.Concurrency = 51 }, "concurrency"},
		{"drain tick zero", func(c *Config) { c.DrainTick = 0 }, "drain_tick"},
		{"batch size zero", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"negative batch delay", func(c *Config) { c.BatchDelay = -time.Second }, "batch_delay"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"zero rate window", func(c *Config) {
			c.RateLimits["openai/gpt-4o"] = RateWindow{MaxRequests: 10, Window: 0}
		}, "rate_limits"},
		{"negative pricing", func(c *Config) {
			p := c.Pricing["openai/gpt-4o"]
			p.InputPer1K = -1
			c.Pricing["openai/gpt-4o"] = p
		}, "pricing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Field, tt.field)
		})
	}
}

func TestLoadFromFile_TOML(t *testing.T) {
	content := `
concurrency = 8
drain_tick = "50ms"
free_model = "google/gemini-2.0-flash-exp:free"
log_level = "debug"

[rate_limits."openai/gpt-4o"]
max_requests = 20
window = "30s"

[budgets.u1]
daily_limit = 2.0
monthly_limit = 40.0
alert_threshold = 75.0
`
	configFile := filepath.Join(t.TempDir(), "governor.toml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := LoadFromFile(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 50*time.Millisecond, cfg.DrainTick)
	assert.Equal(t, "debug", cfg.LogLevel)

	require.Contains(t, cfg.RateLimits, "openai/gpt-4o")
	assert.Equal(t, 20, cfg.RateLimits["openai/gpt-4o"].MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimits["openai/gpt-4o"].Window)

	require.Contains(t, cfg.Budgets, "u1")
	assert.Equal(t, 2.0, cfg.Budgets["u1"].DailyLimit)
	assert.Equal(t, 75.0, cfg.Budgets["u1"].AlertThreshold)

	// Unset keys keep their defaults.
	assert.Equal(t, 10, cfg.BatchSize)
}

func TestLoadFromFile_InvalidValuesRejected(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "governor.toml")
	require.NoError(t, os.WriteFile(configFile, []byte("concurrency = 100\n"), 0644))

	_, err := LoadFromFile(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadWithEnvironment_Overrides(t *testing.T) {
	t.Setenv("MINDFUL_CONCURRENCY", "12")
	t.Setenv("MINDFUL_LOG_LEVEL", "warn")
	t.Setenv("MINDFUL_SOCKET_PATH", "/tmp/alt.sock")

	cfg, err := LoadWithEnvironment()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/tmp/alt.sock", cfg.SocketPath)
}

func TestLoadWithEnvironment_InvalidValueRejected(t *testing.T) {
	t.Setenv("MINDFUL_CONCURRENCY", "0")

	_, err := LoadWithEnvironment()
	assert.Error(t, err)
}

func TestLimiterModels(t *testing.T) {
	cfg := Default()
	models := cfg.LimiterModels()

	require.Contains(t, models, "openai/gpt-4o")
	assert.Equal(t, 60, models["openai/gpt-4o"].MaxRequests)
	assert.Equal(t, time.Minute, models["openai/gpt-4o"].Window)
}
