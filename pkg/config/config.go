package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/costs"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/ratelimit"
)

// RateWindow configures the fixed admission window for one model
type RateWindow struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// Config holds the governor configuration
type Config struct {
	Concurrency int           `mapstructure:"concurrency"`
	DrainTick   time.Duration `mapstructure:"drain_tick"`

	FreeModel    string `mapstructure:"free_model"`
	PremiumModel string `mapstructure:"premium_model"`

	RateLimits map[string]RateWindow         `mapstructure:"rate_limits"`
	Pricing    map[string]costs.ModelPricing `mapstructure:"pricing"`
	Budgets    map[string]costs.Budget       `mapstructure:"budgets"`

	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	UserDelay  time.Duration `mapstructure:"user_delay"`

	SocketPath string `mapstructure:"socket_path"`
	PidFile    string `mapstructure:"pid_file"`
	DBPath     string `mapstructure:"db_path"`
	LogLevel   string `mapstructure:"log_level"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// Default returns the built-in configuration
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&config)
	return &config
}

// LoadFromFile loads configuration from a TOML file, layered over defaults
func LoadFromFile(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configFile)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadWithEnvironment loads configuration with MINDFUL_-prefixed environment
// variable overrides layered over defaults
func LoadWithEnvironment() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MINDFUL")
	v.AutomaticEnv()

	envMappings := map[string]string{
		"MINDFUL_CONCURRENCY": "concurrency",
		"MINDFUL_DRAIN_TICK":  "drain_tick",
		"MINDFUL_BATCH_SIZE":  "batch_size",
		"MINDFUL_BATCH_DELAY": "batch_delay",
		"MINDFUL_USER_DELAY":  "user_delay",
		"MINDFUL_SOCKET_PATH": "socket_path",
		"MINDFUL_PID_FILE":    "pid_file",
		"MINDFUL_DB_PATH":     "db_path",
		"MINDFUL_LOG_LEVEL":   "log_level",
	}
	for envVar, key := range envMappings {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", envVar, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 5)
	v.SetDefault("drain_tick", "100ms")
	v.SetDefault("free_model", "google/gemini-2.0-flash-exp:free")
	v.SetDefault("premium_model", "openai/gpt-4o")
	v.SetDefault("rate_limits", map[string]RateWindow{
		"openai/gpt-4o": {MaxRequests: 60, Window: time.Minute},
	})
	v.SetDefault("pricing", map[string]costs.ModelPricing{
		"openai/gpt-4o":                    {InputPer1K: 0.0025, OutputPer1K: 0.01},
		"anthropic/claude-3.5-sonnet":      {InputPer1K: 0.003, OutputPer1K: 0.015},
		"google/gemini-2.0-flash-exp:free": {InputPer1K: 0, OutputPer1K: 0},
	})
	v.SetDefault("batch_size", 10)
	v.SetDefault("batch_delay", "100ms")
	v.SetDefault("user_delay", "1s")
	v.SetDefault("socket_path", "/tmp/llmgovd.sock")
	v.SetDefault("pid_file", "/tmp/llmgovd.pid")
	v.SetDefault("db_path", "/tmp/llmgov-events.db")
	v.SetDefault("log_level", "info")
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > 50 {
		return ValidationError{
			Field:   "concurrency",
			Value:   c.Concurrency,
			Message: "must be between 1 and 50",
		}
	}
	if c.DrainTick <= 0 {
		return ValidationError{
			Field:   "drain_tick",
			Value:   c.DrainTick,
			Message: "must be positive",
		}
	}
	if c.BatchSize < 1 {
		return ValidationError{
			Field:   "batch_size",
			Value:   c.BatchSize,
			Message: "must be at least 1",
		}
	}
	if c.BatchDelay < 0 {
		return ValidationError{
			Field:   "batch_delay",
			Value:   c.BatchDelay,
			Message: "must not be negative",
		}
	}
	for model, window := range c.RateLimits {
		if window.MaxRequests < 1 {
			return ValidationError{
				Field:   "rate_limits." + model + ".max_requests",
				Value:   window.MaxRequests,
				Message: "must be at least 1",
			}
		}
		if window.Window <= 0 {
			return ValidationError{
				Field:   "rate_limits." + model + ".window",
				Value:   window.Window,
				Message: "must be positive",
			}
		}
	}
	for model, pricing := range c.Pricing {
		if pricing.InputPer1K < 0 || pricing.OutputPer1K < 0 {
			return ValidationError{
				Field:   "pricing." + model,
				Value:   pricing,
				Message: "rates must not be negative",
			}
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ValidationError{
			Field:   "log_level",
			Value:   c.LogLevel,
			Message: "must be one of debug, info, warn, error",
		}
	}
	return nil
}

// LimiterModels converts the rate-limit section to the limiter's config map
func (c *Config) LimiterModels() map[string]ratelimit.WindowConfig {
	models := make(map[string]ratelimit.WindowConfig, len(c.RateLimits))
	for model, window := range c.RateLimits {
		models[model] = ratelimit.WindowConfig{
			MaxRequests: window.MaxRequests,
			Window:      window.Window,
		}
	}
	return models
}
