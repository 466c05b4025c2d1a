// Package config loads engine configuration from an optional YAML file,
// .env files, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/seo-optimizer/signal-engine/gapsynth"
	"github.com/seo-optimizer/signal-engine/logging"
	"github.com/seo-optimizer/signal-engine/scorer"
)

// ProviderLimits bounds one external provider: its own concurrency cap,
// token-bucket rate, monthly call budget, and retry policy. Limits are
// per-provider because every provider publishes its own.
type ProviderLimits struct {
	Concurrency    int           `yaml:"concurrency"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
	MonthlyBudget  int           `yaml:"monthly_budget"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Server holds the HTTP surface settings.
type Server struct {
	Port string `yaml:"port"`
}

// Config is the full engine configuration.
type Config struct {
	Server    Server                    `yaml:"server"`
	Log       logging.Config            `yaml:"log"`
	DataDir   string                    `yaml:"data_dir"`
	Scoring   scorer.Weights            `yaml:"scoring"`
	Gaps      gapsynth.Config           `yaml:"gaps"`
	Providers map[string]ProviderLimits `yaml:"providers"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Server:    Server{Port: "8082"},
		Log:       logging.Config{Level: "info"},
		DataDir:   "./data",
		Scoring:   scorer.DefaultWeights(),
		Gaps:      gapsynth.DefaultConfig(),
		Providers: map[string]ProviderLimits{},
	}
}

// DefaultProviderLimits is applied to providers the config file does not
// mention.
func DefaultProviderLimits() ProviderLimits {
	return ProviderLimits{
		Concurrency:    4,
		RatePerSecond:  2,
		Burst:          4,
		MonthlyBudget:  0, // unlimited
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variable overrides. .env files
// are loaded first so local development works without exported variables.
func Load() (Config, error) {
	loadEnvFiles()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	return cfg, nil
}

// Limits returns the limits for one provider, falling back to defaults.
func (c Config) Limits(provider string) ProviderLimits {
	if limits, ok := c.Providers[provider]; ok {
		return fillLimits(limits)
	}
	return DefaultProviderLimits()
}

func fillLimits(l ProviderLimits) ProviderLimits {
	def := DefaultProviderLimits()
	if l.Concurrency <= 0 {
		l.Concurrency = def.Concurrency
	}
	if l.RatePerSecond <= 0 {
		l.RatePerSecond = def.RatePerSecond
	}
	if l.Burst <= 0 {
		l.Burst = def.Burst
	}
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = def.MaxAttempts
	}
	if l.InitialBackoff <= 0 {
		l.InitialBackoff = def.InitialBackoff
	}
	if l.MaxBackoff <= 0 {
		l.MaxBackoff = def.MaxBackoff
	}
	return l
}

func loadEnvFiles() {
	// .env.development first for local development, then plain .env.
	if err := godotenv.Load(".env.development"); err != nil {
		godotenv.Load()
	}
}
