// Package config provides configuration management for the trade journal.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultTolerance is used when analysis.tolerance is unset.
	defaultTolerance = 0.01
	// defaultMarketDataTimeout is used when marketdata.timeout is unset.
	defaultMarketDataTimeout = 10 * time.Second
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	MarketData  MarketDataConfig  `yaml:"marketdata"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	AuthToken string `yaml:"auth_token"`
	Port      int    `yaml:"port"`
}

// StorageConfig defines where and how the ledger is persisted.
type StorageConfig struct {
	Backend string `yaml:"backend"` // json | sqlite
	Path    string `yaml:"path"`
}

// MarketDataConfig defines the closing-price source.
type MarketDataConfig struct {
	Provider string `yaml:"provider"` // static | http
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
}

// AnalysisConfig tunes the plan-vs-execution analyzer.
type AnalysisConfig struct {
	// Tolerance is the absolute price tolerance for on-target verdicts.
	Tolerance float64 `yaml:"tolerance"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "json"
	}
	if c.MarketData.Provider == "" {
		c.MarketData.Provider = "static"
	}
	if c.Analysis.Tolerance == 0 {
		c.Analysis.Tolerance = defaultTolerance
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Storage.Backend != "json" && c.Storage.Backend != "sqlite" {
		return fmt.Errorf("storage.backend must be 'json' or 'sqlite'")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	switch c.MarketData.Provider {
	case "static":
	case "http":
		if c.MarketData.BaseURL == "" {
			return fmt.Errorf("marketdata.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("marketdata.provider must be 'static' or 'http'")
	}
	if c.MarketData.Timeout != "" {
		if _, err := time.ParseDuration(c.MarketData.Timeout); err != nil {
			return fmt.Errorf("marketdata.timeout invalid: %w", err)
		}
	}

	if c.Analysis.Tolerance < 0 {
		return fmt.Errorf("analysis.tolerance must be >= 0")
	}
	return nil
}

// MarketDataTimeout returns the configured lookup timeout, falling back to
// the default when unset or unparsable.
func (c *Config) MarketDataTimeout() time.Duration {
	d, err := time.ParseDuration(c.MarketData.Timeout)
	if err != nil || d <= 0 {
		return defaultMarketDataTimeout
	}
	return d
}
