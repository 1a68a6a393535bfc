// Package config handles AgentScope configuration loading and validation.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for AgentScope.
type Config struct {
	Sessions SessionsConfig `yaml:"sessions"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
	UI       UIConfig       `yaml:"ui"`
}

// SessionsConfig defines where session data lives.
type SessionsConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig selects the persistence backend for raw-line logs.
type StoreConfig struct {
	Backend  string `yaml:"backend"` // "file" or "sqlite"
	Database string `yaml:"database"`
}

// IngestConfig tunes the ingestion engine.
type IngestConfig struct {
	TailGracePeriod time.Duration `yaml:"tail_grace_period"`
}

// LoggingConfig defines structured-logging output.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	SentryDSN string `yaml:"sentry_dsn"`
}

// UIConfig defines watch-view behavior.
type UIConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".agentscope")

	return &Config{
		Sessions: SessionsConfig{
			Dir: filepath.Join(base, "sessions"),
		},
		Store: StoreConfig{
			Backend:  "file",
			Database: filepath.Join(base, "agentscope.db"),
		},
		Ingest: IngestConfig{
			TailGracePeriod: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		UI: UIConfig{
			RefreshInterval: time.Second,
		},
	}
}

// Load reads configuration from the default path or falls back to defaults.
func Load() (*Config, error) {
	configPath := DefaultConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.expandEnvVars()
	return cfg, nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	if p := os.Getenv("AGENTSCOPE_CONFIG"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config/agentscope/config.yaml")
}

func (c *Config) expandEnvVars() {
	c.Logging.SentryDSN = os.ExpandEnv(c.Logging.SentryDSN)
}
